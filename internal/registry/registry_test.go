package registry

import (
	"errors"
	"testing"

	"github.com/Clark-Hu/comment-ratings/internal/ratings"
)

func TestNew(t *testing.T) {
	reg, err := New(5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, f := range []*ratings.Field{reg.Rating, reg.Stars} {
		if got := f.Config().VotesPerIP; got != 5 {
			t.Fatalf("%s VotesPerIP = %d, want 5", f.Name(), got)
		}
	}
	if !reg.Rating.UsesCookies() {
		t.Fatalf("rating field should track anonymous voters by cookie")
	}
	if reg.Stars.UsesCookies() || reg.Stars.Config().AllowAnonymous {
		t.Fatalf("stars field must be for signed-in users only")
	}

	f, err := reg.Comments.Field("stars")
	if err != nil || f != reg.Stars {
		t.Fatalf("Field(stars) = %v, %v", f, err)
	}
	if _, err := reg.Comments.Field("nope"); !errors.Is(err, ratings.ErrUnknownField) {
		t.Fatalf("Field(nope) err = %v, want ErrUnknownField", err)
	}
}

func TestNewRejectsNegativeCap(t *testing.T) {
	if _, err := New(-1); !errors.Is(err, ratings.ErrImproperlyConfigured) {
		t.Fatalf("New(-1) err = %v, want ErrImproperlyConfigured", err)
	}
}

func TestEntity(t *testing.T) {
	reg, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e, err := reg.Entity("comments"); err != nil || e != reg.Comments {
		t.Fatalf("Entity(comments) = %v, %v", e, err)
	}
	if _, err := reg.Entity("articles"); err == nil {
		t.Fatalf("expected error for unknown entity type")
	}
}
