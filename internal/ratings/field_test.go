package ratings

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Clark-Hu/comment-ratings/internal/domain"
)

func TestFieldKeyIsStable(t *testing.T) {
	if got := FieldKey("rating"); got != "2c5504ab9a86164db22a92dc8793843d" {
		t.Fatalf("FieldKey(rating) = %s", got)
	}
	a := MustField("stars", FieldConfig{Kind: KindFloat, Range: &Range{Low: 1, High: 5}})
	b := MustField("stars", FieldConfig{Kind: KindFloat, Range: &Range{Low: 1, High: 5}})
	if a.Key() != b.Key() || a.Key() != "a5df375d7c972248177e8b4407c8808c" {
		t.Fatalf("keys differ: %s vs %s", a.Key(), b.Key())
	}
}

func TestNewFieldValidation(t *testing.T) {
	tests := []struct {
		name  string
		field string
		cfg   FieldConfig
	}{
		{"missing range and choices", "rating", FieldConfig{}},
		{"empty range", "rating", FieldConfig{Range: &Range{Low: 1, High: 1}}},
		{"fractional bound on integer field", "rating", FieldConfig{Range: &Range{Low: 0.5, High: 5}}},
		{"single choice", "rating", FieldConfig{Choices: []float64{1}}},
		{"bad name", "Rating-1", FieldConfig{Range: &Range{Low: 1, High: 5}}},
		{"negative ip cap", "rating", FieldConfig{Range: &Range{Low: 1, High: 5}, VotesPerIP: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewField(tt.field, tt.cfg); !errors.Is(err, ErrImproperlyConfigured) {
				t.Fatalf("NewField error = %v, want ErrImproperlyConfigured", err)
			}
		})
	}
}

func TestFieldValidate(t *testing.T) {
	likes := MustField("rating", FieldConfig{Choices: []float64{-1, 1}})
	stars := MustField("stars", FieldConfig{Kind: KindFloat, Range: &Range{Low: 1, High: 5}})
	tenths := MustField("score", FieldConfig{Range: &Range{Low: -1, High: 1}})

	tests := []struct {
		field *Field
		score float64
		ok    bool
	}{
		{likes, 1, true},
		{likes, -1, true},
		{likes, 0, false},
		{likes, 2, false},
		{stars, 1, true},
		{stars, 3.5, true},
		{stars, 5, true},
		{stars, 0.99, false},
		{stars, 5.01, false},
		{tenths, 0, true},
		{tenths, 0.5, false},
		{tenths, -2, false},
	}
	for _, tt := range tests {
		err := tt.field.Validate(tt.score)
		if tt.ok && err != nil {
			t.Fatalf("%s.Validate(%v) = %v, want nil", tt.field.Name(), tt.score, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidRating) {
			t.Fatalf("%s.Validate(%v) = %v, want ErrInvalidRating", tt.field.Name(), tt.score, err)
		}
	}
}

func TestFieldColumns(t *testing.T) {
	likes := MustField("rating", FieldConfig{Choices: []float64{-1, 1}})
	stars := MustField("stars", FieldConfig{Kind: KindFloat, Range: &Range{Low: 1, High: 5}})

	if diff := cmp.Diff([]string{"rating_votes", "rating_score"}, likes.Columns()); diff != "" {
		t.Fatalf("integer columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"stars_votes", "stars_score", "stars_rating"}, stars.Columns()); diff != "" {
		t.Fatalf("float columns mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldAssign(t *testing.T) {
	stars := MustField("stars", FieldConfig{Kind: KindFloat, Range: &Range{Low: 1, High: 5}})

	row := map[string]any{}
	if err := stars.Assign(row, domain.Rating{Score: 8, Votes: 2}); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	want := map[string]any{"stars_votes": int64(2), "stars_score": 8.0, "stars_rating": 0.75}
	if diff := cmp.Diff(want, row); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}

	if err := stars.Assign(row, &domain.Rating{Score: 1, Votes: 1}); err != nil {
		t.Fatalf("Assign pointer: %v", err)
	}

	for _, bad := range []any{nil, 3, "4", struct{ Score, Votes int }{1, 1}, (*domain.Rating)(nil), domain.Rating{Votes: -1}} {
		if err := stars.Assign(map[string]any{}, bad); !errors.Is(err, ErrInvalidAssignment) {
			t.Fatalf("Assign(%#v) = %v, want ErrInvalidAssignment", bad, err)
		}
	}
}

func TestNormalizedRating(t *testing.T) {
	stars := MustField("stars", FieldConfig{Kind: KindFloat, Range: &Range{Low: 1, High: 5}})
	likes := MustField("rating", FieldConfig{Choices: []float64{-1, 1}})

	if r := likes.NormalizedRating(3, 3); r != nil {
		t.Fatalf("integer field rating = %v, want nil", *r)
	}
	cases := []struct {
		score float64
		votes int64
		want  float64
	}{
		{0, 0, 0},
		{5, 1, 1},
		{1, 1, 0},
		{8, 2, 0.75},
	}
	for _, c := range cases {
		if got := *stars.NormalizedRating(c.score, c.votes); got != c.want {
			t.Fatalf("NormalizedRating(%v, %d) = %v, want %v", c.score, c.votes, got, c.want)
		}
	}
}

func TestEntityTypeFields(t *testing.T) {
	comments := NewEntityType("comments", "comments")
	likes := MustField("rating", FieldConfig{Choices: []float64{-1, 1}})
	if err := comments.AddField(likes); err != nil {
		t.Fatalf("AddField: %v", err)
	}
	if err := comments.AddField(MustField("rating", FieldConfig{Range: &Range{Low: 1, High: 5}})); !errors.Is(err, ErrImproperlyConfigured) {
		t.Fatalf("duplicate AddField = %v, want ErrImproperlyConfigured", err)
	}
	if f, err := comments.Field("rating"); err != nil || f != likes {
		t.Fatalf("Field(rating) = %v, %v", f, err)
	}
	if _, err := comments.Field("karma"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("Field(karma) = %v, want ErrUnknownField", err)
	}
}

func TestParseScore(t *testing.T) {
	like := MustField("rating", FieldConfig{Kind: KindInteger, Choices: []float64{-1, 1}})
	stars := MustField("stars", FieldConfig{Kind: KindFloat, Range: &Range{Low: 1, High: 5}})

	tests := []struct {
		name  string
		field *Field
		raw   string
		score float64
		del   bool
		ok    bool
	}{
		{"integer", like, "1", 1, false, true},
		{"negative integer", like, "-1", -1, false, true},
		{"zero", like, "0", 0, false, true},
		{"delete", like, "delete", 0, true, true},
		{"delete upper case", stars, "DELETE", 0, true, true},
		{"decimal", stars, " 4.5 ", 4.5, false, true},
		{"integral on float field", stars, "3", 3, false, true},
		{"fraction on integer field", like, "1.0", 0, false, false},
		{"hex float", like, "0x1p0", 0, false, false},
		{"exponent", stars, "4e0", 0, false, false},
		{"plus sign", stars, "+4", 0, false, false},
		{"trailing dot", stars, "4.", 0, false, false},
		{"empty", like, "", 0, false, false},
		{"letters", like, "abc", 0, false, false},
		{"nan", stars, "NaN", 0, false, false},
		{"inf", stars, "+Inf", 0, false, false},
		{"overflow", stars, "1" + strings.Repeat("0", 400), 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, del, err := tt.field.ParseScore(tt.raw)
			if !tt.ok {
				if !errors.Is(err, ErrInvalidRating) {
					t.Fatalf("ParseScore(%q) error = %v, want ErrInvalidRating", tt.raw, err)
				}
				return
			}
			if err != nil || score != tt.score || del != tt.del {
				t.Fatalf("ParseScore(%q) = %v, %v, %v", tt.raw, score, del, err)
			}
		})
	}
}

func FuzzParseScore(f *testing.F) {
	for _, seed := range []string{"1", "-1", "delete", "4.5", "1e309", "0x1p0", "abc", ""} {
		f.Add(seed)
	}
	stars := MustField("stars", FieldConfig{Kind: KindFloat, Range: &Range{Low: 1, High: 5}})

	f.Fuzz(func(t *testing.T, raw string) {
		score, del, err := stars.ParseScore(raw)
		if err != nil {
			if !errors.Is(err, ErrInvalidRating) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			return
		}
		if del {
			return
		}
		if err := stars.Validate(score); err == nil && (score < 1 || score > 5) {
			t.Fatalf("score %v accepted outside range", score)
		}
	})
}
