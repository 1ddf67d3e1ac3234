package registry

import (
	"fmt"

	"github.com/Clark-Hu/comment-ratings/internal/ratings"
)

// Registry holds the host entity types served by this binary and their
// rating fields.
type Registry struct {
	Comments *ratings.EntityType
	// Rating is the like/unlike field of a comment.
	Rating *ratings.Field
	// Stars is the 1..5 rating of a comment, signed-in users only.
	Stars *ratings.Field
}

// New declares the comment rating fields. votesPerIP caps the votes one
// address can cast on each field of a single comment.
func New(votesPerIP int) (*Registry, error) {
	rating, err := ratings.NewField("rating", ratings.FieldConfig{
		Kind:           ratings.KindInteger,
		Choices:        []float64{-1, 1},
		AllowAnonymous: true,
		UseCookies:     true,
		CanChangeVote:  true,
		VotesPerIP:     votesPerIP,
	})
	if err != nil {
		return nil, err
	}
	stars, err := ratings.NewField("stars", ratings.FieldConfig{
		Kind:          ratings.KindFloat,
		Range:         &ratings.Range{Low: 1, High: 5},
		CanChangeVote: true,
		AllowDelete:   true,
		VotesPerIP:    votesPerIP,
	})
	if err != nil {
		return nil, err
	}

	comments := ratings.NewEntityType("comments", "comments")
	for _, f := range []*ratings.Field{rating, stars} {
		if err := comments.AddField(f); err != nil {
			return nil, fmt.Errorf("register %s: %w", f.Name(), err)
		}
	}
	return &Registry{Comments: comments, Rating: rating, Stars: stars}, nil
}

// Entities lists every registered entity type.
func (r *Registry) Entities() []*ratings.EntityType {
	return []*ratings.EntityType{r.Comments}
}

// Entity looks up an entity type by name.
func (r *Registry) Entity(name string) (*ratings.EntityType, error) {
	for _, e := range r.Entities() {
		if e.Name() == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("unknown entity type %q", name)
}
