package ratings

import (
	"context"

	"github.com/Clark-Hu/comment-ratings/internal/domain"
)

// VoteQuery locates the live vote of one actor. A non-nil UserID selects the
// authenticated path and ignores IPAddress and Cookie; otherwise the vote is
// matched on user_id IS NULL, the IP address and the cookie (IS NULL when
// Cookie is nil).
type VoteQuery struct {
	Target    domain.Target
	FieldKey  string
	UserID    *string
	IPAddress string
	Cookie    *string
	// ForUpdate locks the matched row until the transaction ends.
	ForUpdate bool
}

// Reader holds the read operations shared by Store and Tx.
type Reader interface {
	// FindVote returns ErrVoteNotFound or ErrMultipleVotes when the query
	// does not match exactly one row.
	FindVote(ctx context.Context, q VoteQuery) (domain.Vote, error)
	// GetScore returns the aggregate and whether a row exists.
	GetScore(ctx context.Context, target domain.Target, fieldKey string) (domain.Score, bool, error)
	HostExists(ctx context.Context, table, objectID string) (bool, error)
	// ListVotes returns the live votes of one target field, oldest first.
	ListVotes(ctx context.Context, target domain.Target, fieldKey string) ([]domain.Vote, error)
	// ListTargets returns the object ids having votes or an aggregate for
	// the given entity type and field.
	ListTargets(ctx context.Context, entityType, fieldKey string) ([]string, error)
}

// Store is the persistence collaborator of the rating manager.
type Store interface {
	Reader
	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view used for every vote mutation.
type Tx interface {
	Reader
	// LockIP serialises first votes from one IP address on a target field.
	LockIP(ctx context.Context, target domain.Target, fieldKey, ip string) error
	// LockScore serialises rebuilding a missing aggregate.
	LockScore(ctx context.Context, target domain.Target, fieldKey string) error
	CountVotesByIP(ctx context.Context, target domain.Target, fieldKey, ip string) (int, error)
	// InsertVote returns ErrDuplicateVote when the actor already has a vote.
	InsertVote(ctx context.Context, vote domain.Vote) (domain.Vote, error)
	// UpdateVote sets the score; a nil cookie keeps the stored one.
	UpdateVote(ctx context.Context, id int64, score float64, cookie *string) error
	DeleteVote(ctx context.Context, id int64) error
	// AddToScore applies a delta to the aggregate, creating it when absent,
	// and returns the new totals.
	AddToScore(ctx context.Context, target domain.Target, fieldKey string, votes int64, score float64) (domain.Score, error)
	// PutScore overwrites the aggregate.
	PutScore(ctx context.Context, score domain.Score) error
	TallyVotes(ctx context.Context, target domain.Target, fieldKey string) (votes int64, sum float64, err error)
	// UpdateHost writes shadow columns of one host row. It returns
	// ErrTargetNotFound when the row does not exist.
	UpdateHost(ctx context.Context, table, objectID string, columns map[string]any) error
}
