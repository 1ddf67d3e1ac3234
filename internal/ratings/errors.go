package ratings

import "errors"

// Rejections returned by Manager.Add and Manager.Delete. They are wrapped with
// a short detail, so compare them with errors.Is.
var (
	ErrInvalidRating    = errors.New("invalid rating")
	ErrAuthRequired     = errors.New("authentication required")
	ErrCannotChangeVote = errors.New("cannot change vote")
	ErrCannotDeleteVote = errors.New("cannot delete vote")
	ErrIPLimitReached   = errors.New("too many votes from this ip address")

	// ErrNotChanged signals a resubmission of the stored score. Nothing was
	// written.
	ErrNotChanged = errors.New("vote not changed")
)

// Configuration and lookup errors.
var (
	ErrImproperlyConfigured = errors.New("ratings: field improperly configured")
	ErrInvalidAssignment    = errors.New("ratings: value must be a domain.Rating")
	ErrUnknownField         = errors.New("ratings: unknown field")
	ErrTargetNotFound       = errors.New("ratings: target not found")
)

// Persistence signals a Store implementation must return.
var (
	ErrVoteNotFound  = errors.New("ratings: vote not found")
	ErrMultipleVotes = errors.New("ratings: multiple votes match actor")
	ErrDuplicateVote = errors.New("ratings: duplicate vote")
)

// IsRejection reports whether err is one of the expected vote rejections
// rather than an infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidRating,
		ErrAuthRequired,
		ErrCannotChangeVote,
		ErrCannotDeleteVote,
		ErrIPLimitReached,
		ErrNotChanged,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
