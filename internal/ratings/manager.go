package ratings

import (
	"context"
	"errors"
	"fmt"

	"github.com/Clark-Hu/comment-ratings/internal/domain"
)

// A vote insert that loses a race against the same actor is retried once and
// then takes the change path.
const maxApplyAttempts = 2

var errMissingIP = errors.New("ratings: anonymous actor requires an ip address")

// Cookie is the anonymous identity the caller must send back to the client.
// Clear is set when the vote was deleted and the cookie should be dropped.
type Cookie struct {
	Name  string
	Value string
	Clear bool
}

// Result describes a successful Add or Delete.
type Result struct {
	Created  bool
	Deleted  bool
	Previous *float64
	Score    domain.Score
	Cookie   *Cookie
}

// Manager mediates the votes of one field on one host instance. It owns no
// state; everything goes through the store.
type Manager struct {
	svc        *Service
	entity     *EntityType
	field      *Field
	target     domain.Target
	cookieName string
}

type submission struct {
	score  float64
	delete bool
}

func (m *Manager) Target() domain.Target { return m.target }
func (m *Manager) Field() *Field { return m.field }

// CookieName is empty when the field does not track anonymous voters by
// cookie.
func (m *Manager) CookieName() string { return m.cookieName }

func (m *Manager) tracksCookie(actor Actor) bool {
	return m.cookieName != "" && actor.IsAnonymous()
}

func (m *Manager) voteQuery(b Ballot, forUpdate bool) VoteQuery {
	q := VoteQuery{
		Target:    m.target,
		FieldKey:  m.field.Key(),
		ForUpdate: forUpdate,
	}
	if !b.Actor.IsAnonymous() {
		uid := b.Actor.UserID()
		q.UserID = &uid
		return q
	}
	q.IPAddress = b.Actor.IP()
	if m.tracksCookie(b.Actor) {
		if c := b.Cookies[m.cookieName]; c != "" {
			q.Cookie = &c
		}
	}
	return q
}

// CurrentVoteOf returns the stored score of the ballot's actor, if any.
func (m *Manager) CurrentVoteOf(ctx context.Context, b Ballot) (float64, bool, error) {
	if b.Actor.IsAnonymous() && b.Actor.IP() == "" {
		return 0, false, errMissingIP
	}
	vote, err := m.svc.store.FindVote(ctx, m.voteQuery(b, false))
	switch {
	case errors.Is(err, ErrVoteNotFound):
		return 0, false, nil
	case errors.Is(err, ErrMultipleVotes):
		m.svc.logger.Printf("ratings: multiple votes for %s on %s/%s field %s", b.Actor, m.target.EntityType, m.target.ObjectID, m.field.Name())
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("find vote: %w", err)
	}
	return vote.Score, true, nil
}

// Add records score as the actor's vote, creating or changing it.
func (m *Manager) Add(ctx context.Context, score float64, b Ballot) (Result, error) {
	return m.apply(ctx, submission{score: score}, b)
}

// Delete removes the actor's vote.
func (m *Manager) Delete(ctx context.Context, b Ballot) (Result, error) {
	return m.apply(ctx, submission{delete: true}, b)
}

func (m *Manager) apply(ctx context.Context, sub submission, b Ballot) (Result, error) {
	if err := m.validate(sub, b.Actor); err != nil {
		return Result{}, err
	}

	var (
		res Result
		err error
	)
	for attempt := 1; attempt <= maxApplyAttempts; attempt++ {
		err = m.svc.store.InTx(ctx, func(tx Tx) error {
			var txErr error
			res, txErr = m.applyTx(ctx, tx, sub, b)
			return txErr
		})
		if !errors.Is(err, ErrDuplicateVote) {
			break
		}
		m.svc.logger.Printf("ratings: concurrent first vote by %s on %s/%s (attempt %d)", b.Actor, m.target.EntityType, m.target.ObjectID, attempt)
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// validate runs every check that needs no stored state, so a rejection
// never reaches the store.
func (m *Manager) validate(sub submission, actor Actor) error {
	cfg := m.field.Config()
	if sub.delete && !cfg.AllowDelete {
		return fmt.Errorf("%w: you are not allowed to delete votes for %s", ErrCannotDeleteVote, m.field.Name())
	}
	if !sub.delete {
		if err := m.field.Validate(sub.score); err != nil {
			return err
		}
	}
	if actor.IsAnonymous() {
		if !cfg.AllowAnonymous {
			return fmt.Errorf("%w: %s requires a signed in user", ErrAuthRequired, m.field.Name())
		}
		if actor.IP() == "" {
			return errMissingIP
		}
	}
	return nil
}

func (m *Manager) applyTx(ctx context.Context, tx Tx, sub submission, b Ballot) (Result, error) {
	cfg := m.field.Config()

	existing, err := tx.FindVote(ctx, m.voteQuery(b, true))
	found := err == nil
	if err != nil && !errors.Is(err, ErrVoteNotFound) {
		return Result{}, fmt.Errorf("find vote: %w", err)
	}

	var cookie *string
	if m.tracksCookie(b.Actor) && !sub.delete {
		value, err := m.svc.newCookie()
		if err != nil {
			return Result{}, err
		}
		cookie = &value
	}

	var (
		res        Result
		votesDelta int64
		scoreDelta float64
	)
	if !found {
		if sub.delete {
			return Result{}, fmt.Errorf("%w: no vote of yours for %s to delete", ErrCannotDeleteVote, m.field.Name())
		}
		if err := m.checkIPLimit(ctx, tx, b.Actor.IP()); err != nil {
			return Result{}, err
		}
		vote := domain.Vote{
			Target:    m.target,
			FieldKey:  m.field.Key(),
			Score:     sub.score,
			IPAddress: b.Actor.IP(),
			Cookie:    cookie,
		}
		if !b.Actor.IsAnonymous() {
			uid := b.Actor.UserID()
			vote.UserID = &uid
		}
		if _, err := tx.InsertVote(ctx, vote); err != nil {
			return Result{}, err
		}
		res.Created = true
		votesDelta, scoreDelta = 1, sub.score
	} else {
		if !cfg.CanChangeVote {
			return Result{}, fmt.Errorf("%w: you have already voted on %s", ErrCannotChangeVote, m.field.Name())
		}
		prev := existing.Score
		res.Previous = &prev
		if !sub.delete && sub.score == prev {
			return Result{}, ErrNotChanged
		}
		if sub.delete {
			if err := tx.DeleteVote(ctx, existing.ID); err != nil {
				return Result{}, fmt.Errorf("delete vote: %w", err)
			}
			res.Deleted = true
			votesDelta, scoreDelta = -1, -prev
		} else {
			if err := tx.UpdateVote(ctx, existing.ID, sub.score, cookie); err != nil {
				return Result{}, fmt.Errorf("update vote: %w", err)
			}
			scoreDelta = sub.score - prev
		}
	}

	score, err := m.bumpScore(ctx, tx, votesDelta, scoreDelta)
	if err != nil {
		return Result{}, err
	}
	res.Score = score

	if !b.SkipHostUpdate {
		if err := m.updateHost(ctx, tx, score); err != nil {
			return Result{}, err
		}
	}

	if m.tracksCookie(b.Actor) {
		switch {
		case res.Deleted:
			res.Cookie = &Cookie{Name: m.cookieName, Value: derefString(existing.Cookie), Clear: true}
		default:
			res.Cookie = &Cookie{Name: m.cookieName, Value: *cookie}
		}
	}
	return res, nil
}

// bumpScore applies a vote delta to the aggregate. A missing aggregate is
// rebuilt from the live votes, which already include this change.
func (m *Manager) bumpScore(ctx context.Context, tx Tx, votes int64, delta float64) (domain.Score, error) {
	_, ok, err := tx.GetScore(ctx, m.target, m.field.Key())
	if err != nil {
		return domain.Score{}, fmt.Errorf("get score: %w", err)
	}
	if !ok {
		if err := tx.LockScore(ctx, m.target, m.field.Key()); err != nil {
			return domain.Score{}, fmt.Errorf("lock score: %w", err)
		}
		if _, ok, err = tx.GetScore(ctx, m.target, m.field.Key()); err != nil {
			return domain.Score{}, fmt.Errorf("get score: %w", err)
		}
	}

	if ok {
		score, err := tx.AddToScore(ctx, m.target, m.field.Key(), votes, delta)
		if err != nil {
			return domain.Score{}, fmt.Errorf("update score: %w", err)
		}
		if score.Rating = m.field.NormalizedRating(score.Score, score.Votes); score.Rating != nil {
			if err := tx.PutScore(ctx, score); err != nil {
				return domain.Score{}, fmt.Errorf("store rating: %w", err)
			}
		}
		return score, nil
	}

	n, sum, err := tx.TallyVotes(ctx, m.target, m.field.Key())
	if err != nil {
		return domain.Score{}, fmt.Errorf("tally votes: %w", err)
	}
	if n != votes {
		m.svc.logger.Printf("ratings: rebuilding missing %s aggregate of %s/%s from %d votes", m.field.Name(), m.target.EntityType, m.target.ObjectID, n)
	}
	score := domain.Score{
		Target:   m.target,
		FieldKey: m.field.Key(),
		Votes:    n,
		Score:    sum,
		Rating:   m.field.NormalizedRating(sum, n),
	}
	if err := tx.PutScore(ctx, score); err != nil {
		return domain.Score{}, fmt.Errorf("store score: %w", err)
	}
	return score, nil
}

func (m *Manager) checkIPLimit(ctx context.Context, tx Tx, ip string) error {
	limit := m.field.Config().VotesPerIP
	if limit <= 0 {
		return nil
	}
	if err := tx.LockIP(ctx, m.target, m.field.Key(), ip); err != nil {
		return fmt.Errorf("lock ip: %w", err)
	}
	n, err := tx.CountVotesByIP(ctx, m.target, m.field.Key(), ip)
	if err != nil {
		return fmt.Errorf("count votes by ip: %w", err)
	}
	if n >= limit {
		return fmt.Errorf("%w: %d votes from %s on %s", ErrIPLimitReached, n, ip, m.field.Name())
	}
	return nil
}

func (m *Manager) updateHost(ctx context.Context, tx Tx, score domain.Score) error {
	if m.entity.Table() == "" {
		return nil
	}
	row := make(map[string]any, 3)
	if err := m.field.Assign(row, domain.Rating{Score: score.Score, Votes: score.Votes, Rating: score.Rating}); err != nil {
		return err
	}
	if err := tx.UpdateHost(ctx, m.entity.Table(), m.target.ObjectID, row); err != nil {
		return fmt.Errorf("update %s host columns: %w", m.entity.Name(), err)
	}
	return nil
}

// Recompute rebuilds the aggregate from the live votes, overwriting whatever
// is stored. It repairs drift left by votes removed behind the manager's back.
func (m *Manager) Recompute(ctx context.Context, commit bool) (domain.Score, error) {
	var score domain.Score
	err := m.svc.store.InTx(ctx, func(tx Tx) error {
		votes, sum, err := tx.TallyVotes(ctx, m.target, m.field.Key())
		if err != nil {
			return fmt.Errorf("tally votes: %w", err)
		}
		score = domain.Score{
			Target:   m.target,
			FieldKey: m.field.Key(),
			Votes:    votes,
			Score:    sum,
			Rating:   m.field.NormalizedRating(sum, votes),
		}
		if err := tx.PutScore(ctx, score); err != nil {
			return fmt.Errorf("store score: %w", err)
		}
		if commit {
			return m.updateHost(ctx, tx, score)
		}
		return nil
	})
	if err != nil {
		return domain.Score{}, err
	}
	return score, nil
}

// Aggregate returns the stored aggregate, or an empty one.
func (m *Manager) Aggregate(ctx context.Context) (domain.Score, error) {
	score, ok, err := m.svc.store.GetScore(ctx, m.target, m.field.Key())
	if err != nil {
		return domain.Score{}, fmt.Errorf("get score: %w", err)
	}
	if !ok {
		score = domain.Score{Target: m.target, FieldKey: m.field.Key()}
	}
	if score.Rating == nil {
		score.Rating = m.field.NormalizedRating(score.Score, score.Votes)
	}
	return score, nil
}

// Votes lists the live votes cast on this field of the target.
func (m *Manager) Votes(ctx context.Context) ([]domain.Vote, error) {
	votes, err := m.svc.store.ListVotes(ctx, m.target, m.field.Key())
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return votes, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
