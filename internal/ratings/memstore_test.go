package ratings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Clark-Hu/comment-ratings/internal/domain"
)

type scoreKey struct {
	target domain.Target
	key    string
}

// memStore is an in-memory Store. Transactions hold the store mutex and roll
// back by restoring a snapshot.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	votes  map[int64]domain.Vote
	scores map[scoreKey]domain.Score
	hosts  map[string]map[string]map[string]any
}

func newMemStore() *memStore {
	return &memStore{
		votes:  make(map[int64]domain.Vote),
		scores: make(map[scoreKey]domain.Score),
		hosts:  make(map[string]map[string]map[string]any),
	}
}

func (s *memStore) addHost(table, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hosts[table] == nil {
		s.hosts[table] = make(map[string]map[string]any)
	}
	s.hosts[table][id] = make(map[string]any)
}

func (s *memStore) hostRow(table, id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hosts[table][id]
}

func (s *memStore) liveVotes(target domain.Target, key string) []domain.Vote {
	s.mu.Lock()
	defer s.mu.Unlock()
	votes, _ := memTx{s}.ListVotes(context.Background(), target, key)
	return votes
}

// removeScore drops an aggregate behind the manager's back.
func (s *memStore) removeScore(target domain.Target, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scores, scoreKey{target, key})
}

// removeVote deletes a vote behind the manager's back.
func (s *memStore) removeVote(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.votes, id)
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	votes := make(map[int64]domain.Vote, len(s.votes))
	for k, v := range s.votes {
		votes[k] = v
	}
	scores := make(map[scoreKey]domain.Score, len(s.scores))
	for k, v := range s.scores {
		scores[k] = v
	}
	if err := fn(memTx{s}); err != nil {
		s.votes, s.scores = votes, scores
		return err
	}
	return nil
}

func (s *memStore) FindVote(ctx context.Context, q VoteQuery) (domain.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.FindVote(ctx, q)
}

func (s *memStore) GetScore(ctx context.Context, target domain.Target, key string) (domain.Score, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.GetScore(ctx, target, key)
}

func (s *memStore) HostExists(ctx context.Context, table, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.HostExists(ctx, table, id)
}

func (s *memStore) ListVotes(ctx context.Context, target domain.Target, key string) ([]domain.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.ListVotes(ctx, target, key)
}

func (s *memStore) ListTargets(ctx context.Context, entityType, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memTx{s}.ListTargets(ctx, entityType, key)
}

// memTx runs with the store mutex held.
type memTx struct{ s *memStore }

func (t memTx) FindVote(ctx context.Context, q VoteQuery) (domain.Vote, error) {
	var matches []domain.Vote
	for _, v := range t.s.votes {
		if v.Target != q.Target || v.FieldKey != q.FieldKey {
			continue
		}
		if q.UserID != nil {
			if v.UserID != nil && *v.UserID == *q.UserID {
				matches = append(matches, v)
			}
			continue
		}
		if v.UserID != nil || v.IPAddress != q.IPAddress {
			continue
		}
		switch {
		case q.Cookie == nil && v.Cookie == nil:
			matches = append(matches, v)
		case q.Cookie != nil && v.Cookie != nil && *q.Cookie == *v.Cookie:
			matches = append(matches, v)
		}
	}
	switch len(matches) {
	case 0:
		return domain.Vote{}, ErrVoteNotFound
	case 1:
		return matches[0], nil
	default:
		return domain.Vote{}, ErrMultipleVotes
	}
}

func (t memTx) GetScore(ctx context.Context, target domain.Target, key string) (domain.Score, bool, error) {
	sc, ok := t.s.scores[scoreKey{target, key}]
	return sc, ok, nil
}

func (t memTx) HostExists(ctx context.Context, table, id string) (bool, error) {
	_, ok := t.s.hosts[table][id]
	return ok, nil
}

func (t memTx) ListVotes(ctx context.Context, target domain.Target, key string) ([]domain.Vote, error) {
	var out []domain.Vote
	for _, v := range t.s.votes {
		if v.Target == target && v.FieldKey == key {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t memTx) ListTargets(ctx context.Context, entityType, key string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, v := range t.s.votes {
		if v.Target.EntityType == entityType && v.FieldKey == key {
			seen[v.Target.ObjectID] = struct{}{}
		}
	}
	for k := range t.s.scores {
		if k.target.EntityType == entityType && k.key == key {
			seen[k.target.ObjectID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (t memTx) LockIP(ctx context.Context, target domain.Target, key, ip string) error {
	return nil
}

func (t memTx) LockScore(ctx context.Context, target domain.Target, key string) error {
	return nil
}

func (t memTx) CountVotesByIP(ctx context.Context, target domain.Target, key, ip string) (int, error) {
	n := 0
	for _, v := range t.s.votes {
		if v.Target == target && v.FieldKey == key && v.IPAddress == ip {
			n++
		}
	}
	return n, nil
}

func (t memTx) InsertVote(ctx context.Context, vote domain.Vote) (domain.Vote, error) {
	q := VoteQuery{Target: vote.Target, FieldKey: vote.FieldKey, UserID: vote.UserID, IPAddress: vote.IPAddress, Cookie: vote.Cookie}
	if _, err := t.FindVote(ctx, q); err == nil {
		return domain.Vote{}, ErrDuplicateVote
	}
	t.s.nextID++
	now := time.Now()
	vote.ID = t.s.nextID
	vote.CreatedAt, vote.UpdatedAt = now, now
	t.s.votes[vote.ID] = vote
	return vote, nil
}

func (t memTx) UpdateVote(ctx context.Context, id int64, score float64, cookie *string) error {
	v, ok := t.s.votes[id]
	if !ok {
		return ErrVoteNotFound
	}
	v.Score = score
	if cookie != nil {
		v.Cookie = cookie
	}
	v.UpdatedAt = time.Now()
	t.s.votes[id] = v
	return nil
}

func (t memTx) DeleteVote(ctx context.Context, id int64) error {
	delete(t.s.votes, id)
	return nil
}

func (t memTx) AddToScore(ctx context.Context, target domain.Target, key string, votes int64, score float64) (domain.Score, error) {
	k := scoreKey{target, key}
	sc, ok := t.s.scores[k]
	if !ok {
		sc = domain.Score{Target: target, FieldKey: key}
	}
	sc.Votes += votes
	sc.Score += score
	t.s.scores[k] = sc
	return sc, nil
}

func (t memTx) PutScore(ctx context.Context, score domain.Score) error {
	t.s.scores[scoreKey{score.Target, score.FieldKey}] = score
	return nil
}

func (t memTx) TallyVotes(ctx context.Context, target domain.Target, key string) (int64, float64, error) {
	var (
		n   int64
		sum float64
	)
	for _, v := range t.s.votes {
		if v.Target == target && v.FieldKey == key {
			n++
			sum += v.Score
		}
	}
	return n, sum, nil
}

func (t memTx) UpdateHost(ctx context.Context, table, id string, columns map[string]any) error {
	row, ok := t.s.hosts[table][id]
	if !ok {
		return ErrTargetNotFound
	}
	for k, v := range columns {
		row[k] = v
	}
	return nil
}
