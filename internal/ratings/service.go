package ratings

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// Service hands out rating managers bound to one host instance and field.
// It keeps no state besides its collaborators.
type Service struct {
	store     Store
	logger    *log.Logger
	newCookie func() (string, error)
}

// NewService constructs a Service over st.
func NewService(st Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:     st,
		logger:    logger,
		newCookie: newVoteCookie,
	}
}

// newVoteCookie mints a time-ordered, unique cookie value.
func newVoteCookie() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("mint vote cookie: %w", err)
	}
	return id.String(), nil
}

// ManagerFor returns the manager of field on the entity instance objectID.
func (s *Service) ManagerFor(entity *EntityType, objectID string, field *Field) *Manager {
	m := &Manager{
		svc:    s,
		entity: entity,
		field:  field,
		target: entity.Target(objectID),
	}
	if field.UsesCookies() {
		m.cookieName = fmt.Sprintf("vote-%s.%s.%s", entity.Name(), objectID, field.Key())
	}
	return m
}

// Resolve checks that the host row exists.
func (s *Service) Resolve(ctx context.Context, entity *EntityType, objectID string) error {
	if entity.Table() == "" {
		return nil
	}
	ok, err := s.store.HostExists(ctx, entity.Table(), objectID)
	if err != nil {
		return fmt.Errorf("resolve %s %s: %w", entity.Name(), objectID, err)
	}
	if !ok {
		return ErrTargetNotFound
	}
	return nil
}

// RecomputeAll rebuilds every aggregate of field from the vote store and
// returns how many targets were processed.
func (s *Service) RecomputeAll(ctx context.Context, entity *EntityType, field *Field) (int, error) {
	ids, err := s.store.ListTargets(ctx, entity.Name(), field.Key())
	if err != nil {
		return 0, fmt.Errorf("list %s targets: %w", entity.Name(), err)
	}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		m := s.ManagerFor(entity, id, field)
		_, err := m.Recompute(ctx, true)
		if errors.Is(err, ErrTargetNotFound) {
			s.logger.Printf("ratings: %s %s is gone, recomputing %s without host update", entity.Name(), id, field.Name())
			_, err = m.Recompute(ctx, false)
		}
		if err != nil {
			return i, fmt.Errorf("recompute %s %s %s: %w", entity.Name(), id, field.Name(), err)
		}
	}
	return len(ids), nil
}
