package repository

import (
	"errors"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/comment-ratings/internal/store"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("repository: not found")

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Comments *CommentsRepository
	Votes    *VotesRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return build(st.Pool(), st.Logger())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return build(pool, log.Default())
}

func build(pool *pgxpool.Pool, logger *log.Logger) *Repository {
	return &Repository{
		Comments: &CommentsRepository{pool: pool},
		Votes:    &VotesRepository{queries: queries{db: pool}, pool: pool, logger: logger},
	}
}
