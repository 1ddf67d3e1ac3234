package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/comment-ratings/internal/domain"
)

// CommentsRepository provides persistence helpers for comment entities.
type CommentsRepository struct {
	pool *pgxpool.Pool
}

const commentColumns = `
    id,
    author,
    body,
    rating_votes,
    rating_score,
    stars_votes,
    stars_score,
    stars_rating,
    created_at,
    updated_at
`

// CommentCreateParams bundles the fields required to create a comment.
type CommentCreateParams struct {
	Author string
	Body   string
}

// CommentListFilters encapsulates filter and pagination options.
type CommentListFilters struct {
	Author *string
	Limit  int
	Cursor *CommentCursor
}

// CommentCursor allows stable pagination by created_at/id.
type CommentCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// CommentListResult returns the paginated payload.
type CommentListResult struct {
	Items      []domain.Comment
	NextCursor *string
}

// Create inserts a new comment row with zeroed ratings.
func (r *CommentsRepository) Create(ctx context.Context, params CommentCreateParams) (domain.Comment, error) {
	query := fmt.Sprintf(`
        INSERT INTO comments (id, author, body)
        VALUES ($1,$2,$3)
        RETURNING %s
    `, commentColumns)

	row := r.pool.QueryRow(ctx, query, uuid.NewString(), params.Author, params.Body)
	return scanComment(row)
}

// GetByID fetches a comment by its identifier.
func (r *CommentsRepository) GetByID(ctx context.Context, id string) (domain.Comment, error) {
	query := fmt.Sprintf(`SELECT %s FROM comments WHERE id = $1`, commentColumns)
	comment, err := scanComment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Comment{}, ErrNotFound
		}
		return domain.Comment{}, err
	}
	return comment, nil
}

// List returns comments newest first.
func (r *CommentsRepository) List(ctx context.Context, filters CommentListFilters) (CommentListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Author != nil && strings.TrimSpace(*filters.Author) != "" {
		where = append(where, fmt.Sprintf("author = %s", arg(strings.TrimSpace(*filters.Author))))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", cursorCreated, cursorID))
	}

	var qb strings.Builder
	qb.WriteString("SELECT ")
	qb.WriteString(commentColumns)
	qb.WriteString(" FROM comments")
	if len(where) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(where, " AND "))
	}
	qb.WriteString(" ORDER BY created_at DESC, id DESC")
	qb.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, qb.String(), args...)
	if err != nil {
		return CommentListResult{}, err
	}
	defer rows.Close()

	items := make([]domain.Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return CommentListResult{}, err
		}
		items = append(items, comment)
	}
	if err := rows.Err(); err != nil {
		return CommentListResult{}, err
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := encodeCursor(CommentCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return CommentListResult{}, err
		}
		nextCursor = &token
	}

	return CommentListResult{Items: items, NextCursor: nextCursor}, nil
}

func scanComment(row pgx.Row) (domain.Comment, error) {
	var (
		comment     domain.Comment
		starsRating float64
	)
	err := row.Scan(
		&comment.ID,
		&comment.Author,
		&comment.Body,
		&comment.Rating.Votes,
		&comment.Rating.Score,
		&comment.Stars.Votes,
		&comment.Stars.Score,
		&starsRating,
		&comment.CreatedAt,
		&comment.UpdatedAt,
	)
	if err != nil {
		return domain.Comment{}, err
	}
	comment.Stars.Rating = &starsRating
	return comment, nil
}

func encodeCursor(c CommentCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into a CommentCursor.
func DecodeCursor(token string) (*CommentCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor CommentCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return &cursor, nil
}
