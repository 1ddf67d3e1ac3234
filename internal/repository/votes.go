package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/comment-ratings/internal/domain"
	"github.com/Clark-Hu/comment-ratings/internal/ratings"
)

const pgUniqueViolation = "23505"

const voteColumns = `
    id,
    entity_type,
    object_id,
    field_key,
    score,
    user_id,
    ip_address,
    cookie,
    created_at,
    updated_at
`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VotesRepository is the Postgres implementation of ratings.Store. It holds
// the vote store, the score aggregate and the host shadow-column writer.
type VotesRepository struct {
	queries
	pool   *pgxpool.Pool
	logger *log.Logger
}

var _ ratings.Store = (*VotesRepository)(nil)

// InTx runs fn inside a read-committed transaction.
func (r *VotesRepository) InTx(ctx context.Context, fn func(tx ratings.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin vote tx: %w", err)
	}
	if err := fn(&voteTx{queries: queries{db: tx}}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.logger.Printf("repository: rollback vote tx: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return ratings.ErrDuplicateVote
		}
		return fmt.Errorf("commit vote tx: %w", err)
	}
	return nil
}

type voteTx struct {
	queries
}

var _ ratings.Tx = (*voteTx)(nil)

// queries carries the SQL shared by the pool-level reader and transactions.
type queries struct {
	db querier
}

func (q queries) FindVote(ctx context.Context, vq ratings.VoteQuery) (domain.Vote, error) {
	args := []any{vq.Target.EntityType, vq.Target.ObjectID, vq.FieldKey}
	where := []string{"entity_type = $1", "object_id = $2", "field_key = $3"}
	if vq.UserID != nil {
		args = append(args, *vq.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	} else {
		args = append(args, vq.IPAddress)
		where = append(where, "user_id IS NULL", fmt.Sprintf("ip_address = $%d", len(args)))
		if vq.Cookie != nil {
			args = append(args, *vq.Cookie)
			where = append(where, fmt.Sprintf("cookie = $%d", len(args)))
		} else {
			where = append(where, "cookie IS NULL")
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM rating_votes WHERE %s ORDER BY id LIMIT 2`, voteColumns, strings.Join(where, " AND "))
	if vq.ForUpdate {
		query += " FOR UPDATE"
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return domain.Vote{}, fmt.Errorf("find vote: %w", err)
	}
	defer rows.Close()

	var found []domain.Vote
	for rows.Next() {
		vote, err := scanVote(rows)
		if err != nil {
			return domain.Vote{}, err
		}
		found = append(found, vote)
	}
	if err := rows.Err(); err != nil {
		return domain.Vote{}, fmt.Errorf("find vote: %w", err)
	}

	switch len(found) {
	case 0:
		return domain.Vote{}, ratings.ErrVoteNotFound
	case 1:
		return found[0], nil
	default:
		return domain.Vote{}, ratings.ErrMultipleVotes
	}
}

func (q queries) GetScore(ctx context.Context, target domain.Target, fieldKey string) (domain.Score, bool, error) {
	const query = `
        SELECT votes, score, rating
        FROM rating_scores
        WHERE entity_type = $1 AND object_id = $2 AND field_key = $3
    `
	score := domain.Score{Target: target, FieldKey: fieldKey}
	err := q.db.QueryRow(ctx, query, target.EntityType, target.ObjectID, fieldKey).Scan(&score.Votes, &score.Score, &score.Rating)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Score{Target: target, FieldKey: fieldKey}, false, nil
		}
		return domain.Score{}, false, fmt.Errorf("get score: %w", err)
	}
	return score, true, nil
}

func (q queries) HostExists(ctx context.Context, table, objectID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, tableIdentifier(table))
	var exists bool
	if err := q.db.QueryRow(ctx, query, objectID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check host %s: %w", table, err)
	}
	return exists, nil
}

func (q queries) ListVotes(ctx context.Context, target domain.Target, fieldKey string) ([]domain.Vote, error) {
	query := fmt.Sprintf(`
        SELECT %s
        FROM rating_votes
        WHERE entity_type = $1 AND object_id = $2 AND field_key = $3
        ORDER BY id
    `, voteColumns)
	rows, err := q.db.Query(ctx, query, target.EntityType, target.ObjectID, fieldKey)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	votes := make([]domain.Vote, 0)
	for rows.Next() {
		vote, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return votes, nil
}

func (q queries) ListTargets(ctx context.Context, entityType, fieldKey string) ([]string, error) {
	const query = `
        SELECT object_id FROM rating_votes WHERE entity_type = $1 AND field_key = $2
        UNION
        SELECT object_id FROM rating_scores WHERE entity_type = $1 AND field_key = $2
        ORDER BY object_id
    `
	rows, err := q.db.Query(ctx, query, entityType, fieldKey)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return ids, nil
}

func (t *voteTx) LockIP(ctx context.Context, target domain.Target, fieldKey, ip string) error {
	if err := t.advisoryLock(ctx, "ip", target.EntityType, target.ObjectID, fieldKey, ip); err != nil {
		return fmt.Errorf("lock ip: %w", err)
	}
	return nil
}

func (t *voteTx) LockScore(ctx context.Context, target domain.Target, fieldKey string) error {
	if err := t.advisoryLock(ctx, "score", target.EntityType, target.ObjectID, fieldKey); err != nil {
		return fmt.Errorf("lock score: %w", err)
	}
	return nil
}

// advisoryLock takes a transaction-scoped lock on the joined key parts.
func (t *voteTx) advisoryLock(ctx context.Context, parts ...string) error {
	key := strings.Join(parts, "|")
	_, err := t.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

func (t *voteTx) CountVotesByIP(ctx context.Context, target domain.Target, fieldKey, ip string) (int, error) {
	const query = `
        SELECT COUNT(*)
        FROM rating_votes
        WHERE entity_type = $1 AND object_id = $2 AND field_key = $3 AND ip_address = $4
    `
	var n int
	if err := t.db.QueryRow(ctx, query, target.EntityType, target.ObjectID, fieldKey, ip).Scan(&n); err != nil {
		return 0, fmt.Errorf("count votes by ip: %w", err)
	}
	return n, nil
}

func (t *voteTx) InsertVote(ctx context.Context, vote domain.Vote) (domain.Vote, error) {
	const query = `
        INSERT INTO rating_votes (entity_type, object_id, field_key, score, user_id, ip_address, cookie)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at
    `
	err := t.db.QueryRow(ctx, query,
		vote.Target.EntityType,
		vote.Target.ObjectID,
		vote.FieldKey,
		vote.Score,
		vote.UserID,
		vote.IPAddress,
		vote.Cookie,
	).Scan(&vote.ID, &vote.CreatedAt, &vote.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Vote{}, ratings.ErrDuplicateVote
		}
		return domain.Vote{}, fmt.Errorf("insert vote: %w", err)
	}
	return vote, nil
}

func (t *voteTx) UpdateVote(ctx context.Context, id int64, score float64, cookie *string) error {
	const query = `
        UPDATE rating_votes
        SET score = $2,
            cookie = COALESCE($3, cookie),
            updated_at = now()
        WHERE id = $1
    `
	tag, err := t.db.Exec(ctx, query, id, score, cookie)
	if err != nil {
		if isUniqueViolation(err) {
			return ratings.ErrDuplicateVote
		}
		return fmt.Errorf("update vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ratings.ErrVoteNotFound
	}
	return nil
}

func (t *voteTx) DeleteVote(ctx context.Context, id int64) error {
	tag, err := t.db.Exec(ctx, `DELETE FROM rating_votes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ratings.ErrVoteNotFound
	}
	return nil
}

func (t *voteTx) AddToScore(ctx context.Context, target domain.Target, fieldKey string, votes int64, score float64) (domain.Score, error) {
	const query = `
        INSERT INTO rating_scores (entity_type, object_id, field_key, votes, score)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (entity_type, object_id, field_key)
        DO UPDATE SET votes = rating_scores.votes + EXCLUDED.votes,
                      score = rating_scores.score + EXCLUDED.score,
                      updated_at = now()
        RETURNING votes, score, rating
    `
	out := domain.Score{Target: target, FieldKey: fieldKey}
	err := t.db.QueryRow(ctx, query, target.EntityType, target.ObjectID, fieldKey, votes, score).
		Scan(&out.Votes, &out.Score, &out.Rating)
	if err != nil {
		return domain.Score{}, fmt.Errorf("add to score: %w", err)
	}
	return out, nil
}

func (t *voteTx) PutScore(ctx context.Context, score domain.Score) error {
	const query = `
        INSERT INTO rating_scores (entity_type, object_id, field_key, votes, score, rating)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (entity_type, object_id, field_key)
        DO UPDATE SET votes = EXCLUDED.votes,
                      score = EXCLUDED.score,
                      rating = EXCLUDED.rating,
                      updated_at = now()
    `
	_, err := t.db.Exec(ctx, query,
		score.Target.EntityType,
		score.Target.ObjectID,
		score.FieldKey,
		score.Votes,
		score.Score,
		score.Rating,
	)
	if err != nil {
		return fmt.Errorf("put score: %w", err)
	}
	return nil
}

func (t *voteTx) TallyVotes(ctx context.Context, target domain.Target, fieldKey string) (int64, float64, error) {
	const query = `
        SELECT COUNT(*)::int8, COALESCE(SUM(score), 0)::float8
        FROM rating_votes
        WHERE entity_type = $1 AND object_id = $2 AND field_key = $3
    `
	var (
		votes int64
		sum   float64
	)
	if err := t.db.QueryRow(ctx, query, target.EntityType, target.ObjectID, fieldKey).Scan(&votes, &sum); err != nil {
		return 0, 0, fmt.Errorf("tally votes: %w", err)
	}
	return votes, sum, nil
}

func (t *voteTx) UpdateHost(ctx context.Context, table, objectID string, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		args = append(args, columns[name])
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{name}.Sanitize(), len(args)))
	}
	args = append(args, objectID)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, tableIdentifier(table), strings.Join(sets, ", "), len(args))

	tag, err := t.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update host %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ratings.ErrTargetNotFound
	}
	return nil
}

func scanVote(row pgx.Row) (domain.Vote, error) {
	var vote domain.Vote
	err := row.Scan(
		&vote.ID,
		&vote.Target.EntityType,
		&vote.Target.ObjectID,
		&vote.FieldKey,
		&vote.Score,
		&vote.UserID,
		&vote.IPAddress,
		&vote.Cookie,
		&vote.CreatedAt,
		&vote.UpdatedAt,
	)
	if err != nil {
		return domain.Vote{}, err
	}
	return vote, nil
}

// tableIdentifier quotes a possibly schema-qualified table name.
func tableIdentifier(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
