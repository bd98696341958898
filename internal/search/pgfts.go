package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the messages fts column with ts_headline
// snippets, scoped to a room when one is given.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	const tsQuery = "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	where := "m.fts @@ " + tsQuery
	if q.Room != "" {
		where += " AND m.room = $2"
		args = append(args, q.Room)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT m.id, m.room, m.user_name,
			ts_headline('english', m.text, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			m.created_at,
			COUNT(*) OVER () AS total
		FROM messages m
		WHERE %s
		ORDER BY ts_rank(m.fts, %s) DESC, m.created_at DESC
		LIMIT $%d`, tsQuery, where, tsQuery, len(args))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Room, &r.UserName, &r.Snippet, &r.CreatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}
