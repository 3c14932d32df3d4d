package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Postgres searches content rows directly with ILIKE. It is slow on large
// teams but always available.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	pattern := "%" + escapeLike(text) + "%"
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "team_id", "title", "blocks::text", "status", "COUNT(*) OVER()").
		From("contents").
		Where(sq.Eq{"team_id": q.TeamID}).
		Where(sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"blocks::text": pattern},
		}).
		OrderBy("updated_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(max(q.Offset, 0)))
	if q.FilterStatus != "" {
		builder = builder.Where(sq.Eq{"status": q.FilterStatus})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build search query: %w", err)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search content: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	total := 0
	for rows.Next() {
		var r Result
		var body string
		if err := rows.Scan(&r.ID, &r.TeamID, &r.Title, &body, &r.Status, &total); err != nil {
			return nil, 0, fmt.Errorf("scan search row: %w", err)
		}
		r.Snippet = snippet(body, 160)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, total, nil
}

// LoadRecords reads every content row for a full reindex.
func (p *Postgres) LoadRecords(ctx context.Context) ([]ContentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, team_id, title, blocks, status FROM contents`)
	if err != nil {
		return nil, fmt.Errorf("load content records: %w", err)
	}
	defer rows.Close()

	records := make([]ContentRecord, 0)
	for rows.Next() {
		var rec ContentRecord
		var blocksRaw []byte
		if err := rows.Scan(&rec.ID, &rec.TeamID, &rec.Title, &blocksRaw, &rec.Status); err != nil {
			return nil, fmt.Errorf("scan content record: %w", err)
		}
		rec.Body = ContentText(decodeBlocks(blocksRaw))
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content records: %w", err)
	}
	return records, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
