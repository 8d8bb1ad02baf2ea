package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema for the single-table record layout. Applied with EnsureSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
    pk  text  NOT NULL,
    sk  text  NOT NULL,
    doc jsonb NOT NULL,
    PRIMARY KEY (pk, sk)
);
CREATE INDEX IF NOT EXISTS records_customer_idx ON records ((doc->>'customerId'));
CREATE INDEX IF NOT EXISTS records_kind_idx ON records ((doc->>'kind'));
`

// Postgres implements Store on a single records(pk, sk, doc) table. The
// conditional Update is issued as one UPDATE statement so the guard and the
// mutation commit atomically on the server.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, Schema)
	return err
}

func (p *Postgres) Get(ctx context.Context, key Key) ([]byte, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM records WHERE pk=$1 AND sk=$2`, key.Partition, key.Sort).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *Postgres) Put(ctx context.Context, key Key, doc []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO records(pk, sk, doc) VALUES ($1, $2, $3)
		ON CONFLICT (pk, sk) DO UPDATE SET doc = EXCLUDED.doc`,
		key.Partition, key.Sort, doc)
	return err
}

var fieldRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

func (p *Postgres) Update(ctx context.Context, key Key, upd Update, cond *Condition) error {
	expr := "doc"
	args := []any{key.Partition, key.Sort}

	for _, field := range sortedKeys(upd.Set) {
		if !fieldRe.MatchString(field) {
			return fmt.Errorf("invalid field name %q", field)
		}
		b, err := json.Marshal(upd.Set[field])
		if err != nil {
			return err
		}
		args = append(args, string(b))
		expr = fmt.Sprintf("jsonb_set(%s, '{%s}', $%d::jsonb)", expr, field, len(args))
	}
	for _, field := range sortedKeys(upd.Add) {
		if !fieldRe.MatchString(field) {
			return fmt.Errorf("invalid field name %q", field)
		}
		args = append(args, upd.Add[field])
		expr = fmt.Sprintf(
			"jsonb_set(%s, '{%s}', to_jsonb(COALESCE((doc->>'%s')::bigint, 0) + $%d))",
			expr, field, field, len(args))
	}

	var where strings.Builder
	where.WriteString("pk=$1 AND sk=$2")
	if cond != nil {
		if !fieldRe.MatchString(cond.Field) {
			return fmt.Errorf("invalid field name %q", cond.Field)
		}
		switch {
		case cond.GTE != nil:
			args = append(args, *cond.GTE)
			fmt.Fprintf(&where, " AND (doc->>'%s')::bigint >= $%d", cond.Field, len(args))
		case cond.Eq != nil:
			args = append(args, *cond.Eq)
			fmt.Fprintf(&where, " AND doc->>'%s' = $%d", cond.Field, len(args))
		}
	}

	ct, err := p.pool.Exec(ctx,
		fmt.Sprintf("UPDATE records SET doc = %s WHERE %s", expr, where.String()), args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	// No row updated: missing record vs failed condition.
	var one int
	err = p.pool.QueryRow(ctx,
		`SELECT 1 FROM records WHERE pk=$1 AND sk=$2`, key.Partition, key.Sort).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConditionFailed
}

func (p *Postgres) QueryPrefix(ctx context.Context, partition, sortPrefix string) ([]Record, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT pk, sk, doc FROM records
		WHERE pk=$1 AND sk LIKE $2 || '%' ORDER BY sk`,
		partition, escapeLike(sortPrefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (p *Postgres) Scan(ctx context.Context, field, equals string) ([]Record, error) {
	if !fieldRe.MatchString(field) {
		return nil, fmt.Errorf("invalid field name %q", field)
	}
	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		`SELECT pk, sk, doc FROM records WHERE doc->>'%s' = $1 ORDER BY pk, sk`, field), equals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Key.Partition, &r.Key.Sort, &r.Doc); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
