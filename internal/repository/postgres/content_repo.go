package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/model"
	"github.com/and161185/tim-admin/internal/repository"
)

// Schema maps one content table onto T.
type Schema[T any] struct {
	Table string
	// Columns are the writable columns in select order, between id and the timestamps.
	Columns []string
	// Search columns are matched with ILIKE.
	Search []string
	// Scan reads id, Columns..., created_at, updated_at.
	Scan func(row pgx.Row) (T, error)
}

func (s Schema[T]) selectList() string {
	return "id, " + strings.Join(s.Columns, ", ") + ", created_at, updated_at"
}

// Table implements repository.ContentRepository for one Schema.
type Table[T any] struct {
	db     *DB
	schema Schema[T]
}

// NewTable constructs a content repository.
func NewTable[T any](db *DB, schema Schema[T]) *Table[T] {
	return &Table[T]{db: db, schema: schema}
}

// List orders by id descending. A zero limit returns every match.
func (t *Table[T]) List(ctx context.Context, q model.ListQuery) ([]T, int, error) {
	var (
		where string
		args  []any
	)
	if q.Search != "" && len(t.schema.Search) > 0 {
		conds := make([]string, len(t.schema.Search))
		for i, c := range t.schema.Search {
			conds[i] = c + " ILIKE $1"
		}
		where = " WHERE " + strings.Join(conds, " OR ")
		args = append(args, "%"+escapeLike(q.Search)+"%")
	}

	var total int
	if err := t.db.Pool.QueryRow(ctx, `SELECT count(*) FROM `+t.schema.Table+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", t.schema.Table, err)
	}

	sql := `SELECT ` + t.schema.selectList() + ` FROM ` + t.schema.Table + where + ` ORDER BY id DESC`
	if q.Limit > 0 {
		n := len(args)
		sql += ` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
		args = append(args, q.Limit, q.Offset())
	}
	rows, err := t.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", t.schema.Table, err)
	}
	defer rows.Close()

	items := make([]T, 0)
	for rows.Next() {
		v, err := t.schema.Scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (t *Table[T]) Get(ctx context.Context, id int64) (T, error) {
	sql := `SELECT ` + t.schema.selectList() + ` FROM ` + t.schema.Table + ` WHERE id=$1`
	return t.one(t.db.Pool.QueryRow(ctx, sql, id))
}

func (t *Table[T]) Create(ctx context.Context, values map[string]any) (T, error) {
	cols, args, err := t.columns(values)
	if err != nil {
		var zero T
		return zero, err
	}
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = "$" + strconv.Itoa(i+1)
	}
	sql := `INSERT INTO ` + t.schema.Table + ` (` + strings.Join(cols, ", ") + `) VALUES (` +
		strings.Join(marks, ", ") + `) RETURNING ` + t.schema.selectList()
	return t.one(t.db.Pool.QueryRow(ctx, sql, args...))
}

func (t *Table[T]) Update(ctx context.Context, id int64, values map[string]any) (T, error) {
	if len(values) == 0 {
		return t.Get(ctx, id)
	}
	cols, args, err := t.columns(values)
	if err != nil {
		var zero T
		return zero, err
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + "=$" + strconv.Itoa(i+1)
	}
	args = append(args, id)
	sql := `UPDATE ` + t.schema.Table + ` SET ` + strings.Join(sets, ", ") + `, updated_at=now() WHERE id=$` +
		strconv.Itoa(len(args)) + ` RETURNING ` + t.schema.selectList()
	return t.one(t.db.Pool.QueryRow(ctx, sql, args...))
}

func (t *Table[T]) Delete(ctx context.Context, id int64) error {
	tag, err := t.db.Pool.Exec(ctx, `DELETE FROM `+t.schema.Table+` WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// columns returns the sorted value keys and their arguments. Keys outside
// the schema are rejected so they never reach the SQL text.
func (t *Table[T]) columns(values map[string]any) ([]string, []any, error) {
	cols := make([]string, 0, len(values))
	for k := range values {
		if !slices.Contains(t.schema.Columns, k) {
			return nil, nil, fmt.Errorf("%w: unknown field %q", errs.ErrValidation, k)
		}
		cols = append(cols, k)
	}
	if len(cols) == 0 {
		return nil, nil, fmt.Errorf("%w: no fields", errs.ErrValidation)
	}
	slices.Sort(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	return cols, args, nil
}

func (t *Table[T]) one(row pgx.Row) (T, error) {
	v, err := t.schema.Scan(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return v, errs.ErrNotFound
	case isUniqueViolation(err):
		return v, fmt.Errorf("%s: %w", t.schema.Table, errs.ErrAlreadyExists)
	}
	return v, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var (
	_ repository.ContentRepository[model.Service]     = (*Table[model.Service])(nil)
	_ repository.ContentRepository[model.Translation] = (*Table[model.Translation])(nil)
)
