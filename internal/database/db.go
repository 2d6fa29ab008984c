package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

type DB struct {
	*sql.DB
}

func New(db *sql.DB) *DB {
	return &DB{db}
}

func (db *DB) ExecSafe(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("execute statement: %w", err)
	}

	return result, nil
}

func (db *DB) QuerySafe(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	return rows, nil
}

func (db *DB) QueryRowSafe(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.QueryRowContext(ctx, query, args...)
}

// QueryBuilder turns @name placeholders into positional postgres parameters.
type QueryBuilder struct {
	params map[string]interface{}
}

func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{
		params: make(map[string]interface{}),
	}
}

func (qb *QueryBuilder) AddParam(name string, value interface{}) {
	qb.params[name] = value
}

// Build rewrites @name placeholders to $N in order of first appearance, so
// the argument order is stable for a given query text.
func (qb *QueryBuilder) Build(baseQuery string) (string, []interface{}) {
	names := make([]string, 0, len(qb.params))
	for name := range qb.params {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.Index(baseQuery, "@"+names[i]) < strings.Index(baseQuery, "@"+names[j])
	})

	paramCount := 1
	query := baseQuery
	args := make([]interface{}, 0, len(names))

	for _, name := range names {
		placeholder := fmt.Sprintf("@%s", name)
		if strings.Contains(query, placeholder) {
			query = strings.ReplaceAll(query, placeholder, fmt.Sprintf("$%d", paramCount))
			args = append(args, qb.params[name])
			paramCount++
		}
	}

	return query, args
}

type TxFn func(*sql.Tx) error

func (db *DB) WithTransaction(ctx context.Context, fn TxFn) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
