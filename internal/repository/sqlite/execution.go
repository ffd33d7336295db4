package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/Shree113/newcd/internal/apperror"
	"github.com/Shree113/newcd/internal/model"
	"github.com/Shree113/newcd/internal/repository"
)

// compile-time check that *DB implements repository.ExecutionRepository
var _ repository.ExecutionRepository = (*DB)(nil)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Create inserts exec, filling in its ID and, if unset, CreatedAt.
//
// xid IDs start with a timestamp, so ordering by id and by created_at agree;
// List still orders by created_at to stay correct for records with a
// caller-supplied time.
func (db *DB) Create(ctx context.Context, exec *model.Execution) error {
	exec.ID = xid.New().String()
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now().UTC()
	}

	var exitCode sql.NullInt64
	if exec.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*exec.ExitCode), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO executions (id, language, stage, exit_code, duration_ms, code_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		exec.ID,
		exec.Language,
		exec.Stage,
		exitCode,
		exec.DurationMs,
		exec.CodeSize,
		exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating execution: %w", err)
	}
	return nil
}

// GetByID retrieves a single execution record.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Execution, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, language, stage, exit_code, duration_ms, code_size, created_at
		 FROM executions
		 WHERE id = ?`,
		id,
	)

	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("execution", id)
		}
		return nil, fmt.Errorf("sqlite: getting execution %s: %w", id, err)
	}
	return exec, nil
}

// List returns the newest records first, optionally filtered by language.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Execution, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := max(opts.Offset, 0)

	query := `SELECT id, language, stage, exit_code, duration_ms, code_size, created_at
		 FROM executions`
	args := make([]any, 0, 3)
	if opts.Language != "" {
		query += ` WHERE language = ?`
		args = append(args, opts.Language)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing executions: %w", err)
	}
	defer rows.Close()

	execs := make([]model.Execution, 0, limit)
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning execution row: %w", err)
		}
		execs = append(execs, *exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating executions: %w", err)
	}

	return execs, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(s scanner) (*model.Execution, error) {
	var (
		exec     model.Execution
		exitCode sql.NullInt64
	)
	if err := s.Scan(
		&exec.ID,
		&exec.Language,
		&exec.Stage,
		&exitCode,
		&exec.DurationMs,
		&exec.CodeSize,
		&exec.CreatedAt,
	); err != nil {
		return nil, err
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		exec.ExitCode = &code
	}
	return &exec, nil
}
