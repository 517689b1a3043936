// Package repository stores session journal records.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stfn-ko/Wasabi/internal/model"
)

// SessionRepository provides data access for the session journal.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const selectColumns = `id, role, peer, state, close_reason, error_kind, frames_in, frames_out, opened_at, closed_at`

// Create inserts the record of a newly opened session.
func (r *SessionRepository) Create(ctx context.Context, rec *model.SessionRecord) error {
	query := `
		INSERT INTO sessions (id, role, peer, state, frames_in, frames_out, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Role),
		rec.Peer,
		rec.State.String(),
		rec.FramesIn,
		rec.FramesOut,
		rec.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// MarkClosed finalizes the record with its close reason, error kind and frame counts.
func (r *SessionRepository) MarkClosed(ctx context.Context, rec *model.SessionRecord) error {
	query := `
		UPDATE sessions
		SET state = ?, close_reason = ?, error_kind = ?, frames_in = ?, frames_out = ?, closed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		rec.State.String(),
		nullString(rec.CloseReason),
		nullString(rec.ErrorKind),
		rec.FramesIn,
		rec.FramesOut,
		rec.ClosedAt,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}

// GetByID retrieves a record by session ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.SessionRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM sessions WHERE id = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return rec, nil
}

// List returns the most recently opened records first. A non-positive limit returns all.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*model.SessionRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM sessions ORDER BY opened_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []*model.SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return records, nil
}

// CountOpen returns the number of records that have not been closed.
func (r *SessionRepository) CountOpen(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE closed_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open sessions: %w", err)
	}
	return count, nil
}

// Delete removes a record.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*model.SessionRecord, error) {
	rec := &model.SessionRecord{}
	var role, state string
	var closeReason, errorKind sql.NullString
	var closedAt sql.NullTime

	err := s.Scan(
		&rec.ID,
		&role,
		&rec.Peer,
		&state,
		&closeReason,
		&errorKind,
		&rec.FramesIn,
		&rec.FramesOut,
		&rec.OpenedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Role = model.Role(role)
	if st, ok := model.ParseState(state); ok {
		rec.State = st
	}
	if closeReason.Valid {
		rec.CloseReason = closeReason.String
	}
	if errorKind.Valid {
		rec.ErrorKind = errorKind.String
	}
	if closedAt.Valid {
		t := closedAt.Time
		rec.ClosedAt = &t
	}

	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
