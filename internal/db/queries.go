package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

// SessionStore persists sessions in SQLite. It implements session.Store.
//
// Put rewrites the session row and its whole history in one transaction,
// so concurrent writers to the same session are last-write-wins.
type SessionStore struct {
	db *sql.DB
}

var _ session.Store = (*SessionStore)(nil)

// NewSessionStore wraps an initialized database.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Get loads a session and its history.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, messages_json, current_json, created_at, last_activity
		FROM sessions
		WHERE id = ?
	`, id)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("session", id)
	}
	if err != nil {
		return nil, wrapErr(ctx, "session get", err)
	}

	history, err := s.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.History = history
	return sess, nil
}

func (s *SessionStore) loadHistory(ctx context.Context, id string) ([]session.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, provenance, recorded_at, document_json
		FROM mel_history
		WHERE session_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, wrapErr(ctx, "session get", err)
	}
	defer rows.Close()

	history := []session.HistoryEntry{}
	for rows.Next() {
		var (
			h          session.HistoryEntry
			provenance string
			recordedAt int64
			docJSON    string
		)
		if err := rows.Scan(&h.Version, &provenance, &recordedAt, &docJSON); err != nil {
			return nil, errors.NewInternal(err)
		}
		h.Provenance = session.Provenance(provenance)
		h.RecordedAt = fromMillis(recordedAt)
		h.Document = &mel.Document{}
		if err := json.Unmarshal([]byte(docJSON), h.Document); err != nil {
			return nil, errors.NewInternal(err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(ctx, "session get", err)
	}
	return history, nil
}

// Put inserts or replaces a session and its history.
func (s *SessionStore) Put(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return errors.NewInvalidRequest("session id is required")
	}

	messages := sess.Messages
	if messages == nil {
		messages = []session.Message{}
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return errors.NewInternal(err)
	}

	var currentJSON, melID sql.NullString
	if sess.Current != nil {
		data, err := json.Marshal(sess.Current)
		if err != nil {
			return errors.NewInternal(err)
		}
		currentJSON = sql.NullString{String: string(data), Valid: true}
		melID = toNullString(&sess.Current.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(ctx, "session put", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, messages_json, current_json, mel_id, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			messages_json = excluded.messages_json,
			current_json = excluded.current_json,
			mel_id = excluded.mel_id,
			created_at = excluded.created_at,
			last_activity = excluded.last_activity
	`, sess.ID, string(messagesJSON), currentJSON, melID,
		sess.CreatedAt.UnixMilli(), sess.LastActivity.UnixMilli())
	if err != nil {
		return wrapErr(ctx, "session put", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM mel_history WHERE session_id = ?`, sess.ID); err != nil {
		return wrapErr(ctx, "session put", err)
	}

	for i, h := range sess.History {
		docJSON, err := json.Marshal(h.Document)
		if err != nil {
			return errors.NewInternal(err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mel_history (session_id, seq, version, provenance, recorded_at, document_json)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sess.ID, i, h.Version, string(h.Provenance), h.RecordedAt.UnixMilli(), string(docJSON))
		if err != nil {
			return wrapErr(ctx, "session put", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(ctx, "session put", err)
	}
	return nil
}

// Delete removes a session and, through the foreign key, its history.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return wrapErr(ctx, "session delete", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("session", id)
	}
	return nil
}

// List returns session summaries ordered by last activity, newest first.
func (s *SessionStore) List(ctx context.Context, limit, offset int) ([]session.Summary, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, wrapErr(ctx, "session list", err)
	}

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, messages_json, current_json, created_at, last_activity
		FROM sessions
		ORDER BY last_activity DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, max(offset, 0))
	if err != nil {
		return nil, 0, wrapErr(ctx, "session list", err)
	}
	defer rows.Close()

	summaries := []session.Summary{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		summaries = append(summaries, sess.Summarize())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapErr(ctx, "session list", err)
	}
	return summaries, total, nil
}

// Purge removes sessions idle since before cutoff.
func (s *SessionStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_activity < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, wrapErr(ctx, "session purge", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession scans a sessions row without its history.
func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess         session.Session
		messagesJSON string
		currentJSON  sql.NullString
		createdAt    int64
		lastActivity int64
	)
	if err := row.Scan(&sess.ID, &messagesJSON, &currentJSON, &createdAt, &lastActivity); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(messagesJSON), &sess.Messages); err != nil {
		return nil, err
	}
	if sess.Messages == nil {
		sess.Messages = []session.Message{}
	}
	if data := fromNullString(currentJSON); data != nil {
		sess.Current = &mel.Document{}
		if err := json.Unmarshal([]byte(*data), sess.Current); err != nil {
			return nil, err
		}
	}
	sess.CreatedAt = fromMillis(createdAt)
	sess.LastActivity = fromMillis(lastActivity)
	sess.History = []session.HistoryEntry{}
	return &sess, nil
}

// wrapErr maps a database error to CANCELLED when ctx is done, else INTERNAL.
func wrapErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled(op)
	}
	return errors.NewInternal(err)
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
