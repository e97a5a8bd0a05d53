// Package storage persists analysis sessions in postgres. Each session row
// carries the submitted plan text, run status and, once the run finishes,
// the full result document as jsonb.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strataline/alignd/internal/util"
	"github.com/strataline/alignd/pkg/state"
)

// ErrNotFound is returned when no session row exists for the given id.
var ErrNotFound = errors.New("session not found")

const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// StoredSnapshot is a layer snapshot with its serialized graph text, which
// the in-memory snapshot deliberately keeps out of its JSON form. Persisting
// the text lets the diff endpoint recompute diffs after the run.
type StoredSnapshot struct {
	state.Snapshot
	SerializedGraph string `json:"serialized_graph"`
}

// Session is one persisted analysis run.
type Session struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Model         string          `json:"model"`
	StrategicText string          `json:"-"`
	ActionText    string          `json:"-"`
	LayersDone    int             `json:"layers_done"`
	Results       json.RawMessage `json:"results,omitempty"`
	Snapshots     json.RawMessage `json:"snapshots,omitempty"`
	Validations   json.RawMessage `json:"validations,omitempty"`
	OracleLog     json.RawMessage `json:"oracle_log,omitempty"`
	GraphText     string          `json:"-"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SessionStore reads and writes session rows.
type SessionStore struct {
	conn *pgxpool.Pool
}

func NewSessionStore(conn *pgxpool.Pool) *SessionStore {
	return &SessionStore{conn: conn}
}

type CreateSessionParams struct {
	ID            string
	Model         string
	StrategicText string
	ActionText    string
}

func (s *SessionStore) Create(ctx context.Context, params CreateSessionParams) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO sessions (id, status, model, strategic_text, action_text)
		VALUES ($1, $2, $3, $4, $5)`,
		params.ID,
		StatusPending,
		params.Model,
		util.SanitizePostgresText(params.StrategicText),
		util.SanitizePostgresText(params.ActionText),
	)
	return err
}

func (s *SessionStore) MarkRunning(ctx context.Context, id string) error {
	_, err := s.conn.Exec(ctx, `
		UPDATE sessions SET status = $2, updated_at = now() WHERE id = $1`,
		id, StatusRunning,
	)
	return err
}

func (s *SessionStore) MarkFailed(ctx context.Context, id string, layersDone int, message string) error {
	_, err := s.conn.Exec(ctx, `
		UPDATE sessions
		SET status = $2, layers_done = $3, error_message = $4, updated_at = now()
		WHERE id = $1`,
		id, StatusFailed, layersDone, message,
	)
	return err
}

type SaveResultsParams struct {
	ID          string
	LayersDone  int
	Results     any
	Snapshots   []StoredSnapshot
	Validations []state.ValidationResult
	OracleLog   any
	GraphText   string
}

// SaveResults marks the session complete and stores the full result
// document. The result sections are marshaled here so callers hand over
// their in-memory values directly.
func (s *SessionStore) SaveResults(ctx context.Context, params SaveResultsParams) error {
	results, err := json.Marshal(params.Results)
	if err != nil {
		return err
	}
	snapshots, err := json.Marshal(params.Snapshots)
	if err != nil {
		return err
	}
	validations, err := json.Marshal(params.Validations)
	if err != nil {
		return err
	}
	oracleLog, err := json.Marshal(params.OracleLog)
	if err != nil {
		return err
	}

	_, err = s.conn.Exec(ctx, `
		UPDATE sessions
		SET status = $2,
		    layers_done = $3,
		    results = $4,
		    snapshots = $5,
		    validations = $6,
		    oracle_log = $7,
		    graph_text = $8,
		    error_message = NULL,
		    updated_at = now()
		WHERE id = $1`,
		params.ID, StatusComplete, params.LayersDone,
		results, snapshots, validations, oracleLog,
		util.SanitizePostgresText(params.GraphText),
	)
	return err
}

func (s *SessionStore) Get(ctx context.Context, id string) (Session, error) {
	var (
		sess         Session
		graphText    *string
		errorMessage *string
	)
	err := s.conn.QueryRow(ctx, `
		SELECT id, status, model, strategic_text, action_text, layers_done,
		       results, snapshots, validations, oracle_log,
		       graph_text, error_message, created_at, updated_at
		FROM sessions WHERE id = $1`, id,
	).Scan(
		&sess.ID, &sess.Status, &sess.Model,
		&sess.StrategicText, &sess.ActionText, &sess.LayersDone,
		&sess.Results, &sess.Snapshots, &sess.Validations, &sess.OracleLog,
		&graphText, &errorMessage, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if graphText != nil {
		sess.GraphText = *graphText
	}
	if errorMessage != nil {
		sess.ErrorMessage = *errorMessage
	}
	return sess, nil
}

// ResultsField returns one top-level section of the stored results document
// without loading the rest of the row.
func (s *SessionStore) ResultsField(ctx context.Context, id, field string) (json.RawMessage, error) {
	var data json.RawMessage
	err := s.conn.QueryRow(ctx, `
		SELECT coalesce(results -> $2, 'null'::jsonb) FROM sessions WHERE id = $1`,
		id, field,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
