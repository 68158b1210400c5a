package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for automation persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Project definitions
	LoadProject(ctx context.Context) (*Project, error)
	SaveProject(ctx context.Context, p *Project) error

	// Execution logging
	CreateExecution(ctx context.Context, exec *Execution) error
	ListExecutions(ctx context.Context, triggerID string, limit int) ([]Execution, error)
}

// Query limits for list operations.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// timeFormat is a fixed-width UTC format so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// projectNameKey is the project_meta key holding the project name.
const projectNameKey = "project_name"

// executionColumns is the SELECT column list for execution queries.
const executionColumns = `id, trigger_kind, trigger_id, trigger_name, port,
			started_at, duration_ms, status, actions_total, error`

// SQLiteRepository implements Repository and SessionStore using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// Compile-time interface checks.
var (
	_ Repository   = (*SQLiteRepository)(nil)
	_ SessionStore = (*SQLiteRepository)(nil)
	_ ExecutionLog = (*SQLiteRepository)(nil)
)

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// LoadProject reads all workflows, stations and journeys in stored order.
// An empty database yields an empty project.
func (r *SQLiteRepository) LoadProject(ctx context.Context) (*Project, error) {
	p := &Project{}

	var name sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT value FROM project_meta WHERE key = ?`, projectNameKey).Scan(&name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying project name: %w", err)
	}
	p.Name = name.String

	if err := loadDefinitions(ctx, r.db, "workflows", &p.Workflows); err != nil {
		return nil, err
	}
	if err := loadDefinitions(ctx, r.db, "stations", &p.Stations); err != nil {
		return nil, err
	}
	if err := loadDefinitions(ctx, r.db, "journeys", &p.Journeys); err != nil {
		return nil, err
	}
	return p, nil
}

// loadDefinitions unmarshals every definition column of table into out.
func loadDefinitions[T any](ctx context.Context, db *sql.DB, table string, out *[]T) error {
	query := `SELECT definition FROM ` + table + ` ORDER BY sort_order, name` //nolint:gosec // table is a constant
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var definition string
		if err := rows.Scan(&definition); err != nil {
			return fmt.Errorf("scanning %s: %w", table, err)
		}
		var v T
		if err := json.Unmarshal([]byte(definition), &v); err != nil {
			return fmt.Errorf("unmarshalling %s definition: %w", table, err)
		}
		*out = append(*out, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating %s: %w", table, err)
	}
	return nil
}

// SaveProject replaces all stored definitions with p in one transaction.
func (r *SQLiteRepository) SaveProject(ctx context.Context, p *Project) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"workflows", "stations", "journeys"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil { //nolint:gosec // table is a constant
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	now := time.Now().UTC()
	for i := range p.Workflows {
		w := &p.Workflows[i]
		if w.CreatedAt.IsZero() {
			w.CreatedAt = now
		}
		w.UpdatedAt = now
		definition, err := json.Marshal(w)
		if err != nil {
			return fmt.Errorf("marshalling workflow %q: %w", w.Name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflows (id, name, in_port, definition, sort_order, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			w.ID, w.Name, w.InPort, string(definition), i,
			w.CreatedAt.Format(time.RFC3339), w.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: workflow %s", ErrAlreadyExists, w.ID)
			}
			return fmt.Errorf("inserting workflow: %w", err)
		}
	}

	for i := range p.Stations {
		if err := insertDefinition(ctx, tx, "stations", p.Stations[i].ID, p.Stations[i].Name, p.Stations[i].InPort, &p.Stations[i], i); err != nil {
			return err
		}
	}
	for i := range p.Journeys {
		if err := insertDefinition(ctx, tx, "journeys", p.Journeys[i].ID, p.Journeys[i].Name, p.Journeys[i].InPort, &p.Journeys[i], i); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		projectNameKey, p.Name,
	)
	if err != nil {
		return fmt.Errorf("saving project name: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing project: %w", err)
	}
	return nil
}

func insertDefinition(ctx context.Context, tx *sql.Tx, table, id, name string, inPort uint32, v any, order int) error {
	definition, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling %s %q: %w", table, name, err)
	}
	query := `INSERT INTO ` + table + ` (id, name, in_port, definition, sort_order) VALUES (?, ?, ?, ?, ?)` //nolint:gosec // table is a constant
	if _, err := tx.ExecContext(ctx, query, id, name, inPort, string(definition), order); err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s %s", ErrAlreadyExists, table, id)
		}
		return fmt.Errorf("inserting %s: %w", table, err)
	}
	return nil
}

// CreateExecution inserts a new execution record.
func (r *SQLiteRepository) CreateExecution(ctx context.Context, exec *Execution) error {
	if exec.ID == "" {
		exec.ID = GenerateID()
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO executions (
			id, trigger_kind, trigger_id, trigger_name, port,
			started_at, duration_ms, status, actions_total, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		exec.ID,
		string(exec.TriggerKind),
		exec.TriggerID,
		exec.TriggerName,
		exec.Port,
		exec.StartedAt.UTC().Format(timeFormat),
		exec.DurationMS,
		string(exec.Status),
		exec.ActionsTotal,
		nullableString(exec.Error),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: execution %s", ErrAlreadyExists, exec.ID)
		}
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// ListExecutions retrieves recent executions, newest first. An empty
// triggerID lists executions of every trigger.
func (r *SQLiteRepository) ListExecutions(ctx context.Context, triggerID string, limit int) ([]Execution, error) {
	limit = clampLimit(limit)

	query := `SELECT ` + executionColumns + ` FROM executions`
	args := []any{}
	if triggerID != "" {
		query += ` WHERE trigger_id = ?`
		args = append(args, triggerID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	executions := []Execution{}
	for rows.Next() {
		exec, scanErr := scanExecutionRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning execution: %w", scanErr)
		}
		executions = append(executions, *exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return executions, nil
}

// SaveSession upserts the runtime state of one journey.
func (r *SQLiteRepository) SaveSession(ctx context.Context, s JourneyState) error {
	var lastFeedback sql.NullString
	if !s.LastFeedback.IsZero() {
		lastFeedback = sql.NullString{String: s.LastFeedback.UTC().Format(timeFormat), Valid: true}
	}

	query := `
		INSERT INTO journey_sessions (
			journey_id, journey_name, counter, current_pos, current_station_name,
			active, last_feedback, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(journey_id) DO UPDATE SET
			journey_name = excluded.journey_name,
			counter = excluded.counter,
			current_pos = excluded.current_pos,
			current_station_name = excluded.current_station_name,
			active = excluded.active,
			last_feedback = excluded.last_feedback,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		s.JourneyID,
		s.JourneyName,
		s.Counter,
		s.CurrentPos,
		nullableString(s.CurrentStationName),
		boolToInt(s.Active),
		lastFeedback,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving journey session: %w", err)
	}
	return nil
}

// LoadSessions returns every stored journey session.
func (r *SQLiteRepository) LoadSessions(ctx context.Context) ([]JourneyState, error) {
	query := `
		SELECT journey_id, journey_name, counter, current_pos, current_station_name,
			active, last_feedback
		FROM journey_sessions
		ORDER BY journey_name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying journey sessions: %w", err)
	}
	defer rows.Close()

	var sessions []JourneyState
	for rows.Next() {
		var s JourneyState
		var stationName, lastFeedback sql.NullString
		var active int
		if err := rows.Scan(&s.JourneyID, &s.JourneyName, &s.Counter, &s.CurrentPos, &stationName, &active, &lastFeedback); err != nil {
			return nil, fmt.Errorf("scanning journey session: %w", err)
		}
		s.CurrentStationName = stationName.String
		s.Active = active != 0
		if lastFeedback.Valid {
			if t, parseErr := time.Parse(timeFormat, lastFeedback.String); parseErr == nil {
				s.LastFeedback = t
			}
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journey sessions: %w", err)
	}
	return sessions, nil
}

// AppendTrip records a reached station in the trip log.
func (r *SQLiteRepository) AppendTrip(ctx context.Context, reached StationReached) error {
	query := `
		INSERT INTO trip_log (journey_id, journey_name, station_id, station_name, position, reached_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		reached.JourneyID,
		reached.JourneyName,
		reached.Station.ID,
		reached.Station.Name,
		reached.Position,
		reached.ReachedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("appending trip: %w", err)
	}
	return nil
}

// ListTrips returns recent trip log entries, newest first. An empty
// journeyID lists every journey.
func (r *SQLiteRepository) ListTrips(ctx context.Context, journeyID string, limit int) ([]Trip, error) {
	limit = clampLimit(limit)

	query := `SELECT id, journey_id, journey_name, station_id, station_name, position, reached_at FROM trip_log`
	args := []any{}
	if journeyID != "" {
		query += ` WHERE journey_id = ?`
		args = append(args, journeyID)
	}
	query += ` ORDER BY reached_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	defer rows.Close()

	trips := []Trip{}
	for rows.Next() {
		var t Trip
		var reachedAt string
		if err := rows.Scan(&t.ID, &t.JourneyID, &t.JourneyName, &t.StationID, &t.StationName, &t.Position, &reachedAt); err != nil {
			return nil, fmt.Errorf("scanning trip: %w", err)
		}
		if ts, parseErr := time.Parse(timeFormat, reachedAt); parseErr == nil {
			t.ReachedAt = ts
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trips: %w", err)
	}
	return trips, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecutionRow(scanner rowScanner) (*Execution, error) {
	var e Execution
	var kind, status, startedAt string
	var errText sql.NullString

	err := scanner.Scan(
		&e.ID,
		&kind,
		&e.TriggerID,
		&e.TriggerName,
		&e.Port,
		&startedAt,
		&e.DurationMS,
		&status,
		&e.ActionsTotal,
		&errText,
	)
	if err != nil {
		return nil, err
	}

	e.TriggerKind = TriggerKind(kind)
	e.Status = ExecutionStatus(status)
	e.Error = errText.String
	if t, parseErr := time.Parse(timeFormat, startedAt); parseErr == nil {
		e.StartedAt = t
	}
	return &e, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
