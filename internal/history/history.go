// Package history keeps a SQLite record of every agent invocation, one row
// per attempt. It is a diagnostic ledger; the JSON state record in the
// store package remains the single source of truth for workflow state.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/decisional/workflow-orchestrator/internal/domain"
)

// Store provides SQLite-backed invocation history
type Store struct {
	db *sql.DB
}

// Invocation is one persisted agent attempt
type Invocation struct {
	ID         string
	WorkflowID string
	WorkItemID string
	Phase      domain.Phase
	Role       domain.Role
	Iteration  int
	Outcome    string
	Detail     string
	LogPath    string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// New creates a Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records the start of an agent invocation and returns its id
func (s *Store) Begin(w *domain.Workflow, role domain.Role, logPath string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO invocations (id, workflow_id, work_item_id, phase, role, iteration, log_path, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, w.ID, w.WorkItemID, string(w.Phase), string(role), w.Iteration, logPath, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("recording invocation: %w", err)
	}
	return id, nil
}

// Finish records the outcome of a previously begun invocation
func (s *Store) Finish(id, outcome, detail string) error {
	_, err := s.db.Exec(`
		UPDATE invocations SET outcome = ?, detail = ?, finished_at = ? WHERE id = ?
	`, outcome, detail, time.Now().UTC(), id)
	return err
}

// ForWorkflow returns all invocations of a workflow, oldest first
func (s *Store) ForWorkflow(workflowID string) ([]*Invocation, error) {
	rows, err := s.db.Query(`
		SELECT id, workflow_id, work_item_id, phase, role, iteration, outcome, detail, log_path, started_at, finished_at
		FROM invocations WHERE workflow_id = ? ORDER BY started_at
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

// CountByRole returns how many finished invocations each role has for a
// workflow, which tests use to prove no phase ran twice after a restart
func (s *Store) CountByRole(workflowID string) (map[domain.Role]int, error) {
	rows, err := s.db.Query(`
		SELECT role, COUNT(*) FROM invocations WHERE workflow_id = ? GROUP BY role
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Role]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		counts[domain.Role(role)] = n
	}
	return counts, rows.Err()
}

func scanInvocation(rows *sql.Rows) (*Invocation, error) {
	var inv Invocation
	var phase, role string
	var outcome, detail, logPath sql.NullString
	var finishedAt sql.NullTime

	err := rows.Scan(&inv.ID, &inv.WorkflowID, &inv.WorkItemID, &phase, &role,
		&inv.Iteration, &outcome, &detail, &logPath, &inv.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	inv.Phase = domain.Phase(phase)
	inv.Role = domain.Role(role)
	inv.Outcome = outcome.String
	inv.Detail = detail.String
	inv.LogPath = logPath.String
	if finishedAt.Valid {
		inv.FinishedAt = &finishedAt.Time
	}
	return &inv, nil
}
