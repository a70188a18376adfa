package flow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for flow persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Definition CRUD
	GetByID(ctx context.Context, id string) (*Definition, error)
	List(ctx context.Context) ([]Definition, error)
	ListByDevice(ctx context.Context, deviceID string) ([]Definition, error)
	Create(ctx context.Context, def *Definition) error
	Update(ctx context.Context, def *Definition) error
	Delete(ctx context.Context, id string) error

	// Execution history
	CreateExecution(ctx context.Context, exec *Execution) error
	UpdateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	ListExecutions(ctx context.Context, flowID string, limit int) ([]Execution, error)

	// Learn-mode snapshots
	CreateLearnedScreen(ctx context.Context, screen *LearnedScreen) error
	ListLearnedScreens(ctx context.Context, executionID string) ([]LearnedScreen, error)
}

// flowColumns is the SELECT column list for flow queries.
const flowColumns = `id, device_id, name, description, steps, update_interval,
			default_modes, enabled, created_at, updated_at`

// executionColumns is the SELECT column list for execution queries.
const executionColumns = `id, flow_id, device_id, triggered_at, completed_at,
			triggered_by, status, executed_steps, total_steps, duration_ms,
			steps, error_message`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a flow definition by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Definition, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	def, err := scanFlowRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying flow by id: %w", err)
	}
	return def, nil
}

// List retrieves all flow definitions ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Definition, error) {
	query := `SELECT ` + flowColumns + ` FROM flows ORDER BY name`
	return r.queryFlows(ctx, query)
}

// ListByDevice retrieves all flows targeting a specific device.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]Definition, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE device_id = ? ORDER BY name`
	return r.queryFlows(ctx, query, deviceID)
}

// Create inserts a new flow definition. The definition is validated first
// so malformed flows are rejected at write time, not at execution time.
func (r *SQLiteRepository) Create(ctx context.Context, def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	stepsJSON, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("marshalling steps: %w", err)
	}
	modesJSON, err := json.Marshal(def.DefaultModes)
	if err != nil {
		return fmt.Errorf("marshalling default modes: %w", err)
	}

	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	query := `
		INSERT INTO flows (
			id, device_id, name, description, steps, update_interval,
			default_modes, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		def.ID,
		def.DeviceID,
		def.Name,
		nullableString(def.Description),
		string(stepsJSON),
		def.UpdateInterval,
		string(modesJSON),
		boolToInt(def.Enabled),
		def.CreatedAt.Format(time.RFC3339),
		def.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting flow: %w", err)
	}
	return nil
}

// Update modifies an existing flow definition.
func (r *SQLiteRepository) Update(ctx context.Context, def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	stepsJSON, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("marshalling steps: %w", err)
	}
	modesJSON, err := json.Marshal(def.DefaultModes)
	if err != nil {
		return fmt.Errorf("marshalling default modes: %w", err)
	}

	def.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE flows SET
			device_id = ?, name = ?, description = ?, steps = ?,
			update_interval = ?, default_modes = ?, enabled = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		def.DeviceID,
		def.Name,
		nullableString(def.Description),
		string(stepsJSON),
		def.UpdateInterval,
		string(modesJSON),
		boolToInt(def.Enabled),
		def.UpdatedAt.Format(time.RFC3339),
		def.ID,
	)
	if err != nil {
		return fmt.Errorf("updating flow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a flow definition by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM flows WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting flow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateExecution inserts a new execution record.
func (r *SQLiteRepository) CreateExecution(ctx context.Context, exec *Execution) error {
	stepsJSON, err := marshalStepRecords(exec.Steps)
	if err != nil {
		return fmt.Errorf("marshalling step records: %w", err)
	}

	query := `
		INSERT INTO flow_executions (
			id, flow_id, device_id, triggered_at, completed_at,
			triggered_by, status, executed_steps, total_steps, duration_ms,
			steps, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		exec.ID,
		exec.FlowID,
		exec.DeviceID,
		exec.TriggeredAt.Format(time.RFC3339),
		nullableTime(exec.CompletedAt),
		exec.TriggeredBy,
		string(exec.Status),
		exec.ExecutedSteps,
		exec.TotalSteps,
		nullableInt64(exec.DurationMS),
		stepsJSON,
		nullableString(exec.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// UpdateExecution updates an existing execution record with its outcome.
func (r *SQLiteRepository) UpdateExecution(ctx context.Context, exec *Execution) error {
	stepsJSON, err := marshalStepRecords(exec.Steps)
	if err != nil {
		return fmt.Errorf("marshalling step records: %w", err)
	}

	query := `
		UPDATE flow_executions SET
			completed_at = ?, status = ?, executed_steps = ?, total_steps = ?,
			duration_ms = ?, steps = ?, error_message = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		nullableTime(exec.CompletedAt),
		string(exec.Status),
		exec.ExecutedSteps,
		exec.TotalSteps,
		nullableInt64(exec.DurationMS),
		stepsJSON,
		nullableString(exec.ErrorMessage),
		exec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating execution: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrExecutionNotFound
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (r *SQLiteRepository) GetExecution(ctx context.Context, id string) (*Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM flow_executions WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	exec, err := scanExecutionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	return exec, nil
}

// ListExecutions retrieves recent executions for a flow, newest first.
func (r *SQLiteRepository) ListExecutions(ctx context.Context, flowID string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + executionColumns + `
		FROM flow_executions
		WHERE flow_id = ?
		ORDER BY triggered_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, flowID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var executions []Execution
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

// CreateLearnedScreen appends a learn-mode snapshot.
func (r *SQLiteRepository) CreateLearnedScreen(ctx context.Context, screen *LearnedScreen) error {
	if screen.CapturedAt.IsZero() {
		screen.CapturedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO learned_screens (
			execution_id, flow_id, step_index, step_type,
			expected_activity, actual_activity, step_success, elements, captured_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		screen.ExecutionID,
		screen.FlowID,
		screen.StepIndex,
		string(screen.StepType),
		emptyToNull(screen.ExpectedActivity),
		emptyToNull(screen.ActualActivity),
		boolToInt(screen.StepSuccess),
		nullableRawJSON(screen.Elements),
		screen.CapturedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting learned screen: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading learned screen id: %w", err)
	}
	screen.ID = id
	return nil
}

// ListLearnedScreens retrieves all snapshots captured during an execution,
// in step order.
func (r *SQLiteRepository) ListLearnedScreens(ctx context.Context, executionID string) ([]LearnedScreen, error) {
	query := `
		SELECT id, execution_id, flow_id, step_index, step_type,
			expected_activity, actual_activity, step_success, elements, captured_at
		FROM learned_screens
		WHERE execution_id = ?
		ORDER BY step_index`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("querying learned screens: %w", err)
	}
	defer rows.Close()

	var screens []LearnedScreen
	for rows.Next() {
		var s LearnedScreen
		var stepType, capturedAt string
		var expected, actual, elements sql.NullString
		var success int

		if err := rows.Scan(
			&s.ID,
			&s.ExecutionID,
			&s.FlowID,
			&s.StepIndex,
			&stepType,
			&expected,
			&actual,
			&success,
			&elements,
			&capturedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning learned screen: %w", err)
		}

		s.StepType = StepType(stepType)
		s.StepSuccess = success != 0
		if expected.Valid {
			s.ExpectedActivity = expected.String
		}
		if actual.Valid {
			s.ActualActivity = actual.String
		}
		if elements.Valid {
			s.Elements = json.RawMessage(elements.String)
		}
		if t, parseErr := time.Parse(time.RFC3339, capturedAt); parseErr == nil {
			s.CapturedAt = t
		}

		screens = append(screens, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating learned screens: %w", err)
	}
	return screens, nil
}

// queryFlows executes a query and returns a slice of definitions.
func (r *SQLiteRepository) queryFlows(ctx context.Context, query string, args ...any) ([]Definition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying flows: %w", err)
	}
	defer rows.Close()

	var flows []Definition
	for rows.Next() {
		def, scanErr := scanFlowRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning flow: %w", scanErr)
		}
		flows = append(flows, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating flows: %w", err)
	}
	return flows, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlowRow(scanner rowScanner) (*Definition, error) {
	var d Definition
	var description sql.NullString
	var stepsJSON, modesJSON string
	var enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.DeviceID,
		&d.Name,
		&description,
		&stepsJSON,
		&d.UpdateInterval,
		&modesJSON,
		&enabled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		d.Description = &description.String
	}
	d.Enabled = enabled != 0

	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		d.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		d.UpdatedAt = t
	}

	// Step decoding re-runs per-type validation, so a row corrupted by
	// hand-editing fails here rather than mid-execution.
	if stepsJSON != "" && stepsJSON != "[]" {
		if jsonErr := json.Unmarshal([]byte(stepsJSON), &d.Steps); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling steps: %w", jsonErr)
		}
	}
	if d.Steps == nil {
		d.Steps = []Step{}
	}

	if modesJSON != "" {
		if jsonErr := json.Unmarshal([]byte(modesJSON), &d.DefaultModes); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling default modes: %w", jsonErr)
		}
	}

	return &d, nil
}

func scanExecutionRow(scanner rowScanner) (*Execution, error) {
	var e Execution
	var triggeredAt, status string
	var completedAt, stepsJSON, errorMessage sql.NullString
	var durationMS sql.NullInt64

	err := scanner.Scan(
		&e.ID,
		&e.FlowID,
		&e.DeviceID,
		&triggeredAt,
		&completedAt,
		&e.TriggeredBy,
		&status,
		&e.ExecutedSteps,
		&e.TotalSteps,
		&durationMS,
		&stepsJSON,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	e.Status = ExecutionStatus(status)
	if t, parseErr := time.Parse(time.RFC3339, triggeredAt); parseErr == nil {
		e.TriggeredAt = t
	}
	if completedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, completedAt.String); parseErr == nil {
			e.CompletedAt = &t
		}
	}
	if durationMS.Valid {
		e.DurationMS = &durationMS.Int64
	}
	if errorMessage.Valid {
		e.ErrorMessage = &errorMessage.String
	}

	if stepsJSON.Valid && stepsJSON.String != "" && stepsJSON.String != "null" {
		if jsonErr := json.Unmarshal([]byte(stepsJSON.String), &e.Steps); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling step records: %w", jsonErr)
		}
	}

	return &e, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func emptyToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func nullableInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func nullableRawJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalStepRecords(records []StepRecord) (sql.NullString, error) {
	if len(records) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
