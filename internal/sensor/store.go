package sensor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/tapflow-core/internal/flow"
)

// Store defines sensor persistence. The executor and skip analyzer
// consume this interface; tests substitute in-memory fakes.
type Store interface {
	GetSensor(ctx context.Context, id string) (*Sensor, error)
	ListSensors(ctx context.Context) ([]Sensor, error)
	ListByFlow(ctx context.Context, flowID string) ([]Sensor, error)
	CreateSensor(ctx context.Context, s *Sensor) error
	DeleteSensor(ctx context.Context, id string) error

	// IsDue reports whether the sensor needs capturing at the given time.
	IsDue(ctx context.Context, id string, now time.Time) (bool, error)

	// RecordCapture stores a captured value and stamps the capture time.
	RecordCapture(ctx context.Context, id, value string, at time.Time) error

	// UpdateSensorBounds replaces the sensor's bounds and appends a
	// drift record, atomically.
	UpdateSensorBounds(ctx context.Context, id string, oldBounds, newBounds flow.Bounds, distance float64) error

	// ListDriftHistory returns a sensor's drift records, newest first.
	ListDriftHistory(ctx context.Context, sensorID string, limit int) ([]DriftRecord, error)
}

// sensorColumns is the SELECT column list for sensor queries.
const sensorColumns = `id, flow_id, name, expected_activity, bounds, element,
			extraction_method, extraction_params, update_interval,
			last_value, last_captured_at, bounds_updated_at,
			created_at, updated_at`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed sensor store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetSensor retrieves a sensor by ID.
func (s *SQLiteStore) GetSensor(ctx context.Context, id string) (*Sensor, error) {
	query := `SELECT ` + sensorColumns + ` FROM sensors WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)
	sensor, err := scanSensorRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying sensor: %w", err)
	}
	return sensor, nil
}

// ListSensors retrieves all sensors ordered by name.
func (s *SQLiteStore) ListSensors(ctx context.Context) ([]Sensor, error) {
	query := `SELECT ` + sensorColumns + ` FROM sensors ORDER BY name`
	return s.querySensors(ctx, query)
}

// ListByFlow retrieves all sensors captured by a specific flow.
func (s *SQLiteStore) ListByFlow(ctx context.Context, flowID string) ([]Sensor, error) {
	query := `SELECT ` + sensorColumns + ` FROM sensors WHERE flow_id = ? ORDER BY name`
	return s.querySensors(ctx, query, flowID)
}

// CreateSensor inserts a new sensor.
func (s *SQLiteStore) CreateSensor(ctx context.Context, sensor *Sensor) error {
	boundsJSON, err := json.Marshal(sensor.Bounds)
	if err != nil {
		return fmt.Errorf("marshalling bounds: %w", err)
	}
	elementJSON, err := marshalDescriptor(sensor.Element)
	if err != nil {
		return fmt.Errorf("marshalling element descriptor: %w", err)
	}

	now := time.Now().UTC()
	if sensor.CreatedAt.IsZero() {
		sensor.CreatedAt = now
	}
	sensor.UpdatedAt = now

	query := `
		INSERT INTO sensors (
			id, flow_id, name, expected_activity, bounds, element,
			extraction_method, extraction_params, update_interval,
			last_value, last_captured_at, bounds_updated_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		sensor.ID,
		sensor.FlowID,
		sensor.Name,
		emptyToNull(sensor.ExpectedActivity),
		string(boundsJSON),
		elementJSON,
		sensor.ExtractionMethod,
		nullableRawJSON(sensor.ExtractionParams),
		sensor.UpdateInterval,
		nullableString(sensor.LastValue),
		nullableTime(sensor.LastCapturedAt),
		nullableTime(sensor.BoundsUpdatedAt),
		sensor.CreatedAt.Format(time.RFC3339),
		sensor.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting sensor: %w", err)
	}
	return nil
}

// DeleteSensor removes a sensor and its drift history.
func (s *SQLiteStore) DeleteSensor(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, "DELETE FROM sensor_drift_history WHERE sensor_id = ?", id); err != nil {
		return fmt.Errorf("deleting drift history: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM sensors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting sensor: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// IsDue reports whether the sensor needs capturing at the given time.
func (s *SQLiteStore) IsDue(ctx context.Context, id string, now time.Time) (bool, error) {
	sensor, err := s.GetSensor(ctx, id)
	if err != nil {
		return false, err
	}
	return sensor.Due(now), nil
}

// RecordCapture stores a captured value and stamps the capture time.
func (s *SQLiteStore) RecordCapture(ctx context.Context, id, value string, at time.Time) error {
	query := `
		UPDATE sensors SET
			last_value = ?, last_captured_at = ?, updated_at = ?
		WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query,
		value,
		at.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("recording capture: %w", err)
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

// UpdateSensorBounds replaces the sensor's bounds and appends a drift
// record in a single transaction. The drift history is append-only.
func (s *SQLiteStore) UpdateSensorBounds(ctx context.Context, id string, oldBounds, newBounds flow.Bounds, distance float64) error {
	oldJSON, err := json.Marshal(oldBounds)
	if err != nil {
		return fmt.Errorf("marshalling old bounds: %w", err)
	}
	newJSON, err := json.Marshal(newBounds)
	if err != nil {
		return fmt.Errorf("marshalling new bounds: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.ExecContext(ctx, `
		UPDATE sensors SET
			bounds = ?, bounds_updated_at = ?, updated_at = ?
		WHERE id = ?`,
		string(newJSON), now, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating sensor bounds: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sensor_drift_history (
			sensor_id, old_bounds, new_bounds, distance, recorded_at
		) VALUES (?, ?, ?, ?, ?)`,
		id, string(oldJSON), string(newJSON), distance, now,
	)
	if err != nil {
		return fmt.Errorf("inserting drift record: %w", err)
	}

	return tx.Commit()
}

// ListDriftHistory returns a sensor's drift records, newest first.
func (s *SQLiteStore) ListDriftHistory(ctx context.Context, sensorID string, limit int) ([]DriftRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, sensor_id, old_bounds, new_bounds, distance, recorded_at
		FROM sensor_drift_history
		WHERE sensor_id = ?
		ORDER BY id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, sensorID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying drift history: %w", err)
	}
	defer rows.Close()

	var records []DriftRecord
	for rows.Next() {
		var r DriftRecord
		var oldJSON, newJSON, recordedAt string

		if err := rows.Scan(&r.ID, &r.SensorID, &oldJSON, &newJSON, &r.Distance, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning drift record: %w", err)
		}
		if err := json.Unmarshal([]byte(oldJSON), &r.OldBounds); err != nil {
			return nil, fmt.Errorf("unmarshalling old bounds: %w", err)
		}
		if err := json.Unmarshal([]byte(newJSON), &r.NewBounds); err != nil {
			return nil, fmt.Errorf("unmarshalling new bounds: %w", err)
		}
		if t, parseErr := time.Parse(time.RFC3339, recordedAt); parseErr == nil {
			r.RecordedAt = t
		}

		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating drift records: %w", err)
	}
	return records, nil
}

// querySensors executes a query and returns a slice of sensors.
func (s *SQLiteStore) querySensors(ctx context.Context, query string, args ...any) ([]Sensor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	var sensors []Sensor
	for rows.Next() {
		sensor, scanErr := scanSensorRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning sensor: %w", scanErr)
		}
		sensors = append(sensors, *sensor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensors: %w", err)
	}
	return sensors, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSensorRow(scanner rowScanner) (*Sensor, error) {
	var s Sensor
	var expectedActivity, elementJSON, extractionParams, lastValue sql.NullString
	var lastCapturedAt, boundsUpdatedAt sql.NullString
	var boundsJSON, createdAt, updatedAt string

	err := scanner.Scan(
		&s.ID,
		&s.FlowID,
		&s.Name,
		&expectedActivity,
		&boundsJSON,
		&elementJSON,
		&s.ExtractionMethod,
		&extractionParams,
		&s.UpdateInterval,
		&lastValue,
		&lastCapturedAt,
		&boundsUpdatedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(boundsJSON), &s.Bounds); err != nil {
		return nil, fmt.Errorf("unmarshalling bounds: %w", err)
	}
	if elementJSON.Valid {
		if err := json.Unmarshal([]byte(elementJSON.String), &s.Element); err != nil {
			return nil, fmt.Errorf("unmarshalling element descriptor: %w", err)
		}
	}
	if expectedActivity.Valid {
		s.ExpectedActivity = expectedActivity.String
	}
	if extractionParams.Valid {
		s.ExtractionParams = json.RawMessage(extractionParams.String)
	}
	if lastValue.Valid {
		s.LastValue = &lastValue.String
	}
	if lastCapturedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, lastCapturedAt.String); parseErr == nil {
			s.LastCapturedAt = &t
		}
	}
	if boundsUpdatedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, boundsUpdatedAt.String); parseErr == nil {
			s.BoundsUpdatedAt = &t
		}
	}
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		s.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		s.UpdatedAt = t
	}

	return &s, nil
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

func nullableRawJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func marshalDescriptor(d flow.ElementDescriptor) (sql.NullString, error) {
	if d.IsEmpty() {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(d)
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
