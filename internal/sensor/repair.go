package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/tapflow-core/internal/flow"
)

// RepairLogger receives drift repair events. Satisfied by the logging
// package's Logger.
type RepairLogger interface {
	Info(msg string, args ...any)
}

// BoundsRepairService is the only writer of sensor bounds. When the
// executor detects that an element has drifted, it hands the new bounds
// here; everything else treats stored bounds as read-only.
type BoundsRepairService struct {
	store  Store
	logger RepairLogger
}

// NewBoundsRepairService creates a repair service backed by the given store.
func NewBoundsRepairService(store Store, logger RepairLogger) *BoundsRepairService {
	return &BoundsRepairService{store: store, logger: logger}
}

// UpdateBounds replaces a sensor's stored bounds with newBounds and
// appends the move to the sensor's drift history.
//
// Idempotent: if the stored bounds already equal newBounds, nothing is
// written and no history entry is appended.
//
// Parameters:
//   - ctx: Request context
//   - sensorID: Sensor whose bounds drifted
//   - newBounds: Where the element actually is now
//
// Returns:
//   - bool: True if bounds were changed, false if already current
//   - error: Store errors, including ErrNotFound
func (r *BoundsRepairService) UpdateBounds(ctx context.Context, sensorID string, newBounds flow.Bounds) (bool, error) {
	sensor, err := r.store.GetSensor(ctx, sensorID)
	if err != nil {
		return false, fmt.Errorf("loading sensor for repair: %w", err)
	}

	if sensor.Bounds == newBounds {
		return false, nil
	}

	distance := sensor.Bounds.DistanceTo(newBounds)
	if err := r.store.UpdateSensorBounds(ctx, sensorID, sensor.Bounds, newBounds, distance); err != nil {
		return false, fmt.Errorf("persisting repaired bounds: %w", err)
	}

	if r.logger != nil {
		r.logger.Info("sensor bounds repaired",
			"sensor_id", sensorID,
			"distance", distance,
			"old_bounds", sensor.Bounds,
			"new_bounds", newBounds,
			"repaired_at", time.Now().UTC().Format(time.RFC3339),
		)
	}
	return true, nil
}
