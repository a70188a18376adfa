// Package sensor persists screen-scraped sensor definitions, their
// captured values, and their bounds drift history.
//
// A sensor names a rectangular region of a known screen and an
// extraction method for reading a value out of it. Captures are rate
// limited by each sensor's update interval; the skip analyzer uses
// IsDue to avoid re-running flows whose sensors are still fresh.
//
// Bounds are mutated only through BoundsRepairService, which appends
// every change to an append-only drift history table.
package sensor
