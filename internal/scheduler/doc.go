// Package scheduler dispatches periodic flow executions from an
// explicit work queue.
//
// Each enabled flow with a positive update interval gets one queue
// entry keyed by (device, flow). Entries live in a min-heap ordered by
// next due time; a ticker pops due entries and dispatches each in its
// own goroutine. A busy device defers its entry rather than queueing
// behind the in-flight execution, and per-device suspension lets an
// operator pause scheduling while editing a device's flows.
package scheduler
