// Package element resolves recorded element descriptors against live
// UI snapshots, detecting how far elements have drifted since they
// were recorded.
//
// Matching is tiered: exact bounds first (the common case when a
// layout has not changed), then identity fields (resource_id, text,
// content_desc), then a same-class nearest-neighbour search bounded by
// a maximum drift radius. The finder itself never mutates anything;
// the executor decides whether a detected drift warrants a bounds
// repair.
package element
