// Package navigation verifies that the device landed on the expected
// screen after a navigation step.
//
// Activities are compared by short class name so recordings survive
// package refactors, and a trailing wildcard accepts families of
// related screens. WaitForActivity tolerates slow UI transitions by
// polling up to a bounded timeout.
package navigation
