// Package extraction reads sensor values out of screen regions via the
// device agent's extraction endpoint.
package extraction
