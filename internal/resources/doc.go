// Package resources provides read-only MCP resources: the current session
// and this month's events on the primary calendar.
package resources
