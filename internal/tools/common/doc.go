// Package common provides shared helpers for the MCP tool packages:
// handler instrumentation and argument parsing.
package common
