// Package cmd implements the command-line interface for todocal.
//
// This package provides the following commands:
//   - login, logout, status: Manage the Google sign-in
//   - events list|create|update|delete: Work with the primary calendar
//   - serve: Start the MCP server to provide tools for AI assistants
//   - config init|path: Write or locate the configuration file
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
package cmd
