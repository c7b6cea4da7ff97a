// Package calendar_tools exposes the primary calendar to MCP clients.
//
// The tools list, create, update and delete events through the calendar
// gateway held by the server context. They require a signed-in session;
// without one they return an error result that points at auth_sign_in.
package calendar_tools
