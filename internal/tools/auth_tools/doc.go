// Package auth_tools provides MCP tools for the Google sign-in session.
//
// The sign-in flow for an agent:
//  1. auth_status reports whether a user is signed in
//  2. auth_sign_in opens the Google consent page in the user's browser,
//     optionally waiting for the user to finish
//  3. auth_status confirms the signed-in account
//
// auth_sign_out forgets the token locally and asks Google to revoke it.
package auth_tools
