// Package clibridge exposes external AI command-line tools as MCP tools.
package clibridge

// Version is the clibridge release version.
const Version = "0.1.0"
