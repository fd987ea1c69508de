// Package core defines the content model shared by every layer of the
// engine: conversation roles, the closed set of content block variants
// (text, tool invocation, tool result) and the token accounting types
// used by the history's budget enforcement.
package core
