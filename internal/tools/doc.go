// Package tools provides the collaborator execution boundary shared by workflow stages.
//
// Ownership boundary:
// - command execution helpers
//
// - exit code normalization for missing binaries
package tools
