// Package workflow holds the Temporal workflow that follows up on
// evaluations whose score is still outstanding after submission.
//
// Workflow code must stay deterministic: no wall-clock time, randomness or
// I/O. Everything that touches the ledger or the scoring engine runs in the
// activities defined by the scoring package.
package workflow
