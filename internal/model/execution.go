// Package model defines the data structures used throughout the application.
package model

import "time"

// Execution is the history record of one handled execution request.
//
// WHY NO SOURCE TEXT?
// Submissions are arbitrary user code. Keeping only metadata (what ran, how
// it ended, how long it took) is enough for dashboards and debugging without
// turning the history table into an archive of other people's code.
type Execution struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Stage    string `json:"stage"`
	// ExitCode is nil unless the program ran to completion.
	ExitCode   *int      `json:"exitCode,omitempty"`
	DurationMs int64     `json:"durationMs"`
	CodeSize   int       `json:"codeSize"`
	CreatedAt  time.Time `json:"createdAt"`
}
