// Package models defines the domain types shared between the planner, the
// executor and the outer surfaces (CLI, HTTP API, MCP).
package models

import "time"

// PlannedCommand is a single unit of work produced by the planner and
// consumed by the executor.
type PlannedCommand struct {
	Force   bool     `json:"force"`
	Command string   `json:"command"`
	Inputs  []string `json:"inputs"`
	Output  string   `json:"output"`
}

// Plan is the ordered list of commands for one overlay.
type Plan struct {
	Overlay  string           `json:"overlay"`
	Kind     string           `json:"kind"`
	Commands []PlannedCommand `json:"commands"`
}

// Reasons a command is run or skipped.
const (
	ReasonForced         = "forced"
	ReasonCommandChanged = "command-changed"
	ReasonOutdated       = "outdated"
	ReasonUpToDate       = "up-to-date"
)

// Decision is the executor's verdict for one planned command.
type Decision struct {
	Run    bool   `json:"run"`
	Reason string `json:"reason"`
}

// Step statuses.
const (
	StepRunning   = "running"
	StepSkipped   = "skipped"
	StepSucceeded = "succeeded"
	StepFailed    = "failed"
)

// StepResult records what happened to one planned command.
type StepResult struct {
	Command  string        `json:"command"`
	Output   string        `json:"output"`
	Status   string        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Internal bool          `json:"internal,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// StepEvent is published whenever a step changes status.
type StepEvent struct {
	RunID   string    `json:"run_id"`
	Overlay string    `json:"overlay"`
	Command string    `json:"command"`
	Output  string    `json:"output"`
	Status  string    `json:"status"`
	Reason  string    `json:"reason,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// OverlayReport groups the step results of one overlay.
type OverlayReport struct {
	Overlay string       `json:"overlay"`
	Kind    string       `json:"kind"`
	Steps   []StepResult `json:"steps"`
}

// RunReport summarises one build invocation.
type RunReport struct {
	RunID      string          `json:"run_id"`
	Project    string          `json:"project"`
	Region     string          `json:"region"`
	Preview    bool            `json:"preview"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Overlays   []OverlayReport `json:"overlays"`
	Plans      []Plan          `json:"-"`
	Error      string          `json:"error,omitempty"`
}

// Overlay describes one buildable section of the pipeline file.
type Overlay struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Title string `json:"title,omitempty"`
	// Default reports whether the overlay is part of the default build order.
	Default bool `json:"default"`
}

// PreviewStep is a planned command with the decision the executor would
// take for it now.
type PreviewStep struct {
	PlannedCommand
	Run    bool   `json:"run"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PlanPreview is a dry-run view of one overlay's plan.
type PlanPreview struct {
	Overlay string        `json:"overlay"`
	Kind    string        `json:"kind"`
	Steps   []PreviewStep `json:"steps"`
}
