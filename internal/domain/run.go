package domain

import "time"

// RunStatus is a snapshot of a pipeline run's progress.
type RunStatus struct {
	RunID       string    `json:"run_id"`
	Stage       Stage     `json:"stage"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	GridRows    int       `json:"grid_rows"`
	FramesDone  int       `json:"frames_done"`
	FramesTotal int       `json:"frames_total"`
	Output      string    `json:"output,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Done reports whether the run has finished, successfully or not.
func (s RunStatus) Done() bool { return !s.FinishedAt.IsZero() }
