package model

import "time"

type JobState string

const (
	JobRunning  JobState = "running"
	JobFinished JobState = "finished"
	JobAborted  JobState = "aborted"
)

type Recipient struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

type Failure struct {
	Number string `json:"number"`
	Reason string `json:"reason"`
}

// JobResult is the aggregate outcome of one bulk dispatch.
type JobResult struct {
	JobID      string     `json:"jobId"`
	SessionID  string     `json:"userId"`
	State      JobState   `json:"state"`
	Total      int        `json:"totalRecipients"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	Failures   []Failure  `json:"failures"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Clone returns a copy safe to hand out while the job keeps running.
func (r JobResult) Clone() JobResult {
	out := r
	out.Failures = append([]Failure(nil), r.Failures...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
