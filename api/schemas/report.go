// File: api/schemas/report.go
package schemas

import (
	"time"
)

// RunReport summarizes a single run. Counters are only ever changed through
// its methods so that Attempted always equals Successful + Failed.
type RunReport struct {
	RunID      string               `json:"run_id"`
	StartTime  time.Time            `json:"start_time"`
	EndTime    time.Time            `json:"end_time"`
	Attempted  int                  `json:"applications_attempted"`
	Successful int                  `json:"applications_successful"`
	Failed     int                  `json:"applications_failed"`
	Errors     []string             `json:"errors"`
	JobsFound  []JobCandidate       `json:"jobs_found"`
	Attempts   []ApplicationAttempt `json:"attempts"`
}

// NewRunReport starts a report at the given time.
func NewRunReport(runID string, start time.Time) *RunReport {
	return &RunReport{
		RunID:     runID,
		StartTime: start,
		Errors:    []string{},
		JobsFound: []JobCandidate{},
		Attempts:  []ApplicationAttempt{},
	}
}

// AddJob appends a discovered candidate.
func (r *RunReport) AddJob(c JobCandidate) {
	r.JobsFound = append(r.JobsFound, c)
}

// AddError appends a human readable error entry.
func (r *RunReport) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// RecordAttempt counts an attempt. Only OutcomeSuccess increments Successful.
func (r *RunReport) RecordAttempt(a ApplicationAttempt) {
	r.Attempts = append(r.Attempts, a)
	r.Attempted++
	if a.Outcome == OutcomeSuccess {
		r.Successful++
	} else {
		r.Failed++
	}
}

// Demote turns the most recent successful attempt for url into a failure.
// Used when a verified application could not be persisted.
func (r *RunReport) Demote(url, detail string) bool {
	for i := len(r.Attempts) - 1; i >= 0; i-- {
		a := &r.Attempts[i]
		if a.Candidate.URL == url && a.Outcome == OutcomeSuccess {
			a.Outcome = OutcomeFailed
			a.ErrorDetail = detail
			r.Successful--
			r.Failed++
			return true
		}
	}
	return false
}

// Finish stamps the end time.
func (r *RunReport) Finish(end time.Time) {
	r.EndTime = end
}

// Duration is EndTime - StartTime, or zero if the run has not finished.
func (r *RunReport) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
