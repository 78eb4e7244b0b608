// File: api/schemas/application.go
package schemas

import (
	"fmt"
	"strings"
	"time"
)

// Credentials identify the user on the job platform. The secret must never
// be logged or serialized.
type Credentials struct {
	Identifier string `json:"-"`
	Secret     string `json:"-"`
}

// Validate checks that both fields are present.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Identifier) == "" {
		return &PreconditionError{Field: "credentials.identifier", Reason: "is required"}
	}
	if c.Secret == "" {
		return &PreconditionError{Field: "credentials.secret", Reason: "is required"}
	}
	return nil
}

// String redacts both fields so credentials are safe in %v output.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Identifier:[REDACTED %d chars], Secret:[REDACTED %d chars]}", len(c.Identifier), len(c.Secret))
}

// Cookie is the persisted form of a single browser cookie.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	HTTPOnly bool      `json:"http_only"`
	Secure   bool      `json:"secure"`
	SameSite string    `json:"same_site,omitempty"`
}

// Session is the set of cookies captured after a successful login.
type Session struct {
	Cookies []Cookie  `json:"cookies"`
	SavedAt time.Time `json:"saved_at"`
}

// SearchFacet is one (keyword, location) query.
type SearchFacet struct {
	Keyword  string `json:"keyword"`
	Location string `json:"location"`
}

func (f SearchFacet) String() string {
	return f.Keyword + " @ " + f.Location
}

// Facets builds keyword x location combinations in configured order and
// returns at most limit of them. A non-positive limit means no bound.
func Facets(keywords, locations []string, limit int) []SearchFacet {
	var out []SearchFacet
	for _, kw := range keywords {
		for _, loc := range locations {
			if limit > 0 && len(out) >= limit {
				return out
			}
			out = append(out, SearchFacet{Keyword: kw, Location: loc})
		}
	}
	return out
}

// JobCandidate is a listing extracted from a search results page.
type JobCandidate struct {
	Title   string      `json:"title"`
	Company string      `json:"company"`
	URL     string      `json:"url"`
	Facet   SearchFacet `json:"facet"`
}

// Outcome is the terminal state of an application attempt.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeUnverified Outcome = "unverified"
	OutcomeFailed     Outcome = "failed"
)

// ApplicationAttempt records what happened for one candidate.
type ApplicationAttempt struct {
	Candidate      JobCandidate `json:"candidate"`
	AttemptedAt    time.Time    `json:"attempted_at"`
	Outcome        Outcome      `json:"outcome"`
	ErrorDetail    string       `json:"error_detail,omitempty"`
	ScreenshotPath string       `json:"screenshot_path,omitempty"`
}

// StatusApplied is the status written for newly recorded applications.
const StatusApplied = "applied"

// NewApplication is the input for CreateApplicationRecord.
type NewApplication struct {
	JobTitle       string   `json:"job_title" validate:"required"`
	Company        string   `json:"company" validate:"required"`
	Platform       string   `json:"platform" validate:"required"`
	JobURL         string   `json:"job_url" validate:"omitempty,url"`
	Status         string   `json:"status,omitempty"`
	MatchScore     *float64 `json:"match_score,omitempty" validate:"omitempty,gte=0,lte=100"`
	CoverLetter    *string  `json:"cover_letter,omitempty"`
	ResumeVersion  *string  `json:"resume_version,omitempty"`
	ScreenshotPath *string  `json:"screenshot_path,omitempty"`
	Notes          *string  `json:"notes,omitempty"`
}

// ApplicationRecord is a persisted, verified application.
type ApplicationRecord struct {
	ID               int64      `json:"id"`
	JobTitle         string     `json:"job_title"`
	Company          string     `json:"company"`
	Platform         string     `json:"platform"`
	JobURL           string     `json:"job_url"`
	AppliedDate      time.Time  `json:"applied_date"`
	Status           string     `json:"status"`
	MatchScore       *float64   `json:"match_score"`
	CoverLetter      *string    `json:"cover_letter"`
	ResumeVersion    *string    `json:"resume_version"`
	ApplicationID    *string    `json:"application_id"`
	ScreenshotPath   *string    `json:"screenshot_path"`
	ResponseReceived bool       `json:"response_received"`
	InterviewDate    *time.Time `json:"interview_date"`
	Notes            *string    `json:"notes"`
}

// DiscoveredJob is a cached listing row.
type DiscoveredJob struct {
	JobURL         string   `json:"job_url"`
	Title          string   `json:"title"`
	Company        string   `json:"company"`
	Location       string   `json:"location"`
	Description    string   `json:"description,omitempty"`
	SalaryRange    string   `json:"salary_range,omitempty"`
	MatchScore     *float64 `json:"match_score,omitempty"`
	SkillsRequired []string `json:"skills_required,omitempty"`
}

// EventLog is an entry in the operational event log.
type EventLog struct {
	Action       string `json:"action"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	JobID        *int64 `json:"job_id,omitempty"`
}

// Profile is the static description of the applicant used for cover
// letters and resume tailoring.
type Profile struct {
	Name            string   `mapstructure:"name" json:"name"`
	CurrentRole     string   `mapstructure:"current_role" json:"current_role"`
	YearsExperience int      `mapstructure:"years_experience" json:"years_experience"`
	Location        string   `mapstructure:"location" json:"location"`
	Skills          []string `mapstructure:"skills" json:"skills"`
	Achievements    []string `mapstructure:"achievements" json:"achievements"`
}
