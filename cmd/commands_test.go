// File: cmd/commands_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
)

func TestRunCmd_BrowserLaunchFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.browserErr = errors.New("chrome not found")
	h.store.On("LogEvent", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.store.On("Close").Return(nil).Once()
	reportPath := filepath.Join(h.dir, "reports", "run.json")

	out, err := h.execute(context.Background(), "run", "--output", reportPath)

	require.Error(t, err)
	assert.ErrorIs(t, err, errRunAborted)
	assert.Contains(t, err.Error(), "chrome not found")
	assert.Contains(t, out, "Attempted:  0  Successful: 0  Failed: 0")
	assert.Contains(t, out, "Fatal error: launching browser: chrome not found")
	assert.Contains(t, out, "Report written to "+reportPath)
	h.store.AssertExpectations(t)

	data, readErr := os.ReadFile(reportPath)
	require.NoError(t, readErr)
	var report schemas.RunReport
	require.NoError(t, jsoniter.Unmarshal(data, &report))
	assert.NotEmpty(t, report.RunID)
	assert.Zero(t, report.Attempted)
	require.Len(t, report.Errors, 1)
}

func TestRunCmd_TextGenerationUnavailableIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.browserErr = errors.New("chrome not found")
	h.genErr = errors.New("Gemini API Key is required")
	h.store.On("LogEvent", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.store.On("Close").Return(nil)

	out, err := h.execute(context.Background(), "run", "--cover-letters")

	// The run still reaches the browser; only the launch aborts it.
	require.ErrorIs(t, err, errRunAborted)
	assert.Equal(t, int32(1), h.genCalls.Load())
	assert.Contains(t, out, "launching browser")
}

func TestRunCmd_CoverLettersOffSkipsTextGeneration(t *testing.T) {
	h := newHarness(t)
	h.browserErr = errors.New("chrome not found")
	h.store.On("LogEvent", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.store.On("Close").Return(nil)

	_, err := h.execute(context.Background(), "run")
	require.ErrorIs(t, err, errRunAborted)
	assert.Zero(t, h.genCalls.Load())
}

func TestAborted(t *testing.T) {
	r := schemas.NewRunReport("r", time.Now())
	assert.False(t, aborted(r), "no errors")

	r.AddError("Search failed for 'AR' in 'Dubai': boom")
	assert.False(t, aborted(r), "non-fatal error")

	r.AddError("Fatal error: authentication failed: login marker not reached")
	assert.True(t, aborted(r))

	r.RecordAttempt(schemas.ApplicationAttempt{Outcome: schemas.OutcomeFailed})
	assert.False(t, aborted(r), "attempts were made")
}

func TestApplicationsList(t *testing.T) {
	h := newHarness(t)
	h.store.On("ListApplicationRecords", mock.Anything).Return([]schemas.ApplicationRecord{
		{ID: 2, JobTitle: "Credit Controller", Company: "Globex", Status: "Applied", AppliedDate: time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)},
		{ID: 1, JobTitle: "AR Specialist", Company: "Acme", Status: "Interview", AppliedDate: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
	}, nil)
	h.store.On("Close").Return(nil)

	out, err := h.execute(context.Background(), "applications", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "TITLE")
	assert.Contains(t, lines[1], "2026-03-04 09:30")
	assert.Contains(t, lines[1], "Credit Controller")
	assert.Contains(t, lines[2], "Interview")
	h.store.AssertExpectations(t)
}

func TestApplicationsList_Empty(t *testing.T) {
	h := newHarness(t)
	h.store.On("ListApplicationRecords", mock.Anything).Return(nil, nil)
	h.store.On("Close").Return(nil)

	out, err := h.execute(context.Background(), "apps", "list")
	require.NoError(t, err)
	assert.Equal(t, "No applications recorded.\n", out)
}

func TestApplicationsShow(t *testing.T) {
	h := newHarness(t)
	notes := "phone screen booked"
	h.store.On("GetApplicationRecord", mock.Anything, int64(7)).Return(&schemas.ApplicationRecord{
		ID: 7, JobTitle: "AR Specialist", Company: "Acme", Status: "Applied", Notes: &notes,
	}, nil)
	h.store.On("Close").Return(nil)

	out, err := h.execute(context.Background(), "applications", "show", "7")
	require.NoError(t, err)
	assert.Contains(t, out, `"job_title": "AR Specialist"`)
	assert.Contains(t, out, `"notes": "phone screen booked"`)
}

func TestApplicationsShow_NotFound(t *testing.T) {
	h := newHarness(t)
	h.store.On("GetApplicationRecord", mock.Anything, int64(9)).Return(nil, schemas.ErrNotFound)
	h.store.On("Close").Return(nil)

	_, err := h.execute(context.Background(), "applications", "show", "9")
	require.EqualError(t, err, "application 9 not found")
}

func TestApplicationsShow_InvalidID(t *testing.T) {
	h := newHarness(t)

	_, err := h.execute(context.Background(), "applications", "show", "abc")
	require.EqualError(t, err, `invalid application id "abc"`)
	h.store.AssertNotCalled(t, "Close")
}

func TestApplicationsNotes(t *testing.T) {
	h := newHarness(t)
	h.store.On("UpdateNotes", mock.Anything, int64(3), "called back on Tuesday").Return(true, nil).Once()
	h.store.On("Close").Return(nil)

	out, err := h.execute(context.Background(), "applications", "notes", "3", "called", "back", "on", "Tuesday")
	require.NoError(t, err)
	assert.Contains(t, out, "Notes updated for application 3")
	h.store.AssertExpectations(t)
}

func TestApplicationsNotes_Missing(t *testing.T) {
	h := newHarness(t)
	h.store.On("UpdateNotes", mock.Anything, int64(4), "").Return(false, nil)
	h.store.On("Close").Return(nil)

	_, err := h.execute(context.Background(), "applications", "notes", "4")
	require.EqualError(t, err, "application 4 not found")
}

func TestGenerateCoverLetter(t *testing.T) {
	h := newHarness(t)
	h.extra = "profile:\n  name: Sam Doe\n  current_role: AR Analyst\n"
	h.gen.On("GenerateCoverLetter", mock.Anything, "AR Specialist at Acme", "Acme", "AR Specialist",
		mock.MatchedBy(func(p schemas.Profile) bool { return p.Name == "Sam Doe" && p.CurrentRole == "AR Analyst" }),
	).Return("Dear Hiring Manager,\n\nRegards", nil).Once()

	out, err := h.execute(context.Background(), "generate", "cover-letter", "--company", "Acme", "--title", "AR Specialist")
	require.NoError(t, err)
	assert.Equal(t, "Dear Hiring Manager,\n\nRegards\n", out)
	h.gen.AssertExpectations(t)
}

func TestGenerateCoverLetter_DescriptionFile(t *testing.T) {
	h := newHarness(t)
	jd := filepath.Join(h.dir, "jd.txt")
	require.NoError(t, os.WriteFile(jd, []byte("  Own the collections cycle.\n"), 0o644))
	h.gen.On("GenerateCoverLetter", mock.Anything, "Own the collections cycle.", "Acme", "AR Specialist", mock.Anything).
		Return("letter", nil).Once()

	_, err := h.execute(context.Background(), "generate", "cover-letter",
		"--company", "Acme", "--title", "AR Specialist", "--description-file", jd)
	require.NoError(t, err)
	h.gen.AssertExpectations(t)
}

func TestGenerateCoverLetter_GeneratorUnavailable(t *testing.T) {
	h := newHarness(t)
	h.genErr = errors.New("llm.api_key is required")

	_, err := h.execute(context.Background(), "generate", "cover-letter", "--company", "Acme", "--title", "AR")
	require.EqualError(t, err, "llm.api_key is required")
}

func TestGenerateTailor(t *testing.T) {
	h := newHarness(t)
	resume := filepath.Join(h.dir, "resume.json")
	require.NoError(t, os.WriteFile(resume, []byte(`{"summary":"old","name":"Sam"}`), 0o644))
	h.extra = "profile:\n  master_resume_path: " + resume + "\n"
	outPath := filepath.Join(h.dir, "tailored.json")

	h.gen.On("TailorResume", mock.Anything, "Collect receivables", map[string]any{"summary": "old", "name": "Sam"}).
		Return(map[string]any{"summary": "new", "name": "Sam"}, nil).Once()

	out, err := h.execute(context.Background(), "generate", "tailor", "--description", "Collect receivables", "--out", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Tailored resume written to "+outPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, jsoniter.Unmarshal(data, &got))
	assert.Equal(t, "new", got["summary"])
	h.gen.AssertExpectations(t)
}

func TestGenerateTailor_Preconditions(t *testing.T) {
	t.Run("no description", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.execute(context.Background(), "generate", "tailor")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "a job description is required")
	})
	t.Run("no resume", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.execute(context.Background(), "generate", "tailor", "--description", "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no master resume")
	})
	t.Run("resume not an object", func(t *testing.T) {
		h := newHarness(t)
		resume := filepath.Join(h.dir, "resume.json")
		require.NoError(t, os.WriteFile(resume, []byte(`["a"]`), 0o644))
		_, err := h.execute(context.Background(), "generate", "tailor", "--description", "x", "--resume", resume)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not a JSON object")
	})
}

func TestServeCmd_StopsWhenContextCanceled(t *testing.T) {
	h := newHarness(t)
	h.store.On("Close").Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.execute(ctx, "serve", "--addr", "127.0.0.1:0")
	require.NoError(t, err)
	h.store.AssertExpectations(t)
}

func TestLogsCmd_PrintsTail(t *testing.T) {
	h := newHarness(t)
	h.logFile = filepath.Join(h.dir, "jobagent.log")
	require.NoError(t, os.WriteFile(h.logFile, []byte("one\ntwo\nthree\nfour\n"), 0o644))

	out, err := h.execute(context.Background(), "logs", "-n", "2")
	require.NoError(t, err)
	assert.Equal(t, "three\nfour\n", out)
}

func TestLogsCmd_NoLogFile(t *testing.T) {
	h := newHarness(t)
	_, err := h.execute(context.Background(), "logs")
	require.EqualError(t, err, "logger.log_file is not set")
}

func TestPrintLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, printLastLines(&out, path, 10))
	assert.Equal(t, "a\nb\nc\n", out.String())

	out.Reset()
	require.NoError(t, printLastLines(&out, path, 0))
	assert.Empty(t, out.String())

	err := printLastLines(&out, filepath.Join(t.TempDir(), "missing.log"), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening log file")
}

// lockedBuffer is a bytes.Buffer safe for one writer and one reader.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFollowFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "follow.log")
	require.NoError(t, os.WriteFile(path, []byte("old line\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	var out lockedBuffer
	done := make(chan error, 1)
	go func() { done <- followFile(ctx, &out, path, true) }()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()

	// The tailer seeks to the end asynchronously, so keep appending until
	// a line comes through.
	require.Eventually(t, func() bool {
		_, _ = f.WriteString("fresh line\n")
		return strings.Contains(out.String(), "fresh line")
	}, 5*time.Second, 100*time.Millisecond)
	assert.NotContains(t, out.String(), "old line")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("followFile did not stop after cancel")
	}
}
