// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"github.com/xkilldash9x/jobagent-cli/internal/config"
	"github.com/xkilldash9x/jobagent-cli/internal/mocks"
	"github.com/xkilldash9x/jobagent-cli/internal/observability"
	"github.com/xkilldash9x/jobagent-cli/internal/runner"
	"go.uber.org/zap"
)

// harness runs the command tree against in-memory dependencies and a
// config file in a temp directory.
type harness struct {
	t   *testing.T
	dir string

	store *mocks.MockStore
	gen   *mocks.MockTextGenerator

	browser    schemas.Browser
	browserErr error
	genErr     error
	genCalls   atomic.Int32

	logFile string
	extra   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	return &harness{
		t:     t,
		dir:   t.TempDir(),
		store: new(mocks.MockStore),
		gen:   new(mocks.MockTextGenerator),
	}
}

func (h *harness) deps() dependencies {
	return dependencies{
		openStore: func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (schemas.Store, error) {
			return h.store, nil
		},
		newBrowser: func(cfg *config.Config, logger *zap.Logger) runner.BrowserFactory {
			return func(ctx context.Context) (schemas.Browser, error) {
				if h.browserErr != nil {
					return nil, h.browserErr
				}
				return h.browser, nil
			}
		},
		newTextGen: func(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.TextGenerator, error) {
			h.genCalls.Add(1)
			if h.genErr != nil {
				return nil, h.genErr
			}
			return h.gen, nil
		},
	}
}

// writeConfig writes config.yaml. extra holds additional top-level sections.
func (h *harness) writeConfig() string {
	h.t.Helper()
	body := fmt.Sprintf(`logger:
  level: fatal
  log_file: %q
database:
  driver: sqlite
  sqlite_path: %q
session:
  path: %q
  reuse: false
browser:
  artifacts_dir: %q
credentials:
  identifier: seeker@example.com
  secret: hunter22
%s`,
		h.logFile,
		filepath.Join(h.dir, "applications.db"),
		filepath.Join(h.dir, "session.json"),
		filepath.Join(h.dir, "artifacts"),
		h.extra,
	)
	path := filepath.Join(h.dir, "config.yaml")
	require.NoError(h.t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs the CLI with args and returns everything written to stdout.
func (h *harness) execute(ctx context.Context, args ...string) (string, error) {
	h.t.Helper()
	cfgPath := h.writeConfig()
	root := newRootCmd(h.deps())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{
		"--config", cfgPath,
		"--env-file", filepath.Join(h.dir, "missing.env"),
	}, args...))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}
