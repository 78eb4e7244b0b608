// internal/sessionstore/sessionstore_test.go
package sessionstore

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"go.uber.org/zap/zaptest"
)

func sampleSession() schemas.Session {
	return schemas.Session{
		SavedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Cookies: []schemas.Cookie{
			{Name: "NGSESSID", Value: "abc123", Domain: ".naukrigulf.com", Path: "/", HTTPOnly: true, Secure: true},
			{Name: "ng_pref", Value: "dubai", Domain: ".naukrigulf.com", Path: "/", Expires: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("load without a saved session", func(t *testing.T) {
		s := New(filepath.Join(t.TempDir(), "session.json"), zaptest.NewLogger(t))
		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("save then load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "session.json")
		s := New(path, zaptest.NewLogger(t))
		want := sampleSession()

		require.NoError(t, s.Save(ctx, want))
		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.Cookies, got.Cookies)
		assert.True(t, want.SavedAt.Equal(got.SavedAt))

		if runtime.GOOS != "windows" {
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		s := New(filepath.Join(t.TempDir(), "session.json"), zaptest.NewLogger(t))
		require.NoError(t, s.Save(ctx, sampleSession()))

		next := schemas.Session{Cookies: []schemas.Cookie{{Name: "only", Value: "one"}}}
		require.NoError(t, s.Save(ctx, next))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.Len(t, got.Cookies, 1)
		assert.Equal(t, "only", got.Cookies[0].Name)
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		_, err := New(path, zaptest.NewLogger(t)).Load(ctx)
		assert.Error(t, err)
	})

	t.Run("empty cookie list counts as no session", func(t *testing.T) {
		s := New(filepath.Join(t.TempDir(), "session.json"), zaptest.NewLogger(t))
		require.NoError(t, s.Save(ctx, schemas.Session{}))
		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("clear", func(t *testing.T) {
		s := New(filepath.Join(t.TempDir(), "session.json"), zaptest.NewLogger(t))
		require.NoError(t, s.Clear(ctx), "clearing an absent session is fine")
		require.NoError(t, s.Save(ctx, sampleSession()))
		require.NoError(t, s.Clear(ctx))
		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		s := New(filepath.Join(t.TempDir(), "session.json"), zaptest.NewLogger(t))
		assert.ErrorIs(t, s.Save(cctx, sampleSession()), context.Canceled)
		_, err := s.Load(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
