package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hairizuanbinnoorazman/cua-agent/action"
	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"github.com/hairizuanbinnoorazman/cua-agent/remotebrowser"
	"github.com/hairizuanbinnoorazman/cua-agent/runner"
	"github.com/hairizuanbinnoorazman/cua-agent/taskrun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	res  runner.Result
	err  error
	invs []runner.Invocation
}

func (s *stubRunner) Run(ctx context.Context, inv runner.Invocation) (runner.Result, error) {
	s.invs = append(s.invs, inv)
	return s.res, s.err
}

// countingBuilder returns r and counts how often it was asked to build.
func countingBuilder(r taskRunner, calls *int, cleaned *int) runnerBuilder {
	return func(ctx context.Context, cfg *Config, log logger.Logger) (taskRunner, taskrun.Store, func(), error) {
		*calls++
		return r, nil, func() { *cleaned++ }, nil
	}
}

func TestExecuteLocally_MissingCredentialNeverBuildsRunner(t *testing.T) {
	for _, missing := range []string{"google", "openai"} {
		t.Run(missing, func(t *testing.T) {
			cfg := validConfig()
			if missing == "google" {
				cfg.Credentials.GoogleAPIKey = ""
			} else {
				cfg.Credentials.OpenAIAPIKey = ""
			}

			var calls, cleaned int
			err := executeLocally(context.Background(), cfg, logger.NewTestLogger(), countingBuilder(&stubRunner{}, &calls, &cleaned))

			assert.ErrorIs(t, err, ErrConfiguration)
			assert.Equal(t, 0, calls)
		})
	}
}

func TestExecuteLocally(t *testing.T) {
	tests := []struct {
		name    string
		runner  *stubRunner
		wantErr error
	}{
		{
			name:   "success exits cleanly",
			runner: &stubRunner{res: runner.Result{Success: true, Result: "Found Kernel's page; draft: ..."}},
		},
		{
			name:    "failed result",
			runner:  &stubRunner{res: runner.Result{}},
			wantErr: ErrTaskFailed,
		},
		{
			name:    "provisioning error",
			runner:  &stubRunner{err: remotebrowser.ErrProvisioning},
			wantErr: remotebrowser.ErrProvisioning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls, cleaned int
			log := logger.NewTestLogger()
			err := executeLocally(context.Background(), validConfig(), log, countingBuilder(tt.runner, &calls, &cleaned))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, calls)
			assert.Equal(t, 1, cleaned)
			require.Len(t, tt.runner.invs, 1)
			assert.Equal(t, runner.Invocation{}, tt.runner.invs[0])
		})
	}
}

func TestExecuteLocally_BuildError(t *testing.T) {
	build := func(ctx context.Context, cfg *Config, log logger.Logger) (taskRunner, taskrun.Store, func(), error) {
		return nil, nil, func() {}, errors.New("failed to open run history")
	}
	err := executeLocally(context.Background(), validConfig(), logger.NewTestLogger(), build)
	assert.EqualError(t, err, "failed to open run history")
}

func TestNewActionHandler(t *testing.T) {
	cfg := validConfig()
	cfg.App = AppConfig{Name: "go-google-cua-agent", Action: "google-cua-agent-task"}
	cfg.Server.MaxConcurrentActions = 1

	r := &stubRunner{res: runner.Result{Success: true, Result: "Found Kernel's page; draft: ..."}}
	var calls, cleaned int
	srv, cleanup, err := newActionHandler(context.Background(), cfg, logger.NewTestLogger(), countingBuilder(r, &calls, &cleaned))
	require.NoError(t, err)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/apps/go-google-cua-agent/actions/google-cua-agent-task", strings.NewReader(`{}`))
	req.Header.Set(action.InvocationIDHeader, "inv-42")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"result":"Found Kernel's page; draft: ..."}`, w.Body.String())
	require.Len(t, r.invs, 1)
	assert.Equal(t, "inv-42", r.invs[0].InvocationID)
}

func TestBuildRunner_History(t *testing.T) {
	cfg := validConfig()
	cfg.History = HistoryConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "runs.db"), MaxOpenConns: 1}
	cfg.Artifacts = ArtifactsConfig{Type: "local", BaseDir: t.TempDir()}

	r, store, cleanup, err := buildRunner(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, r)
	require.NotNil(t, store)
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBuildRunner_BadArtifacts(t *testing.T) {
	cfg := validConfig()
	cfg.Artifacts = ArtifactsConfig{Type: "s3"}

	_, _, _, err := buildRunner(context.Background(), cfg, logger.NewTestLogger())
	assert.Error(t, err)
}
