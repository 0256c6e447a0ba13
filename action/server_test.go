package action

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"github.com/hairizuanbinnoorazman/cua-agent/runner"
	"github.com/hairizuanbinnoorazman/cua-agent/taskrun"
	"github.com/hairizuanbinnoorazman/cua-agent/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	appName    = "go-google-cua-agent"
	actionName = "google-cua-agent-task"
)

func newTestServer(t *testing.T, r TaskRunner, opts ...ServerOption) http.Handler {
	t.Helper()
	s := NewServer(logger.NewTestLogger(), 2, opts...)
	s.Register(NewApp(appName).Action(actionName, TaskHandler(r)))
	return s.Handler()
}

func TestServer_Invoke(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		header     string
		body       string
		runner     *fakeRunner
		wantStatus int
		wantBody   map[string]interface{}
		wantInvID  string
	}{
		{
			name:       "success",
			path:       "/apps/" + appName + "/actions/" + actionName,
			header:     "inv-header",
			runner:     &fakeRunner{res: runner.Result{Success: true, Result: "Found Kernel's page; draft: ..."}},
			wantStatus: http.StatusOK,
			wantBody:   map[string]interface{}{"success": true, "result": "Found Kernel's page; draft: ..."},
			wantInvID:  "inv-header",
		},
		{
			name:       "failure result is still 200",
			path:       "/apps/" + appName + "/actions/" + actionName,
			body:       `{"invocation_id":"inv-body"}`,
			runner:     &fakeRunner{res: runner.Result{}},
			wantStatus: http.StatusOK,
			wantBody:   map[string]interface{}{"success": false, "result": ""},
			wantInvID:  "inv-body",
		},
		{
			name:       "header wins over payload",
			path:       "/apps/" + appName + "/actions/" + actionName,
			header:     "inv-header",
			body:       `{"invocation_id":"inv-body"}`,
			runner:     &fakeRunner{res: runner.Result{Success: true, Result: "ok"}},
			wantStatus: http.StatusOK,
			wantInvID:  "inv-header",
		},
		{
			name:       "unknown app",
			path:       "/apps/other/actions/" + actionName,
			runner:     &fakeRunner{},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown action",
			path:       "/apps/" + appName + "/actions/other",
			runner:     &fakeRunner{},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "bad payload",
			path:       "/apps/" + appName + "/actions/" + actionName,
			body:       `not json`,
			runner:     &fakeRunner{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "runner error",
			path:       "/apps/" + appName + "/actions/" + actionName,
			runner:     &fakeRunner{err: errors.New("remote browser provisioning failed")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, tt.runner)
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set(InvocationIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != nil {
				var got map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				assert.Equal(t, tt.wantBody, got)
			}
			if tt.wantInvID != "" {
				require.Len(t, tt.runner.invs, 1)
				assert.Equal(t, tt.wantInvID, tt.runner.invs[0].InvocationID)
				assert.Equal(t, tt.wantInvID, w.Header().Get(InvocationIDHeader))
			}
		})
	}
}

func TestServer_WithoutInvocationID(t *testing.T) {
	r := &fakeRunner{res: runner.Result{Success: true, Result: "ok"}}
	h := newTestServer(t, r)

	req := httptest.NewRequest(http.MethodPost, "/apps/"+appName+"/actions/"+actionName, strings.NewReader(`{"max_steps":5}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, r.invs, 1)
	assert.Empty(t, r.invs[0].InvocationID)
	assert.Empty(t, w.Header().Get(InvocationIDHeader))

	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}

func TestServer_KeepsCallerRequestID(t *testing.T) {
	h := newTestServer(t, &fakeRunner{res: runner.Result{Success: true, Result: "ok"}})

	req := httptest.NewRequest(http.MethodPost, "/apps/"+appName+"/actions/"+actionName, nil)
	req.Header.Set(RequestIDHeader, "req-7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "req-7", w.Header().Get(RequestIDHeader))
}

type blockingRunner struct {
	active  int32
	maxSeen int32
	release chan struct{}
	started chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, inv runner.Invocation) (runner.Result, error) {
	n := atomic.AddInt32(&b.active, 1)
	for {
		m := atomic.LoadInt32(&b.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&b.maxSeen, m, n) {
			break
		}
	}
	b.started <- struct{}{}
	<-b.release
	atomic.AddInt32(&b.active, -1)
	return runner.Result{Success: true, Result: "ok"}, nil
}

func TestServer_BoundsConcurrentActions(t *testing.T) {
	b := &blockingRunner{release: make(chan struct{}), started: make(chan struct{}, 4)}
	h := newTestServer(t, b)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/apps/"+appName+"/actions/"+actionName, nil)
			h.ServeHTTP(httptest.NewRecorder(), req)
		}()
	}

	// Two slots fill; the other requests wait.
	<-b.started
	<-b.started
	select {
	case <-b.started:
		t.Fatal("more than two actions ran concurrently")
	case <-time.After(50 * time.Millisecond):
	}

	close(b.release)
	wg.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&b.maxSeen))
}

func TestServer_UnknownActionDoesNotWaitForSlot(t *testing.T) {
	b := &blockingRunner{release: make(chan struct{}), started: make(chan struct{}, 2)}
	h := newTestServer(t, b)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/apps/"+appName+"/actions/"+actionName, nil)
			h.ServeHTTP(httptest.NewRecorder(), req)
		}()
	}
	<-b.started
	<-b.started
	defer func() {
		close(b.release)
		wg.Wait()
	}()

	// Both slots are busy; a wait would end in 503 when the context expires.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/apps/"+appName+"/actions/other", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, ctx.Err())
}

func TestServer_Wait(t *testing.T) {
	b := &blockingRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	s := NewServer(logger.NewTestLogger(), 1)
	s.Register(NewApp(appName).Action(actionName, TaskHandler(b)))
	h := s.Handler()

	go func() {
		req := httptest.NewRequest(http.MethodPost, "/apps/"+appName+"/actions/"+actionName, nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-b.started

	waited := make(chan struct{})
	go func() {
		s.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while an action was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(b.release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the action finished")
	}
}

func TestServer_Health(t *testing.T) {
	h := newTestServer(t, &fakeRunner{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestServer_ListApps(t *testing.T) {
	h := newTestServer(t, &fakeRunner{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/apps", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"name":"go-google-cua-agent","actions":["google-cua-agent-task"]}]`, w.Body.String())
}

func TestServer_Runs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &taskrun.Run{})
	store := taskrun.NewGormStore(db, logger.NewTestLogger())

	run := &taskrun.Run{InvocationID: "inv-runs", Result: "draft"}
	require.NoError(t, store.Create(context.Background(), run))

	h := newTestServer(t, &fakeRunner{}, WithRunHistory(store))

	t.Run("list", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs?limit=5", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var got struct {
			Items []taskrun.Run `json:"items"`
			Total int           `json:"total"`
			Limit int           `json:"limit"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, 1, got.Total)
		assert.Equal(t, 5, got.Limit)
		require.Len(t, got.Items, 1)
		assert.Equal(t, run.ID, got.Items[0].ID)
	})

	t.Run("get", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/"+run.ID.String(), nil))
		require.Equal(t, http.StatusOK, w.Code)

		var got taskrun.Run
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "inv-runs", got.InvocationID)
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_RunsDisabled(t *testing.T) {
	h := newTestServer(t, &fakeRunner{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
