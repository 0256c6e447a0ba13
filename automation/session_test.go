package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hairizuanbinnoorazman/cua-agent/agent"
	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPage struct {
	agent.Page
	url  string
	text string
}

func (p *stubPage) URL(ctx context.Context) (string, error)  { return p.url, nil }
func (p *stubPage) Text(ctx context.Context) (string, error) { return p.text, nil }

type fakeDriver struct {
	page       agent.Page
	connectErr error
	closeErr   error
	connects   int
	closes     int
	gotURL     string
	gotSettle  time.Duration
}

func (d *fakeDriver) connect(ctx context.Context, cdpURL string, settle time.Duration) (agent.Page, error) {
	d.connects++
	d.gotURL = cdpURL
	d.gotSettle = settle
	if d.connectErr != nil {
		return nil, d.connectErr
	}
	return d.page, nil
}

func (d *fakeDriver) close() error {
	d.closes++
	return d.closeErr
}

func newTestSession(opts Options, d *fakeDriver) *Session {
	s := NewSession(opts, logger.NewTestLogger())
	s.newDriver = func(string) (driver, error) { return d, nil }
	return s
}

func TestNewSession_Defaults(t *testing.T) {
	s := NewSession(Options{CDPURL: "ws://x"}, nil)
	assert.Equal(t, DriverChromedp, s.opts.Driver)
	assert.Equal(t, 30*time.Second, s.opts.SettleTimeout)
	assert.Equal(t, "gpt-4o", s.opts.ExtractModel)
	assert.Nil(t, s.extractor)

	s = NewSession(Options{CDPURL: "ws://x", OpenAIAPIKey: "sk-test"}, nil)
	assert.NotNil(t, s.extractor)
}

func TestSession_Init(t *testing.T) {
	page := &stubPage{url: "about:blank"}
	d := &fakeDriver{page: page}
	s := newTestSession(Options{CDPURL: "wss://cdp.example/session", SettleTimeout: 5 * time.Second}, d)

	assert.Nil(t, s.Page())
	require.NoError(t, s.Init(context.Background()))
	assert.Equal(t, page, s.Page())
	assert.Equal(t, "wss://cdp.example/session", d.gotURL)
	assert.Equal(t, 5*time.Second, d.gotSettle)

	// A second Init reuses the connection.
	require.NoError(t, s.Init(context.Background()))
	assert.Equal(t, 1, d.connects)
}

func TestSession_InitFailures(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		driver  *fakeDriver
		factory func(string) (driver, error)
	}{
		{
			name:   "empty cdp url",
			opts:   Options{},
			driver: &fakeDriver{},
		},
		{
			name:   "connect error",
			opts:   Options{CDPURL: "ws://x"},
			driver: &fakeDriver{connectErr: errors.New("dial tcp: connection refused")},
		},
		{
			name:    "unknown driver",
			opts:    Options{CDPURL: "ws://x", Driver: "selenium"},
			factory: newDriver,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(tt.opts, tt.driver)
			if tt.factory != nil {
				s.newDriver = tt.factory
			}
			err := s.Init(context.Background())
			assert.ErrorIs(t, err, ErrConnection)
			assert.Nil(t, s.Page())
			assert.NoError(t, s.Close())
		})
	}
}

func TestSession_Close(t *testing.T) {
	d := &fakeDriver{page: &stubPage{}}
	s := newTestSession(Options{CDPURL: "ws://x"}, d)
	require.NoError(t, s.Init(context.Background()))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, d.closes)
	assert.Nil(t, s.Page())
	assert.ErrorIs(t, s.Init(context.Background()), ErrConnection)
}

func TestSession_CloseError(t *testing.T) {
	d := &fakeDriver{page: &stubPage{}, closeErr: errors.New("broken pipe")}
	s := newTestSession(Options{CDPURL: "ws://x"}, d)
	require.NoError(t, s.Init(context.Background()))

	err := s.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestSession_BuildAgent(t *testing.T) {
	spec := agent.Spec{
		Provider:     agent.ProviderGoogle,
		Model:        "gemini-2.5-computer-use-preview-10-2025",
		Instructions: agent.Instructions("https://www.ycombinator.com/companies"),
		APIKey:       "test-key",
	}

	t.Run("before init", func(t *testing.T) {
		s := newTestSession(Options{CDPURL: "ws://x"}, &fakeDriver{page: &stubPage{}})
		_, err := s.BuildAgent(context.Background(), spec)
		assert.ErrorIs(t, err, ErrConnection)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		s := newTestSession(Options{CDPURL: "ws://x"}, &fakeDriver{page: &stubPage{}})
		require.NoError(t, s.Init(context.Background()))

		other := spec
		other.Provider = "anthropic"
		_, err := s.BuildAgent(context.Background(), other)
		assert.ErrorIs(t, err, agent.ErrUnsupportedProvider)
	})

	t.Run("google", func(t *testing.T) {
		s := newTestSession(Options{CDPURL: "ws://x", OpenAIAPIKey: "sk-test"}, &fakeDriver{page: &stubPage{}})
		require.NoError(t, s.Init(context.Background()))

		executor, err := s.BuildAgent(context.Background(), spec)
		require.NoError(t, err)
		assert.NotNil(t, executor)
	})
}

func TestSession_ExtractWithoutKey(t *testing.T) {
	s := newTestSession(Options{CDPURL: "ws://x"}, &fakeDriver{page: &stubPage{}})
	require.NoError(t, s.Init(context.Background()))

	_, err := s.Extract(context.Background(), "summarise")
	assert.Error(t, err)
}
