// Package automation attaches to a running remote browser over CDP and builds
// computer-use agents bound to its page.
package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hairizuanbinnoorazman/cua-agent/agent"
	"github.com/hairizuanbinnoorazman/cua-agent/logger"
)

// Supported CDP drivers.
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

const (
	defaultSettleTimeout = 30 * time.Second
	defaultExtractModel  = "gpt-4o"
)

// ErrConnection is returned when the session cannot attach to the remote browser.
var ErrConnection = errors.New("automation session connection failed")

// Options configures a Session.
type Options struct {
	// CDPURL is the websocket endpoint of the remote browser.
	CDPURL string

	// Driver is DriverChromedp (default) or DriverPlaywright.
	Driver string

	// SettleTimeout bounds waiting for the page to become ready.
	SettleTimeout time.Duration

	// ExtractModel is the OpenAI model used for page understanding.
	ExtractModel string

	// OpenAIAPIKey enables extract_page_content when set.
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// driver is a CDP connection that hands out the browser's active page.
type driver interface {
	connect(ctx context.Context, cdpURL string, settle time.Duration) (agent.Page, error)
	close() error
}

// Session is an automation session attached to one remote browser.
type Session struct {
	opts      Options
	logger    logger.Logger
	extractor *extractor
	newDriver func(name string) (driver, error)

	mu     sync.Mutex
	driver driver
	page   agent.Page
	closed bool
}

// NewSession creates a session. Nothing is connected until Init.
func NewSession(opts Options, log logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Driver == "" {
		opts.Driver = DriverChromedp
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = defaultSettleTimeout
	}
	if opts.ExtractModel == "" {
		opts.ExtractModel = defaultExtractModel
	}

	s := &Session{
		opts:      opts,
		logger:    log.WithField("component", "automation"),
		newDriver: newDriver,
	}
	if opts.OpenAIAPIKey != "" {
		s.extractor = newExtractor(opts.OpenAIAPIKey, opts.OpenAIBaseURL, opts.ExtractModel)
	}
	return s
}

func newDriver(name string) (driver, error) {
	switch strings.ToLower(name) {
	case DriverChromedp:
		return &chromedpDriver{}, nil
	case DriverPlaywright:
		return &playwrightDriver{}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", name)
	}
}

// Init attaches to the remote browser and selects its first page.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: session is closed", ErrConnection)
	}
	if s.page != nil {
		return nil
	}
	if s.opts.CDPURL == "" {
		return fmt.Errorf("%w: cdp url is empty", ErrConnection)
	}

	d, err := s.newDriver(s.opts.Driver)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	s.driver = d

	page, err := d.connect(ctx, s.opts.CDPURL, s.opts.SettleTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	s.page = page

	s.logger.Info(ctx, "automation session attached", map[string]interface{}{
		"driver": s.opts.Driver,
	})
	return nil
}

// Page returns the current page, or nil before a successful Init.
func (s *Session) Page() agent.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// BuildAgent creates a computer-use agent bound to the current page.
func (s *Session) BuildAgent(ctx context.Context, spec agent.Spec) (agent.Executor, error) {
	page := s.Page()
	if page == nil {
		return nil, fmt.Errorf("%w: session is not initialized", ErrConnection)
	}
	if spec.Provider != agent.ProviderGoogle {
		return nil, fmt.Errorf("%w: %q", agent.ErrUnsupportedProvider, spec.Provider)
	}

	var modelOpts []agent.GeminiOption
	var agentOpts []agent.Option
	if s.extractor != nil {
		modelOpts = append(modelOpts, agent.WithExtraction())
		agentOpts = append(agentOpts, agent.WithExtractor(s))
	}

	model, err := agent.NewGeminiModel(ctx, spec, modelOpts...)
	if err != nil {
		return nil, err
	}
	return agent.New(model, page, s.logger, agentOpts...), nil
}

// Extract answers instruction about the current page with the page-understanding model.
func (s *Session) Extract(ctx context.Context, instruction string) (string, error) {
	if s.extractor == nil {
		return "", errors.New("page extraction is not configured")
	}
	page := s.Page()
	if page == nil {
		return "", fmt.Errorf("%w: session is not initialized", ErrConnection)
	}

	text, err := page.Text(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	url, _ := page.URL(ctx)
	return s.extractor.extract(ctx, url, text, instruction)
}

// Close disconnects from the remote browser without stopping it. It is safe
// to call after a failed Init and more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.page = nil

	if s.driver == nil {
		return nil
	}
	if err := s.driver.close(); err != nil {
		return fmt.Errorf("failed to close %s driver: %w", s.opts.Driver, err)
	}
	return nil
}
