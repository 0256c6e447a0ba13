package remotebrowser

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"github.com/onkernel/kernel-go-sdk"
	"github.com/onkernel/kernel-go-sdk/option"
)

// KernelProvider implements Provider on top of the Kernel browsers API.
type KernelProvider struct {
	client kernel.Client
	logger logger.Logger
}

// NewKernelProvider creates a Kernel-backed provider. An empty apiKey leaves
// credential discovery to the SDK (KERNEL_API_KEY); a missing key then surfaces
// as ErrProvisioning on the first Acquire.
func NewKernelProvider(apiKey string, log logger.Logger, opts ...option.RequestOption) *KernelProvider {
	if apiKey != "" {
		opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	}
	return &KernelProvider{
		client: kernel.NewClient(opts...),
		logger: log,
	}
}

// Acquire creates a new Kernel browser.
func (p *KernelProvider) Acquire(ctx context.Context, opts AcquireOptions) (*Session, error) {
	params := kernel.BrowserNewParams{
		Stealth: kernel.Bool(opts.Stealth),
	}
	if opts.InvocationID != "" {
		params.InvocationID = kernel.String(opts.InvocationID)
	}

	resp, err := p.client.Browsers.New(ctx, params)
	if err != nil {
		p.logger.Error(ctx, "failed to create kernel browser", map[string]interface{}{
			"error":         err.Error(),
			"invocation_id": opts.InvocationID,
		})
		return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	if resp.SessionID == "" || resp.CdpWsURL == "" {
		return nil, fmt.Errorf("%w: response missing session id or cdp url", ErrProvisioning)
	}

	p.logger.Info(ctx, "kernel browser created", map[string]interface{}{
		"session_id":    resp.SessionID,
		"invocation_id": opts.InvocationID,
		"stealth":       opts.Stealth,
	})

	return &Session{
		ID:          resp.SessionID,
		CDPURL:      resp.CdpWsURL,
		LiveViewURL: resp.BrowserLiveViewURL,
	}, nil
}

// Release deletes a Kernel browser by session id.
func (p *KernelProvider) Release(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	err := p.client.Browsers.DeleteByID(ctx, sessionID)
	if err != nil {
		var apiErr *kernel.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			p.logger.Warn(ctx, "kernel browser already released", map[string]interface{}{
				"session_id": sessionID,
			})
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRelease, err)
	}

	p.logger.Info(ctx, "kernel browser deleted", map[string]interface{}{
		"session_id": sessionID,
	})
	return nil
}
