package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/cua-agent/agent"
	"github.com/playwright-community/playwright-go"
)

type playwrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// connect attaches Playwright to the remote browser over CDP. Only the driver
// is installed; the browser binaries live on the remote side.
func (d *playwrightDriver) connect(ctx context.Context, cdpURL string, settle time.Duration) (agent.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := &playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	d.pw = pw

	timeout := float64(settle.Milliseconds())
	browser, err := pw.Chromium.ConnectOverCDP(cdpURL, playwright.BrowserTypeConnectOverCDPOptions{
		Timeout: playwright.Float(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect over cdp: %w", err)
	}
	d.browser = browser

	var bctx playwright.BrowserContext
	if contexts := browser.Contexts(); len(contexts) > 0 {
		bctx = contexts[0]
	} else if bctx, err = browser.NewContext(); err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = bctx.NewPage(); err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(timeout)
	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	}); err != nil {
		return nil, fmt.Errorf("page did not settle within %s: %w", settle, err)
	}

	return &playwrightPage{page: page}, nil
}

func (d *playwrightDriver) close() error {
	var errs []error
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("browser: %w", err))
		}
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}

// playwrightPage implements agent.Page on a Playwright page. Playwright calls
// are bounded by the page's default timeout rather than ctx.
type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) URL(ctx context.Context) (string, error) {
	return p.page.URL(), nil
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

func (p *playwrightPage) GoBack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.GoBack()
	return err
}

func (p *playwrightPage) GoForward(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.GoForward()
	return err
}

func (p *playwrightPage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
}

func (p *playwrightPage) Viewport(ctx context.Context) (int, int, error) {
	if size := p.page.ViewportSize(); size != nil {
		return size.Width, size.Height, nil
	}
	// Pages attached over CDP often have no emulated viewport.
	v, err := p.page.Evaluate(`() => [window.innerWidth, window.innerHeight]`)
	if err != nil {
		return 0, 0, err
	}
	dims, ok := v.([]interface{})
	if !ok || len(dims) != 2 {
		return 0, 0, errors.New("unexpected viewport result")
	}
	w, wok := toInt(dims[0])
	h, hok := toInt(dims[1])
	if !wok || !hok {
		return 0, 0, errors.New("unexpected viewport result")
	}
	return w, h, nil
}

func (p *playwrightPage) Click(ctx context.Context, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Mouse().Click(float64(x), float64(y))
}

func (p *playwrightPage) Hover(ctx context.Context, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Mouse().Move(float64(x), float64(y))
}

func (p *playwrightPage) Type(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Keyboard().Type(text)
}

func (p *playwrightPage) Press(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mods, key := splitChord(keys)
	if key == "" {
		return errors.New("no key to press")
	}
	return p.page.Keyboard().Press(strings.Join(append(mods, key), "+"))
}

func (p *playwrightPage) Scroll(ctx context.Context, x, y, deltaX, deltaY int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Mouse().Move(float64(x), float64(y)); err != nil {
		return err
	}
	return p.page.Mouse().Wheel(float64(deltaX), float64(deltaY))
}

func (p *playwrightPage) Drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mouse := p.page.Mouse()
	if err := mouse.Move(float64(fromX), float64(fromY)); err != nil {
		return err
	}
	if err := mouse.Down(); err != nil {
		return err
	}
	if err := mouse.Move(float64(toX), float64(toY), playwright.MouseMoveOptions{
		Steps: playwright.Int(10),
	}); err != nil {
		return err
	}
	return mouse.Up()
}

func (p *playwrightPage) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.InnerText("body")
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
