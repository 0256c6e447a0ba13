package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/hairizuanbinnoorazman/cua-agent/agent"
)

type chromedpDriver struct {
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

// connect attaches to the browser's first existing page target, or opens one.
func (d *chromedpDriver) connect(ctx context.Context, cdpURL string, settle time.Duration) (agent.Page, error) {
	// The connection must outlive ctx; Close tears it down.
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), cdpURL, chromedp.NoModifyURL)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	d.cancelAlloc = cancelAlloc
	d.cancelBrowser = cancelBrowser

	stop := context.AfterFunc(ctx, cancelBrowser)
	defer stop()

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	pageCtx := browserCtx
	if id, ok := firstPageTarget(targets); ok {
		pageCtx, _ = chromedp.NewContext(browserCtx, chromedp.WithTargetID(id))
	} else {
		pageCtx, _ = chromedp.NewContext(browserCtx)
	}
	if err := chromedp.Run(pageCtx); err != nil {
		return nil, fmt.Errorf("failed to attach to page: %w", err)
	}

	waitCtx, cancelWait := context.WithTimeout(pageCtx, settle)
	defer cancelWait()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("page did not settle within %s: %w", settle, err)
	}

	return &chromedpPage{ctx: pageCtx}, nil
}

func (d *chromedpDriver) close() error {
	if d.cancelBrowser != nil {
		d.cancelBrowser()
	}
	if d.cancelAlloc != nil {
		d.cancelAlloc()
	}
	return nil
}

func firstPageTarget(targets []*target.Info) (target.ID, bool) {
	for _, t := range targets {
		if t.Type == "page" {
			return t.TargetID, true
		}
	}
	return "", false
}

// chromedpPage implements agent.Page on a chromedp target context.
type chromedpPage struct {
	ctx context.Context
}

// run executes actions on the page, cancelling them when ctx ends.
func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) URL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *chromedpPage) Goto(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromedpPage) GoBack(ctx context.Context) error {
	return p.run(ctx, chromedp.NavigateBack())
}

func (p *chromedpPage) GoForward(ctx context.Context) error {
	return p.run(ctx, chromedp.NavigateForward())
}

func (p *chromedpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromedpPage) Viewport(ctx context.Context) (int, int, error) {
	var dims []int
	if err := p.run(ctx, chromedp.Evaluate(`[window.innerWidth, window.innerHeight]`, &dims)); err != nil {
		return 0, 0, err
	}
	if len(dims) != 2 {
		return 0, 0, errors.New("unexpected viewport result")
	}
	return dims[0], dims[1], nil
}

func (p *chromedpPage) Click(ctx context.Context, x, y int) error {
	return p.run(ctx, chromedp.MouseClickXY(float64(x), float64(y)))
}

func (p *chromedpPage) Hover(ctx context.Context, x, y int) error {
	return p.run(ctx, chromedp.MouseEvent(input.MouseMoved, float64(x), float64(y)))
}

func (p *chromedpPage) Type(ctx context.Context, text string) error {
	return p.run(ctx, chromedp.KeyEvent(text))
}

func (p *chromedpPage) Press(ctx context.Context, keys ...string) error {
	mods, key := splitChord(keys)
	if key == "" {
		return errors.New("no key to press")
	}

	var modifiers []input.Modifier
	for _, m := range mods {
		modifiers = append(modifiers, chromedpModifiers[m])
	}
	if k, ok := chromedpKeys[key]; ok {
		key = k
	}
	return p.run(ctx, chromedp.KeyEvent(key, chromedp.KeyModifiers(modifiers...)))
}

func (p *chromedpPage) Scroll(ctx context.Context, x, y, deltaX, deltaY int) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, float64(x), float64(y)).
			WithDeltaX(float64(deltaX)).
			WithDeltaY(float64(deltaY)).
			Do(ctx)
	}))
}

func (p *chromedpPage) Drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	return p.run(ctx,
		chromedp.MouseEvent(input.MouseMoved, float64(fromX), float64(fromY)),
		chromedp.MouseEvent(input.MousePressed, float64(fromX), float64(fromY),
			chromedp.ButtonType(input.Left), chromedp.ClickCount(1)),
		chromedp.MouseEvent(input.MouseMoved, float64(toX), float64(toY),
			chromedp.ButtonType(input.Left)),
		chromedp.MouseEvent(input.MouseReleased, float64(toX), float64(toY),
			chromedp.ButtonType(input.Left), chromedp.ClickCount(1)),
	)
}

func (p *chromedpPage) Text(ctx context.Context) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

var chromedpModifiers = map[string]input.Modifier{
	"Alt":     input.ModifierAlt,
	"Control": input.ModifierCtrl,
	"Meta":    input.ModifierMeta,
	"Shift":   input.ModifierShift,
}

var chromedpKeys = map[string]string{
	"Control":    kb.Control,
	"Meta":       kb.Meta,
	"Alt":        kb.Alt,
	"Shift":      kb.Shift,
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
}
