package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Computer-use actions the model can request, plus the custom extraction function.
const (
	ActionOpenWebBrowser     = "open_web_browser"
	ActionWait5Seconds       = "wait_5_seconds"
	ActionGoBack             = "go_back"
	ActionGoForward          = "go_forward"
	ActionSearch             = "search"
	ActionNavigate           = "navigate"
	ActionClickAt            = "click_at"
	ActionHoverAt            = "hover_at"
	ActionTypeTextAt         = "type_text_at"
	ActionKeyCombination     = "key_combination"
	ActionScrollDocument     = "scroll_document"
	ActionScrollAt           = "scroll_at"
	ActionDragAndDrop        = "drag_and_drop"
	ActionExtractPageContent = "extract_page_content"
)

const (
	// gridSize is the extent of the model's normalised coordinate space on each axis.
	gridSize = 1000

	defaultScrollMagnitude = 800
	searchURL              = "https://www.google.com"
)

var errUnknownAction = errors.New("unknown action")

// perform relays one model function call to the page and returns extra
// fields for the function response.
func (a *Agent) perform(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	switch name {
	case ActionOpenWebBrowser:
		return nil, nil

	case ActionWait5Seconds:
		return nil, sleep(ctx, a.waitDuration)

	case ActionGoBack:
		return nil, a.page.GoBack(ctx)

	case ActionGoForward:
		return nil, a.page.GoForward(ctx)

	case ActionSearch:
		return nil, a.page.Goto(ctx, searchURL)

	case ActionNavigate:
		url, err := argString(args, "url")
		if err != nil {
			return nil, err
		}
		return nil, a.page.Goto(ctx, normalizeURL(url))

	case ActionClickAt:
		x, y, err := a.point(ctx, args, "x", "y")
		if err != nil {
			return nil, err
		}
		return nil, a.page.Click(ctx, x, y)

	case ActionHoverAt:
		x, y, err := a.point(ctx, args, "x", "y")
		if err != nil {
			return nil, err
		}
		return nil, a.page.Hover(ctx, x, y)

	case ActionTypeTextAt:
		return nil, a.typeTextAt(ctx, args)

	case ActionKeyCombination:
		keys, err := argString(args, "keys")
		if err != nil {
			return nil, err
		}
		return nil, a.page.Press(ctx, strings.Split(keys, "+")...)

	case ActionScrollDocument:
		return nil, a.scrollDocument(ctx, args)

	case ActionScrollAt:
		return nil, a.scrollAt(ctx, args)

	case ActionDragAndDrop:
		fromX, fromY, err := a.point(ctx, args, "x", "y")
		if err != nil {
			return nil, err
		}
		toX, toY, err := a.point(ctx, args, "destination_x", "destination_y")
		if err != nil {
			return nil, err
		}
		return nil, a.page.Drag(ctx, fromX, fromY, toX, toY)

	case ActionExtractPageContent:
		if a.extractor == nil {
			return nil, fmt.Errorf("%w: %s", errUnknownAction, name)
		}
		instruction, err := argString(args, "instruction")
		if err != nil {
			return nil, err
		}
		extraction, err := a.extractor.Extract(ctx, instruction)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"extraction": extraction}, nil

	default:
		return nil, fmt.Errorf("%w: %s", errUnknownAction, name)
	}
}

func (a *Agent) typeTextAt(ctx context.Context, args map[string]interface{}) error {
	x, y, err := a.point(ctx, args, "x", "y")
	if err != nil {
		return err
	}
	text, err := argString(args, "text")
	if err != nil {
		return err
	}

	if err := a.page.Click(ctx, x, y); err != nil {
		return err
	}
	if argBool(args, "clear_before_typing", true) {
		if err := a.page.Press(ctx, "Control", "a"); err != nil {
			return err
		}
		if err := a.page.Press(ctx, "Delete"); err != nil {
			return err
		}
	}
	if err := a.page.Type(ctx, text); err != nil {
		return err
	}
	if argBool(args, "press_enter", true) {
		return a.page.Press(ctx, "Enter")
	}
	return nil
}

func (a *Agent) scrollDocument(ctx context.Context, args map[string]interface{}) error {
	direction, err := argString(args, "direction")
	if err != nil {
		return err
	}
	width, height, err := a.page.Viewport(ctx)
	if err != nil {
		return err
	}
	dx, dy, err := scrollDelta(direction, width, height)
	if err != nil {
		return err
	}
	return a.page.Scroll(ctx, width/2, height/2, dx, dy)
}

func (a *Agent) scrollAt(ctx context.Context, args map[string]interface{}) error {
	x, y, err := a.point(ctx, args, "x", "y")
	if err != nil {
		return err
	}
	direction, err := argString(args, "direction")
	if err != nil {
		return err
	}
	magnitude := defaultScrollMagnitude
	if _, ok := args["magnitude"]; ok {
		if magnitude, err = argInt(args, "magnitude"); err != nil {
			return err
		}
	}

	width, height, err := a.page.Viewport(ctx)
	if err != nil {
		return err
	}
	dx, dy, err := scrollDelta(direction, denormalize(magnitude, width), denormalize(magnitude, height))
	if err != nil {
		return err
	}
	return a.page.Scroll(ctx, x, y, dx, dy)
}

// point reads a normalised coordinate pair and scales it to the viewport.
func (a *Agent) point(ctx context.Context, args map[string]interface{}, xKey, yKey string) (int, int, error) {
	x, err := argInt(args, xKey)
	if err != nil {
		return 0, 0, err
	}
	y, err := argInt(args, yKey)
	if err != nil {
		return 0, 0, err
	}
	width, height, err := a.page.Viewport(ctx)
	if err != nil {
		return 0, 0, err
	}
	return denormalize(x, width), denormalize(y, height), nil
}

func denormalize(v, extent int) int {
	return int(math.Round(float64(v) * float64(extent) / gridSize))
}

// scrollDelta returns the wheel delta for a direction; xAmount/yAmount are pixel magnitudes.
func scrollDelta(direction string, xAmount, yAmount int) (int, int, error) {
	switch strings.ToLower(direction) {
	case "up":
		return 0, -yAmount, nil
	case "down":
		return 0, yAmount, nil
	case "left":
		return -xAmount, 0, nil
	case "right":
		return xAmount, 0, nil
	default:
		return 0, 0, fmt.Errorf("invalid scroll direction %q", direction)
	}
}

func normalizeURL(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "about:") {
		return url
	}
	return "https://" + url
}

func argString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func argInt(args map[string]interface{}, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		return int(math.Round(n)), nil
	case float32:
		return int(math.Round(float64(n))), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
}

func argBool(args map[string]interface{}, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
