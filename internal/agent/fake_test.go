package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/sgurov/browserflow/internal/browser"
	"github.com/sgurov/browserflow/internal/config"
	"github.com/sgurov/browserflow/internal/llm"
)

func testConfig() config.Settings {
	return config.Settings{
		BrowserWidth:     800,
		BrowserHeight:    600,
		ScreenshotMaxDim: 1568,
		MaxSteps:         10,
		StepDelay:        time.Millisecond,
		SettleDelay:      time.Millisecond,
	}
}

func testCapturer() *browser.Capturer {
	return browser.NewCapturer(testConfig(), zerolog.Nop())
}

// fakeHandle is a located element with a scripted match count.
type fakeHandle struct {
	drv      *fakeDriver
	key      string
	count    int
	clickErr error
	fillErr  error
}

func (h *fakeHandle) Count() (int, error) { return h.count, nil }

func (h *fakeHandle) Click(time.Duration) error {
	if h.clickErr != nil {
		return h.clickErr
	}
	h.drv.record("handle.click " + h.key)
	return nil
}

func (h *fakeHandle) Fill(text string) error {
	if h.fillErr != nil {
		return h.fillErr
	}
	h.drv.record("fill " + text)
	return nil
}

// fakeDriver records every browser operation as a printable call string.
// Locators hit the elements map; anything unregistered reports zero
// matches.
type fakeDriver struct {
	mu       sync.Mutex
	calls    []string
	elements map[string]*fakeHandle

	navErr error
	onType func(text string)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{elements: make(map[string]*fakeHandle)}
}

// addElement registers a locatable element under a strategy key such as
// "label:To" or "role:button:Send".
func (d *fakeDriver) addElement(key string) *fakeHandle {
	h := &fakeHandle{drv: d, key: key, count: 1}
	d.elements[key] = h
	return h
}

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *fakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *fakeDriver) countCalls(prefix string) int {
	n := 0
	for _, c := range d.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (d *fakeDriver) Close(context.Context) error { return nil }

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	if d.navErr != nil {
		return d.navErr
	}
	d.record("navigate " + url)
	return nil
}

func (d *fakeDriver) Click(_ context.Context, x, y float64, button string, count int) error {
	d.record(fmt.Sprintf("click %s x%d (%.0f,%.0f)", button, count, x, y))
	return nil
}

func (d *fakeDriver) MoveMouse(_ context.Context, x, y float64) error {
	d.record(fmt.Sprintf("move (%.0f,%.0f)", x, y))
	return nil
}

func (d *fakeDriver) MouseDown(context.Context) error { d.record("mousedown"); return nil }
func (d *fakeDriver) MouseUp(context.Context) error   { d.record("mouseup"); return nil }

func (d *fakeDriver) Wheel(_ context.Context, dx, dy float64) error {
	d.record(fmt.Sprintf("wheel (%.0f,%.0f)", dx, dy))
	return nil
}

func (d *fakeDriver) TypeText(_ context.Context, text string) error {
	if d.onType != nil {
		d.onType(text)
	}
	d.record("type " + text)
	return nil
}

func (d *fakeDriver) PressKey(_ context.Context, key string) error {
	d.record("press " + key)
	return nil
}

func (d *fakeDriver) KeyDown(_ context.Context, key string) error {
	d.record("keydown " + key)
	return nil
}

func (d *fakeDriver) KeyUp(_ context.Context, key string) error {
	d.record("keyup " + key)
	return nil
}

func (d *fakeDriver) Screenshot(context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (d *fakeDriver) locate(key string) browser.Handle {
	if h, ok := d.elements[key]; ok {
		return h
	}
	return &fakeHandle{drv: d, key: key}
}

func (d *fakeDriver) LocateRole(role, name string) browser.Handle {
	return d.locate("role:" + role + ":" + name)
}

func (d *fakeDriver) LocateLabel(label string) browser.Handle {
	return d.locate("label:" + label)
}

func (d *fakeDriver) LocatePlaceholder(placeholder string) browser.Handle {
	return d.locate("placeholder:" + placeholder)
}

func (d *fakeDriver) LocateText(text string) browser.Handle {
	return d.locate("text:" + text)
}

func (d *fakeDriver) URL() string { return "about:blank" }

func (d *fakeDriver) SaveState(context.Context, string) error { return nil }

func (d *fakeDriver) Page() playwright.Page { return nil }

// fakeClient replays scripted replies; the last one repeats if the loop
// asks for more.
type fakeClient struct {
	replies []llm.Reply
	err     error

	mu       sync.Mutex
	sends    int
	lastSent []llm.Message
}

func (c *fakeClient) Send(_ context.Context, messages []llm.Message, _ string) (llm.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSent = messages
	if c.err != nil {
		return llm.Reply{}, c.err
	}
	i := c.sends
	if i >= len(c.replies) {
		i = len(c.replies) - 1
	}
	c.sends++
	return c.replies[i], nil
}

func (c *fakeClient) Name() string { return "fake" }

func clickAction(id string, x, y int) llm.Action {
	return llm.Action{ID: id, Name: "left_click", Coordinate: []int{x, y}}
}
