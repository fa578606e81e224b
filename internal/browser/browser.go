package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/sgurov/browserflow/internal/config"
)

const defaultNavTimeout = 30 * time.Second

// Driver exposes the browser primitives the replay engines and the action
// executor need. Element-not-found and action-timeout surface as distinct
// wrapped playwright errors.
type Driver interface {
	Close(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, x, y float64, button string, count int) error
	MoveMouse(ctx context.Context, x, y float64) error
	MouseDown(ctx context.Context) error
	MouseUp(ctx context.Context) error
	Wheel(ctx context.Context, dx, dy float64) error
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key string) error
	KeyDown(ctx context.Context, key string) error
	KeyUp(ctx context.Context, key string) error
	Screenshot(ctx context.Context) ([]byte, error)

	// Locator construction is pure; existence is only checked when the
	// returned handle is acted on, within its bounded timeout.
	LocateRole(role, name string) Handle
	LocateLabel(label string) Handle
	LocatePlaceholder(placeholder string) Handle
	LocateText(text string) Handle

	URL() string
	SaveState(ctx context.Context, path string) error
	Page() playwright.Page
}

// Handle is an opaque reference to a located element. Count is a cheap
// existence probe; Click and Fill wait up to their timeout for the element
// to become actionable.
type Handle interface {
	Count() (int, error)
	Click(timeout time.Duration) error
	Fill(text string) error
}

// Launcher owns the playwright lifecycle.
type Launcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewLauncher(ctx context.Context, cfg config.Settings) (*Launcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Launcher{pw: pw, browser: b}, nil
}

// NewDriver opens a browser context and page. If storagePath names an
// existing storage-state file, cookies and localStorage are restored from
// it.
func (l *Launcher) NewDriver(ctx context.Context, cfg config.Settings, storagePath string) (Driver, error) {
	opts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  cfg.BrowserWidth,
			Height: cfg.BrowserHeight,
		},
	}
	if strings.TrimSpace(storagePath) != "" {
		if _, err := os.Stat(storagePath); err == nil {
			opts.StorageStatePath = playwright.String(storagePath)
		}
	}
	bctx, err := l.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(defaultNavTimeout.Milliseconds()))
	return &driver{context: bctx, page: page}, nil
}

func (l *Launcher) Close() error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

type driver struct {
	context playwright.BrowserContext
	page    playwright.Page
}

func (d *driver) Page() playwright.Page { return d.page }

func (d *driver) URL() string { return d.page.URL() }

func (d *driver) Close(ctx context.Context) error {
	_ = ctx
	if d.page != nil {
		_ = d.page.Close()
	}
	if d.context != nil {
		return d.context.Close()
	}
	return nil
}

func (d *driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(defaultNavTimeout.Milliseconds())),
	})
	return wrap(err)
}

func (d *driver) Click(ctx context.Context, x, y float64, button string, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := playwright.MouseClickOptions{}
	switch button {
	case "right":
		opts.Button = playwright.MouseButtonRight
	case "middle":
		opts.Button = playwright.MouseButtonMiddle
	default:
		opts.Button = playwright.MouseButtonLeft
	}
	if count > 1 {
		opts.ClickCount = playwright.Int(count)
	}
	return wrap(d.page.Mouse().Click(x, y, opts))
}

func (d *driver) MoveMouse(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.page.Mouse().Move(x, y))
}

func (d *driver) MouseDown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.page.Mouse().Down())
}

func (d *driver) MouseUp(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.page.Mouse().Up())
}

func (d *driver) Wheel(ctx context.Context, dx, dy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.page.Mouse().Wheel(dx, dy))
}

func (d *driver) TypeText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.page.Keyboard().Type(text))
}

func (d *driver) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.page.Keyboard().Press(key))
}

func (d *driver) KeyDown(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.page.Keyboard().Down(key))
}

func (d *driver) KeyUp(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.page.Keyboard().Up(key))
}

func (d *driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := d.page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	return data, wrap(err)
}

func (d *driver) LocateRole(role, name string) Handle {
	aria := playwright.AriaRole(strings.ToLower(strings.TrimSpace(role)))
	loc := d.page.GetByRole(aria, playwright.PageGetByRoleOptions{Name: name})
	return locatorHandle{loc: loc.First()}
}

func (d *driver) LocateLabel(label string) Handle {
	return locatorHandle{loc: d.page.GetByLabel(label).First()}
}

func (d *driver) LocatePlaceholder(placeholder string) Handle {
	return locatorHandle{loc: d.page.GetByPlaceholder(placeholder).First()}
}

func (d *driver) LocateText(text string) Handle {
	loc := d.page.GetByText(text, playwright.PageGetByTextOptions{
		Exact: playwright.Bool(true),
	})
	return locatorHandle{loc: loc.First()}
}

func (d *driver) SaveState(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.context.StorageState(path)
	return wrap(err)
}

type locatorHandle struct {
	loc playwright.Locator
}

func (h locatorHandle) Count() (int, error) {
	n, err := h.loc.Count()
	return n, wrap(err)
}

func (h locatorHandle) Click(timeout time.Duration) error {
	return wrap(h.loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	}))
}

func (h locatorHandle) Fill(text string) error {
	return wrap(h.loc.Fill(text))
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}
