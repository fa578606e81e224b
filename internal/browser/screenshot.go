package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/sgurov/browserflow/internal/config"
)

// Capturer takes browser screenshots and downscales them to the vision
// model's pixel budget. The model sees (and returns coordinates in) the
// scaled space; ToScreen maps them back to viewport pixels.
type Capturer struct {
	scale        float64
	ScaledWidth  int
	ScaledHeight int
	dir          string
	logger       zerolog.Logger
}

func NewCapturer(cfg config.Settings, logger zerolog.Logger) *Capturer {
	scale := scaleFactor(cfg.BrowserWidth, cfg.BrowserHeight, cfg.ScreenshotMaxDim)
	c := &Capturer{
		scale:        scale,
		ScaledWidth:  int(float64(cfg.BrowserWidth) * scale),
		ScaledHeight: int(float64(cfg.BrowserHeight) * scale),
		dir:          cfg.ScreenshotsDir,
		logger:       logger,
	}
	logger.Info().
		Float64("scale", scale).
		Int("width", c.ScaledWidth).
		Int("height", c.ScaledHeight).
		Msg("screenshot scale computed")
	return c
}

// scaleFactor fits the viewport inside the vision API's image constraints:
// longest edge at most maxDim pixels and roughly 1.15 megapixels total.
func scaleFactor(width, height, maxDim int) float64 {
	longEdge := width
	if height > longEdge {
		longEdge = height
	}
	edgeScale := float64(maxDim) / float64(longEdge)
	pixelScale := math.Sqrt(1_150_000 / float64(width*height))
	scale := math.Min(edgeScale, pixelScale)
	if scale > 1 {
		return 1
	}
	return scale
}

// ToScreen converts coordinates from scaled screenshot space to viewport
// space.
func (c *Capturer) ToScreen(x, y int) (float64, float64) {
	return float64(x) / c.scale, float64(y) / c.scale
}

// Capture takes a screenshot, downscales it, and returns base64 PNG. When
// save is set a timestamped copy is written to the screenshots directory
// for the progress UI; save failures are logged, never fatal.
func (c *Capturer) Capture(ctx context.Context, drv Driver, save bool) (string, error) {
	data, err := c.CaptureBytes(ctx, drv)
	if err != nil {
		return "", err
	}
	if save {
		if err := c.write(data); err != nil {
			c.logger.Debug().Err(err).Msg("screenshot save failed")
		}
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// CaptureBytes takes a screenshot and returns scaled raw PNG bytes.
func (c *Capturer) CaptureBytes(ctx context.Context, drv Driver) ([]byte, error) {
	raw, err := drv.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	if c.scale >= 1 {
		return raw, nil
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, c.ScaledWidth, c.ScaledHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Capturer) write(data []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("screenshot_%s.png", time.Now().UTC().Format("20060102_150405"))
	return os.WriteFile(filepath.Join(c.dir, name), data, 0o644)
}
