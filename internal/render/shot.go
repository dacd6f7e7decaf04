package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	logx "firemon/pkg/logx"
)

// Screenshotter rasterizes an HTML document into a PNG.
type Screenshotter interface {
	Capture(ctx context.Context, html, outPath string, width, height int) error
}

// BrowserConfig configures the headless-browser screenshotter.
type BrowserConfig struct {
	// Bin is the browser binary ("chromium", "google-chrome", ...).
	Bin     string
	Timeout time.Duration
}

// browserShot shells out to a headless browser, the same way the rest of the
// pipeline treats rendering as an external capability.
type browserShot struct {
	cfg BrowserConfig
	log logx.Logger
}

func NewBrowserScreenshotter(cfg BrowserConfig, log logx.Logger) Screenshotter {
	if strings.TrimSpace(cfg.Bin) == "" {
		cfg.Bin = "chromium"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &browserShot{cfg: cfg, log: log}
}

func (s *browserShot) Capture(ctx context.Context, html, outPath string, width, height int) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "firemon-card-*.html")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(html); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, s.cfg.Bin,
		"--headless=new",
		"--disable-gpu",
		"--hide-scrollbars",
		fmt.Sprintf("--window-size=%d,%d", width, height),
		"--screenshot="+outPath,
		"file://"+tmp.Name(),
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("screenshot: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("screenshot: no output produced: %w", err)
	}
	s.log.Debug("screenshot captured", logx.String("path", outPath))
	return nil
}
