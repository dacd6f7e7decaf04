package render

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"firemon/internal/feed"
	logx "firemon/pkg/logx"
)

// RenderRequest asks for one map image of a fire perimeter.
type RenderRequest struct {
	OutPath string
	Rings   []feed.Ring
	Width   int
	Height  int
	// MaxZoom caps the computed zoom; 0 means no cap.
	MaxZoom int
	// Detail selects the close-up style (street tiles, perimeter outline)
	// over the wide terrain style (center marker only).
	Detail bool
}

// RenderResult reports where the map ended up centered.
type RenderResult struct {
	Lat  float64
	Lon  float64
	Zoom int
}

// MapRenderer turns perimeter rings into a map image on disk.
type MapRenderer interface {
	Render(ctx context.Context, req RenderRequest) (RenderResult, error)
}

// StaticMapConfig configures the HTTP static-map service client.
type StaticMapConfig struct {
	// BaseURL of a staticmap-style service, e.g. "http://127.0.0.1:8065/render".
	BaseURL string
	Timeout time.Duration
}

// staticMapClient renders via an external static-map HTTP service: it
// computes center and zoom from the perimeter bounds, asks the service for a
// PNG, and writes it to the requested path.
type staticMapClient struct {
	cfg  StaticMapConfig
	http *http.Client
	log  logx.Logger
}

func NewStaticMapClient(cfg StaticMapConfig, log logx.Logger) (MapRenderer, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("maps.base_url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &staticMapClient{cfg: cfg, http: &http.Client{Timeout: timeout}, log: log}, nil
}

func (c *staticMapClient) Render(ctx context.Context, req RenderRequest) (RenderResult, error) {
	if len(req.Rings) == 0 {
		return RenderResult{}, fmt.Errorf("render: no perimeter rings")
	}

	lat, lon := ringsCenter(req.Rings)
	zoom := fitZoom(req.Rings, req.Width, req.Height)
	if req.MaxZoom > 0 && zoom > req.MaxZoom {
		zoom = req.MaxZoom
	}

	q := url.Values{}
	q.Set("center", fmt.Sprintf("%.6f,%.6f", lat, lon))
	q.Set("zoom", fmt.Sprintf("%d", zoom))
	q.Set("size", fmt.Sprintf("%dx%d", req.Width, req.Height))
	if req.Detail {
		// Close-up: draw the perimeter outline.
		for _, ring := range req.Rings {
			q.Add("path", encodeRing(ring))
		}
		q.Set("maptype", "osm")
	} else {
		// Wide view: a marker at the centroid reads better than a tiny outline.
		q.Set("markers", fmt.Sprintf("%.6f,%.6f,red", lat, lon))
		q.Set("maptype", "terrain")
	}

	reqURL := c.cfg.BaseURL + "?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return RenderResult{}, err
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return RenderResult{}, fmt.Errorf("map render: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return RenderResult{}, fmt.Errorf("map render: unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(req.OutPath), 0o755); err != nil {
		return RenderResult{}, err
	}
	f, err := os.Create(req.OutPath)
	if err != nil {
		return RenderResult{}, err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(req.OutPath)
		return RenderResult{}, err
	}
	if err := f.Close(); err != nil {
		return RenderResult{}, err
	}

	c.log.Debug("map rendered", logx.String("path", req.OutPath), logx.Int("zoom", zoom))
	return RenderResult{Lat: lat, Lon: lon, Zoom: zoom}, nil
}

const userAgent = "firemon/1.0"

func encodeRing(ring feed.Ring) string {
	var b strings.Builder
	b.WriteString("color:red|weight:3")
	for _, pt := range ring {
		fmt.Fprintf(&b, "|%.6f,%.6f", pt[1], pt[0])
	}
	return b.String()
}

func ringsCenter(rings []feed.Ring) (lat, lon float64) {
	minLat, minLon, maxLat, maxLon := bounds(rings)
	return (minLat + maxLat) / 2, (minLon + maxLon) / 2
}

// fitZoom picks the largest web-mercator zoom at which the perimeter bounds
// (plus padding) fit in the requested image.
func fitZoom(rings []feed.Ring, width, height int) int {
	minLat, minLon, maxLat, maxLon := bounds(rings)

	const tile = 256.0
	const padding = 128.0
	usableW := float64(width) - 2*padding
	usableH := float64(height) - 2*padding
	if usableW < tile {
		usableW = tile
	}
	if usableH < tile {
		usableH = tile
	}

	for zoom := 18; zoom >= 1; zoom-- {
		scale := tile * math.Exp2(float64(zoom))
		w := (maxLon - minLon) / 360.0 * scale
		h := math.Abs(mercY(maxLat)-mercY(minLat)) * scale
		if w <= usableW && h <= usableH {
			return zoom
		}
	}
	return 1
}

// mercY maps latitude to [0,1] in web mercator.
func mercY(lat float64) float64 {
	rad := lat * math.Pi / 180
	return 0.5 - math.Log(math.Tan(math.Pi/4+rad/2))/(2*math.Pi)
}

func bounds(rings []feed.Ring) (minLat, minLon, maxLat, maxLon float64) {
	minLat, minLon = math.MaxFloat64, math.MaxFloat64
	maxLat, maxLon = -math.MaxFloat64, -math.MaxFloat64
	for _, ring := range rings {
		for _, pt := range ring {
			lon, lat := pt[0], pt[1]
			minLat = math.Min(minLat, lat)
			maxLat = math.Max(maxLat, lat)
			minLon = math.Min(minLon, lon)
			maxLon = math.Max(maxLon, lon)
		}
	}
	return
}
