package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	logx "firemon/pkg/logx"
)

const userAgent = "firemon/1.0"

// FetchError wraps any failure to obtain or decode a snapshot. The coordinator
// treats it as "retry the whole cycle later, state untouched".
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// Config configures the situation feed client.
type Config struct {
	// SituationURL serves the active-incident layer set.
	SituationURL string
	// PerimeterURL serves the mapped perimeter query endpoint.
	PerimeterURL string
	Timeout      time.Duration
}

// Client fetches and normalizes situation snapshots and perimeter geometry.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// Situation feed response shape: layers[0].layerConfigs[0] carries the large
// incident feature set; each feature's attributes is one incident bag.
type situationResponse []struct {
	LayerConfigs []struct {
		FeatureCollection struct {
			FeatureSet struct {
				Features []struct {
					Attributes Attributes `json:"attributes"`
				} `json:"features"`
			} `json:"featureSet"`
		} `json:"featureCollection"`
	} `json:"layerConfigs"`
}

// Fetch retrieves the current snapshot. All failures come back as *FetchError.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	var resp situationResponse
	if err := c.getJSON(ctx, c.cfg.SituationURL, &resp); err != nil {
		return nil, &FetchError{URL: c.cfg.SituationURL, Err: err}
	}
	if len(resp) == 0 || len(resp[0].LayerConfigs) == 0 {
		return nil, &FetchError{URL: c.cfg.SituationURL, Err: errors.New("no layers in response")}
	}

	features := resp[0].LayerConfigs[0].FeatureCollection.FeatureSet.Features
	snap := make(Snapshot, len(features))
	for _, f := range features {
		rec := Normalize(f.Attributes)
		if rec.ID == "" {
			continue
		}
		snap[rec.ID] = rec
	}
	c.log.Debug("snapshot fetched", logx.Int("incidents", len(snap)))
	return snap, nil
}

type perimeterResponse struct {
	Features []struct {
		Attributes struct {
			UniqueFireIdentifier string `json:"uniquefireidentifier"`
		} `json:"attributes"`
		Geometry struct {
			Rings []Ring `json:"rings"`
		} `json:"geometry"`
	} `json:"features"`
}

// Perimeters retrieves the mapped boundary for every incident that has one,
// keyed by incident ID. Missing geometry for an incident is not an error.
func (c *Client) Perimeters(ctx context.Context) (map[string]Perimeter, error) {
	url := c.cfg.PerimeterURL + `?outFields=*&returnGeometry=true&outSR=%7B%22wkid%22%3A+4326%7D&f=json`

	var resp perimeterResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, &FetchError{URL: c.cfg.PerimeterURL, Err: err}
	}

	out := make(map[string]Perimeter, len(resp.Features))
	for _, f := range resp.Features {
		id := f.Attributes.UniqueFireIdentifier
		if id == "" || len(f.Geometry.Rings) == 0 {
			continue
		}
		out[id] = Perimeter{ID: id, Rings: f.Geometry.Rings}
	}
	c.log.Debug("perimeters fetched", logx.Int("count", len(out)))
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
