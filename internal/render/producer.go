// Package render produces one publish-ready artifact per significant change:
// map renders, a templated card, its screenshot, and the resulting queue item.
package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"firemon/internal/diff"
	"firemon/internal/feed"
	"firemon/internal/queue"
	logx "firemon/pkg/logx"
)

// ErrNoPayload means no publishable payload could be formed for the change;
// the task is dropped (but its audit record already exists).
var ErrNoPayload = errors.New("no publishable payload")

// Config configures artifact production.
type Config struct {
	// MediaDir holds intermediate map renders (terrain/, detail/).
	MediaDir string
	// ImageDir holds final card screenshots.
	ImageDir string
	// PostsDir holds rendered post text, one file per change.
	PostsDir string

	// SourceURL is shown on cards and in post text.
	SourceURL string

	// PopulationWeight scales nearby-population exposure into the publish
	// severity. 0 disables the weighting.
	PopulationWeight float64
}

// Producer orchestrates the external rendering steps for one change.
// Expensive work must already be admitted through the gate by the caller.
type Producer struct {
	cfg  Config
	maps MapRenderer
	shot Screenshotter
	tmpl *templates
	log  logx.Logger
}

func NewProducer(cfg Config, maps MapRenderer, shot Screenshotter, log logx.Logger) (*Producer, error) {
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Producer{cfg: cfg, maps: maps, shot: shot, tmpl: tmpl, log: log}, nil
}

// Produce builds the publish payload for one change.
//
// Each step degrades rather than aborts: a failed map render means no map,
// a failed screenshot means a text-only item. Only a change with no usable
// text at all is dropped (ErrNoPayload).
func (p *Producer) Produce(ctx context.Context, c diff.Change, perimeter []feed.Ring) (queue.Item, error) {
	updateID := diff.UpdateID(c)
	log := p.log.With(logx.String("update", updateID), logx.String("incident", c.ID))

	data := cardData{
		Current:   c.Current,
		Previous:  c.Previous,
		New:       c.New(),
		Fields:    c.Fields,
		MapCredit: mapCredit,
		SourceURL: p.cfg.SourceURL,
	}

	// Map renders: wide terrain view and close-up detail view, each
	// independently failable.
	if len(perimeter) > 0 && p.maps != nil {
		terrainPath := filepath.Join(p.cfg.MediaDir, "terrain", "map-terrain-"+updateID+".png")
		if _, err := p.maps.Render(ctx, RenderRequest{
			OutPath: terrainPath, Rings: perimeter,
			Width: 800, Height: 800, MaxZoom: 6, Detail: false,
		}); err != nil {
			log.Warn("terrain render failed; continuing without", logx.Err(err))
		} else {
			data.TerrainImage = fileBase64(terrainPath)
		}

		detailPath := filepath.Join(p.cfg.MediaDir, "detail", "map-detail-"+updateID+".png")
		if _, err := p.maps.Render(ctx, RenderRequest{
			OutPath: detailPath, Rings: perimeter,
			Width: 1024, Height: 550, MaxZoom: 14, Detail: true,
		}); err != nil {
			log.Warn("detail render failed; continuing without", logx.Err(err))
		} else {
			data.DetailImage = fileBase64(detailPath)
		}
	} else {
		log.Debug("no perimeter; card will have no maps")
	}

	// Post text is the minimum viable payload.
	postText, err := p.tmpl.renderPost(data)
	if err != nil {
		return queue.Item{}, fmt.Errorf("%w: %v", ErrNoPayload, err)
	}
	if err := p.writePostText(updateID, postText); err != nil {
		log.Warn("post text not persisted", logx.Err(err))
	}

	item := queue.Item{
		ID:        updateID,
		Text:      postText,
		Priority:  queue.EncodeKey(c.Magnitude(p.cfg.PopulationWeight)),
		CreatedAt: time.Now().UTC(),
	}
	if c.Current.Latitude != 0 || c.Current.Longitude != 0 {
		item.Coordinates = &queue.LatLon{Lat: c.Current.Latitude, Lon: c.Current.Longitude}
	}

	// Card screenshot; a failure degrades to a text-only post.
	cardHTML, err := p.tmpl.renderCard(data)
	if err != nil {
		log.Warn("card template failed; posting text only", logx.Err(err))
		return item, nil
	}
	cardPath := filepath.Join(p.cfg.ImageDir, "card-"+updateID+".png")
	if p.shot == nil {
		return item, nil
	}
	if err := p.shot.Capture(ctx, cardHTML, cardPath, 2048, 1082); err != nil {
		log.Warn("card screenshot failed; posting text only", logx.Err(err))
		return item, nil
	}

	item.Images = append(item.Images, queue.ImageRef{Path: cardPath, AltText: postText})
	return item, nil
}

func (p *Producer) writePostText(updateID, text string) error {
	if err := os.MkdirAll(p.cfg.PostsDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.cfg.PostsDir, "post-"+updateID+".txt"), []byte(text), 0o644)
}

func fileBase64(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}
