package publish

import (
	"context"
	"os"
	"strconv"
	"sync"

	logx "firemon/pkg/logx"
)

// dryRunPoster logs what would have been posted instead of talking to the
// platform. Used until posting is explicitly enabled, so a new deployment can
// be watched end to end without spamming the channel.
type dryRunPoster struct {
	log logx.Logger

	mu     sync.Mutex
	nextID int
}

func NewDryRunPoster(log logx.Logger) Poster {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &dryRunPoster{log: log}
}

func (p *dryRunPoster) UploadMedia(_ context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	p.mu.Lock()
	p.nextID++
	id := "dry-" + strconv.Itoa(p.nextID)
	p.mu.Unlock()
	p.log.Info("dry run: would upload media", logx.String("path", path), logx.String("media_id", id))
	return id, nil
}

func (p *dryRunPoster) AttachAltText(_ context.Context, mediaID, alt string) error {
	p.log.Info("dry run: would attach alt text", logx.String("media_id", mediaID), logx.Int("alt_len", len(alt)))
	return nil
}

func (p *dryRunPoster) CreatePost(_ context.Context, text string, mediaIDs []string) (string, error) {
	p.mu.Lock()
	p.nextID++
	id := "dry-post-" + strconv.Itoa(p.nextID)
	p.mu.Unlock()
	p.log.Info("dry run: would create post",
		logx.String("post_id", id), logx.Int("media", len(mediaIDs)), logx.String("text", text))
	return id, nil
}
