package publish

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"firemon/internal/gate"
	"firemon/internal/queue"
	logx "firemon/pkg/logx"
)

// Config tunes the drain loop.
type Config struct {
	// PostInterval is the minimum spacing between successful posts.
	PostInterval time.Duration
	// FailureBackoff is the initial delay before retrying a failed post;
	// subsequent retries back off exponentially from it.
	FailureBackoff time.Duration
	// MaxAttempts is the per-item ceiling before the item is deadlettered.
	MaxAttempts int
	// IdlePoll is how often an empty queue is re-checked absent a kick.
	IdlePoll time.Duration
}

func (c *Config) setDefaults() {
	if c.PostInterval <= 0 {
		c.PostInterval = 67500 * time.Millisecond
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = 5300 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.IdlePoll <= 0 {
		c.IdlePoll = c.PostInterval
	}
}

// Publisher drains the queue head-first. The highest-priority item is always
// published (or deadlettered) before anything behind it; lower-priority items
// are never skipped ahead past a struggling head.
type Publisher struct {
	cfg     Config
	q       queue.Queue
	poster  Poster
	adm     *gate.Gate
	limiter *rate.Limiter
	log     logx.Logger
	wake    chan struct{}
}

// NewPublisher builds a publisher. adm may be nil when posting does not share
// an admission pool with rendering.
func NewPublisher(cfg Config, q queue.Queue, poster Poster, adm *gate.Gate, log logx.Logger) *Publisher {
	cfg.setDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Publisher{
		cfg:     cfg,
		q:       q,
		poster:  poster,
		adm:     adm,
		limiter: rate.NewLimiter(rate.Every(cfg.PostInterval), 1),
		log:     log,
		wake:    make(chan struct{}, 1),
	}
}

// SetPacing adjusts the minimum inter-post spacing at runtime.
func (p *Publisher) SetPacing(postInterval time.Duration) {
	if postInterval <= 0 {
		return
	}
	p.limiter.SetLimit(rate.Every(postInterval))
}

// Kick hints that new work was enqueued. Never blocks.
func (p *Publisher) Kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		drained, err := p.drainHead(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			p.log.Error("drain failed", logx.Err(err))
		}
		if drained {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-p.wake:
		case <-time.After(p.cfg.IdlePoll):
		}
	}
}

// Drain publishes until the queue is empty or ctx is done. Used by once mode.
func (p *Publisher) Drain(ctx context.Context) error {
	for {
		drained, err := p.drainHead(ctx)
		if err != nil {
			return err
		}
		if !drained {
			return nil
		}
	}
}

// drainHead publishes (or deadletters) the head item. It reports false when
// the queue was empty.
func (p *Publisher) drainHead(ctx context.Context) (bool, error) {
	refs, err := p.q.List(ctx)
	if err != nil {
		return false, err
	}
	if len(refs) == 0 {
		return false, nil
	}
	head := refs[0]

	item, err := p.q.Load(ctx, head)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return true, nil
		}
		// An unreadable head would wedge the whole queue. Move it aside.
		p.log.Error("head item unreadable; deadlettering", logx.String("item", head.Name), logx.Err(err))
		return true, p.q.Deadletter(ctx, head)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return false, err
	}

	log := p.log.With(logx.String("item", head.Name))
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.FailureBackoff
	postID, err := backoff.Retry(ctx,
		func() (string, error) { return p.attempt(ctx, item) },
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(p.cfg.MaxAttempts)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.Error("publish attempts exhausted; deadlettering", logx.Err(err),
			logx.Int("max_attempts", p.cfg.MaxAttempts))
		return true, p.q.Deadletter(ctx, head)
	}

	log.Info("published", logx.String("post_id", postID))
	if err := p.q.Remove(ctx, head); err != nil && !errors.Is(err, queue.ErrNotFound) {
		// The post went out but the item survived; it would be re-published
		// on the next pass. Surface loudly rather than double-post silently.
		return true, err
	}
	return true, nil
}

// attempt runs one admission-gated publish attempt. The token is held only
// while talking to the platform, never across a backoff sleep, so a failing
// head item does not starve the other lanes of the shared pool.
func (p *Publisher) attempt(ctx context.Context, item queue.Item) (string, error) {
	if p.adm != nil {
		tok, err := p.adm.Acquire(ctx, "publish")
		if err != nil {
			return "", backoff.Permanent(err)
		}
		defer tok.Release()
	}
	return p.postOnce(ctx, item)
}

// postOnce performs one complete publish attempt: stage media, attach alt
// text, create the post.
func (p *Publisher) postOnce(ctx context.Context, item queue.Item) (string, error) {
	mediaIDs := make([]string, 0, len(item.Images))
	for _, img := range item.Images {
		id, err := p.poster.UploadMedia(ctx, img.Path)
		if err != nil {
			return "", err
		}
		if img.AltText != "" {
			if err := p.poster.AttachAltText(ctx, id, img.AltText); err != nil {
				return "", err
			}
		}
		mediaIDs = append(mediaIDs, id)
	}
	return p.poster.CreatePost(ctx, item.Text, mediaIDs)
}
