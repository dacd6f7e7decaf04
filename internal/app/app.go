// Package app wires the daemon together: config, logging, lock, queue,
// pipeline components, and the supervisor that keeps them running.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gofrs/flock"

	"firemon/internal/config"
	"firemon/internal/cycle"
	"firemon/internal/diff"
	"firemon/internal/feed"
	"firemon/internal/gate"
	"firemon/internal/publish"
	"firemon/internal/queue"
	"firemon/internal/render"
	"firemon/internal/runtime/supervisor"
	"firemon/internal/state"
	"firemon/internal/web"
	logx "firemon/pkg/logx"
)

// Options are the command-line inputs layered over the config file.
type Options struct {
	ConfigPath string
	// OutputDir is the root for state, audits, queue, and rendered media.
	OutputDir string
	// StateFile overrides the default <output>/current-fires.yaml.
	StateFile string

	// Once runs a single cycle, drains the queue, and exits.
	Once bool
	// Post enables real posting. Without it the publisher runs against a
	// dry-run poster that only logs.
	Post bool
	// Debug enables debug logging, a short poll interval, and synthetic
	// deltas so the full pipeline runs without waiting for real changes.
	Debug bool
	// WebAddr overrides web.addr from the config file.
	WebAddr string
}

func (o *Options) setDefaults() {
	if o.OutputDir == "" {
		o.OutputDir = "./data"
	}
	if o.StateFile == "" {
		o.StateFile = filepath.Join(o.OutputDir, "current-fires.yaml")
	}
}

// Run is the daemon entry point. It returns once the context is canceled (or
// after one cycle in once mode).
func Run(ctx context.Context, opts Options) error {
	opts.setDefaults()

	cm := config.NewManager(opts.ConfigPath)
	cfg, err := cm.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", opts.ConfigPath, err)
	}

	logCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: true,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}
	if opts.Debug {
		logCfg.Level = "DEBUG"
	}
	logSvc, log := logx.New(logCfg)
	defer logSvc.Close()
	cm.SetLogger(log.With(logx.String("svc", "config")))

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return err
	}
	for _, d := range []string{"img", "posts", "queue", "deadletter", filepath.Join("media", "terrain"), filepath.Join("media", "detail")} {
		if err := os.MkdirAll(filepath.Join(opts.OutputDir, d), 0o755); err != nil {
			return err
		}
	}

	// One instance per output directory; two daemons sharing a queue would
	// double-post.
	lock := flock.New(filepath.Join(opts.OutputDir, "firemon.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another instance is already running against %s", opts.OutputDir)
	}
	defer lock.Unlock()

	comps, err := build(cfg, opts, log)
	if err != nil {
		return err
	}
	defer comps.queue.Close()

	if opts.Once {
		return runOnce(ctx, comps, log)
	}
	return runDaemon(ctx, comps, cm, logSvc, cfg, opts, log)
}

type components struct {
	coord *cycle.Coordinator
	pub   *publish.Publisher
	queue queue.Queue
	adm   *gate.Gate
	web   *web.Server
}

func build(cfg *config.Config, opts Options, log logx.Logger) (*components, error) {
	feedTimeout, _ := config.ParseDurationOrDefault("feed.timeout", cfg.Feed.Timeout, 30*time.Second)
	client := feed.NewClient(feed.Config{
		SituationURL: cfg.Feed.SituationURL,
		PerimeterURL: cfg.Feed.PerimeterURL,
		Timeout:      feedTimeout,
	}, log.With(logx.String("svc", "feed")))

	var maps render.MapRenderer
	if cfg.Maps != nil {
		mapTimeout, _ := config.ParseDurationOrDefault("maps.timeout", cfg.Maps.Timeout, 30*time.Second)
		m, err := render.NewStaticMapClient(render.StaticMapConfig{
			BaseURL: cfg.Maps.BaseURL,
			Timeout: mapTimeout,
		}, log.With(logx.String("svc", "maps")))
		if err != nil {
			return nil, err
		}
		maps = m
	}

	var shot render.Screenshotter
	if cfg.Browser != nil {
		browserTimeout, _ := config.ParseDurationOrDefault("browser.timeout", cfg.Browser.Timeout, 60*time.Second)
		shot = render.NewBrowserScreenshotter(render.BrowserConfig{
			Bin:     cfg.Browser.Bin,
			Timeout: browserTimeout,
		}, log.With(logx.String("svc", "browser")))
	}

	producer, err := render.NewProducer(render.Config{
		MediaDir:         filepath.Join(opts.OutputDir, "media"),
		ImageDir:         filepath.Join(opts.OutputDir, "img"),
		PostsDir:         filepath.Join(opts.OutputDir, "posts"),
		SourceURL:        cfg.Producer.SourceURL,
		PopulationWeight: cfg.Producer.PopulationWeight,
	}, maps, shot, log.With(logx.String("svc", "render")))
	if err != nil {
		return nil, err
	}

	qcfg := queue.Config{Dir: filepath.Join(opts.OutputDir, "queue")}
	if cfg.Queue != nil {
		qcfg.Driver = cfg.Queue.Driver
		qcfg.Path = cfg.Queue.Path
		if qcfg.Path == "" {
			qcfg.Path = filepath.Join(opts.OutputDir, "queue.db")
		}
		qcfg.BusyTimeout, _ = config.ParseDurationField("queue.busy_timeout", cfg.Queue.BusyTimeout)
	}
	q, err := queue.Open(qcfg, log.With(logx.String("svc", "queue")))
	if err != nil {
		return nil, err
	}

	var poster publish.Poster
	if opts.Post {
		tgTimeout, _ := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 30*time.Second)
		poster, err = publish.NewTelegramPoster(publish.TelegramConfig{
			Token:   cfg.Telegram.Token,
			ChatID:  cfg.Telegram.ChatID,
			Timeout: tgTimeout,
		}, log.With(logx.String("svc", "telegram")))
		if err != nil {
			_ = q.Close()
			return nil, err
		}
	} else {
		log.Info("posting disabled; running against a dry-run poster (pass --post to enable)")
		poster = publish.NewDryRunPoster(log.With(logx.String("svc", "telegram")))
	}

	adm := gate.New(cfg.Gate.Capacity)

	postInterval, _ := config.ParseDurationField("publisher.post_interval", cfg.Publisher.PostInterval)
	failureBackoff, _ := config.ParseDurationField("publisher.failure_backoff", cfg.Publisher.FailureBackoff)
	pub := publish.NewPublisher(publish.Config{
		PostInterval:   postInterval,
		FailureBackoff: failureBackoff,
		MaxAttempts:    cfg.Publisher.MaxAttempts,
	}, q, poster, adm, log.With(logx.String("svc", "publish")))

	poll := cfg.Schedule.Poll
	if poll == "" {
		poll = "65s"
	}
	if opts.Debug {
		poll = "5s"
	}
	schedule, err := cycle.ParseSchedule(poll)
	if err != nil {
		_ = q.Close()
		return nil, fmt.Errorf("schedule.poll: %w", err)
	}
	retryDelay, _ := config.ParseDurationOrDefault("schedule.retry_delay", cfg.Schedule.RetryDelay, 15*time.Second)

	coord := cycle.NewCoordinator(cycle.Config{
		Schedule:   schedule,
		RetryDelay: retryDelay,
		ForceAll:   opts.Debug,
	}, client, producer, q,
		state.NewStore(opts.StateFile),
		diff.NewAuditor(opts.OutputDir),
		adm, pub, log.With(logx.String("svc", "cycle")))

	c := &components{coord: coord, pub: pub, queue: q, adm: adm}
	if cfg.Web.Enabled {
		addr := cfg.Web.Addr
		if opts.WebAddr != "" {
			addr = opts.WebAddr
		}
		c.web = web.NewServer(web.Config{Addr: addr, Dir: opts.OutputDir},
			log.With(logx.String("svc", "web")))
	}
	return c, nil
}

// runOnce executes one cycle and drains everything it queued.
func runOnce(ctx context.Context, c *components, log logx.Logger) error {
	log.Info("running single cycle")
	if err := c.coord.RunOnce(ctx); err != nil {
		return err
	}
	if err := c.pub.Drain(ctx); err != nil {
		return err
	}
	log.Info("single cycle complete")
	return nil
}

func runDaemon(ctx context.Context, c *components, cm *config.Manager,
	logSvc *logx.Service, cfg *config.Config, opts Options, log logx.Logger) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(log.With(logx.String("svc", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	sup.Go("publisher", c.pub.Run)
	sup.Go("coordinator", c.coord.Run)
	if c.web != nil {
		// A busy port at startup should not kill the pipeline.
		sup.GoRestart("web", c.web.Run, supervisor.WithMaxRestarts(5))
	}
	sup.Go("config-watch", cm.Watch)

	// Hot-reload covers log level/sinks and post pacing; everything else
	// binds at startup.
	sub := cm.Subscribe(1)
	defer cm.Unsubscribe(sub)
	sup.Go("config-apply", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next, ok := <-sub:
				if !ok || next == nil {
					return nil
				}
				lc := logx.Config{
					Level:   next.Logging.Level,
					Console: true,
					File:    logx.FileConfig{Enabled: next.Logging.File.Enabled, Path: next.Logging.File.Path},
				}
				if opts.Debug {
					lc.Level = "DEBUG"
				}
				logSvc.Apply(lc)
				if d, err := config.ParseDurationField("publisher.post_interval", next.Publisher.PostInterval); err == nil && d > 0 {
					c.pub.SetPacing(d)
				}
				log.Info("logging and pacing applied; other sections take effect on restart")
			}
		}
	})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		sup.Go("sd-watchdog", func(ctx context.Context) error {
			t := time.NewTicker(interval / 2)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		})
	}

	log.Info("firemon started",
		logx.String("output", opts.OutputDir),
		logx.String("feed", redactURL(cfg.Feed.SituationURL)),
		logx.Bool("web", c.web != nil))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("shutting down")

	c.adm.Close()
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil {
		return err
	}
	return sup.Err()
}

// redactURL strips query parameters (feed URLs sometimes carry tokens).
func redactURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i] + "?..."
	}
	return u
}
