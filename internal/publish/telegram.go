package publish

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "firemon/pkg/logx"
)

// TelegramConfig configures the Telegram poster.
type TelegramConfig struct {
	Token  string
	ChatID int64
	// Timeout bounds each Bot API call.
	Timeout time.Duration
}

// telegramPoster posts to a Telegram chat. Telegram has no separate media
// staging step, so UploadMedia validates and records the file locally and the
// actual upload happens in CreatePost; AttachAltText becomes the caption.
type telegramPoster struct {
	bot  *tele.Bot
	chat tele.ChatID
	log  logx.Logger

	mu     sync.Mutex
	nextID int
	staged map[string]*stagedMedia
}

type stagedMedia struct {
	path string
	alt  string
}

func NewTelegramPoster(cfg TelegramConfig, log logx.Logger) (Poster, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram.token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram.chat_id is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &telegramPoster{
		bot:    bot,
		chat:   tele.ChatID(cfg.ChatID),
		log:    log,
		staged: make(map[string]*stagedMedia),
	}, nil
}

func (p *telegramPoster) UploadMedia(_ context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stage media: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := "media-" + strconv.Itoa(p.nextID)
	p.staged[id] = &stagedMedia{path: path}
	return id, nil
}

func (p *telegramPoster) AttachAltText(_ context.Context, mediaID, alt string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.staged[mediaID]
	if !ok {
		return fmt.Errorf("attach alt text: unknown media %q", mediaID)
	}
	m.alt = alt
	return nil
}

func (p *telegramPoster) CreatePost(_ context.Context, text string, mediaIDs []string) (string, error) {
	p.mu.Lock()
	media := make([]*stagedMedia, 0, len(mediaIDs))
	var missing string
	for _, id := range mediaIDs {
		m, ok := p.staged[id]
		if !ok {
			missing = id
			break
		}
		media = append(media, m)
	}
	// A failed send is retried through a fresh UploadMedia round, so the
	// staged entries are spent whether or not the send goes through.
	for _, id := range mediaIDs {
		delete(p.staged, id)
	}
	p.mu.Unlock()
	if missing != "" {
		return "", fmt.Errorf("create post: unknown media %q", missing)
	}

	var (
		msg *tele.Message
		err error
	)
	switch len(media) {
	case 0:
		msg, err = p.bot.Send(p.chat, text)
	case 1:
		photo := &tele.Photo{File: tele.FromDisk(media[0].path), Caption: text}
		msg, err = p.bot.Send(p.chat, photo)
	default:
		album := make(tele.Album, 0, len(media))
		for i, m := range media {
			photo := &tele.Photo{File: tele.FromDisk(m.path)}
			if i == 0 {
				photo.Caption = text
			}
			album = append(album, photo)
		}
		var msgs []tele.Message
		msgs, err = p.bot.SendAlbum(p.chat, album)
		if err == nil && len(msgs) > 0 {
			msg = &msgs[0]
		}
	}
	if err != nil {
		return "", fmt.Errorf("telegram send: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return strconv.Itoa(msg.ID), nil
}
