package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	logx "firemon/pkg/logx"
)

func TestNewTelegramPosterRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewTelegramPoster(TelegramConfig{ChatID: 5}, logx.Nop()); err == nil {
		t.Error("missing token accepted")
	}
	if _, err := NewTelegramPoster(TelegramConfig{Token: "123:abc"}, logx.Nop()); err == nil {
		t.Error("missing chat_id accepted")
	}
}

func TestCreatePostUnstagesMediaOnFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := &telegramPoster{staged: make(map[string]*stagedMedia), log: logx.Nop()}

	img := filepath.Join(t.TempDir(), "card.png")
	if err := os.WriteFile(img, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	id, err := p.UploadMedia(ctx, img)
	if err != nil {
		t.Fatalf("UploadMedia: %v", err)
	}
	if err := p.AttachAltText(ctx, id, "a fire update card"); err != nil {
		t.Fatalf("AttachAltText: %v", err)
	}

	if _, err := p.CreatePost(ctx, "text", []string{id, "media-404"}); err == nil {
		t.Fatal("CreatePost accepted an unknown media id")
	}

	// The failed post must not leak its staged entries; the retry re-uploads
	// under fresh ids.
	if err := p.AttachAltText(ctx, id, "again"); err == nil {
		t.Fatal("staged entry survived a failed CreatePost")
	}
}

func TestUploadMediaRejectsMissingFile(t *testing.T) {
	t.Parallel()
	p := &telegramPoster{staged: make(map[string]*stagedMedia), log: logx.Nop()}
	if _, err := p.UploadMedia(context.Background(), filepath.Join(t.TempDir(), "absent.png")); err == nil {
		t.Fatal("UploadMedia accepted a missing file")
	}
}
