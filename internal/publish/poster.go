// Package publish drains the pending queue to an external posting service,
// strictly in priority order and never faster than the configured pace.
package publish

import "context"

// Poster is the external posting surface, split into the three steps every
// media-bearing platform exposes: stage the media, attach its accessibility
// text, then create the post referencing the staged media.
type Poster interface {
	// UploadMedia stages one image and returns an opaque media ID.
	UploadMedia(ctx context.Context, path string) (string, error)

	// AttachAltText associates accessibility text with a staged media ID.
	AttachAltText(ctx context.Context, mediaID, alt string) error

	// CreatePost publishes text with zero or more staged media IDs and
	// returns the platform's post ID.
	CreatePost(ctx context.Context, text string, mediaIDs []string) (string, error)
}
