// Package queue implements the durable, priority-ordered set of pending
// publications.
//
// The default backend is a plain directory: one file per item, the priority
// key embedded in the filename so a sorted listing equals publish order.
// That makes crash recovery trivial (the queue is its own log) and the
// backlog human-inspectable. A SQLite backend sits behind the same interface
// for deployments that prefer one file over many.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmpty    = errors.New("queue empty")
	ErrNotFound = errors.New("queue item not found")
)

// Item is one pending publication.
type Item struct {
	// ID is the stable identifier: incident ID + change timestamp.
	ID   string `yaml:"id"`
	Text string `yaml:"text"`

	// Images holds at most two rendered image references.
	Images []ImageRef `yaml:"images,omitempty"`

	Coordinates *LatLon `yaml:"coordinates,omitempty"`

	// Priority is the encoded key; see EncodeKey.
	Priority string `yaml:"priority"`

	CreatedAt time.Time `yaml:"created_at"`
}

// ImageRef points at a rendered image on disk plus its accessibility text.
type ImageRef struct {
	Path    string `yaml:"path"`
	AltText string `yaml:"alt_text,omitempty"`
}

type LatLon struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Name returns the durable item name. It starts with the priority key so
// lexicographic name order is publish order.
func (it Item) Name() string {
	return it.Priority + "-post-" + it.ID
}

// Ref is an opaque reference to a pending item.
type Ref struct {
	Name string
}

// Queue is the durable pending-publication set.
//
// Contract: Enqueue materializes the item atomically; List returns refs in
// publish-priority order; an item survives process crashes until Remove (or
// Deadletter) succeeds.
type Queue interface {
	Enqueue(ctx context.Context, it Item) error
	List(ctx context.Context) ([]Ref, error)
	Load(ctx context.Context, ref Ref) (Item, error)
	Remove(ctx context.Context, ref Ref) error

	// Deadletter relocates an item that exhausted its publish attempts so it
	// stops blocking the head of the queue but is never silently dropped.
	Deadletter(ctx context.Context, ref Ref) error

	Close() error
}
