package state

import (
	"time"

	"github.com/lysyi3m/trailer-comments/app/catalog"
)

type Status string

const (
	StatusUnresolved Status = "unresolved"
	StatusActive     Status = "active"
	StatusFinished   Status = "finished"
)

type Trailer struct {
	VideoID     string
	PublishedAt time.Time
}

// Harvest is the lifecycle state of one catalog item. It is one of
// Unresolved, Active or Finished.
type Harvest interface {
	Status() Status
	harvest()
}

// Unresolved means no trailer has been found yet.
type Unresolved struct{}

// Active items have a trailer whose comments are still being harvested.
// A nil Watermark means comments were never fetched.
type Active struct {
	Trailer   Trailer
	Watermark *time.Time
}

// Finished items are terminal: their trailer outlived the harvesting window.
type Finished struct {
	Trailer   Trailer
	Watermark *time.Time
}

func (Unresolved) Status() Status { return StatusUnresolved }
func (Active) Status() Status     { return StatusActive }
func (Finished) Status() Status   { return StatusFinished }

func (Unresolved) harvest() {}
func (Active) harvest()     {}
func (Finished) harvest()   {}

func NewActive(trailer Trailer) Active {
	return Active{Trailer: trailer}
}

// Advance moves the watermark forward to latest. It never moves it back.
func (a Active) Advance(latest time.Time) Active {
	if a.Watermark != nil && !latest.After(*a.Watermark) {
		return a
	}
	wm := latest
	a.Watermark = &wm
	return a
}

func (a Active) Finish() Finished {
	return Finished{Trailer: a.Trailer, Watermark: a.Watermark}
}

// Expired reports whether the trailer is older than lifetime at now.
func (a Active) Expired(now time.Time, lifetime time.Duration) bool {
	return now.Sub(a.Trailer.PublishedAt) > lifetime
}

// Document is the whole durable state of the harvester: one Harvest per
// catalog item plus the resume cursor. It is loaded once per run and saved
// once at the end.
type Document struct {
	Items     map[catalog.Key]Harvest
	NextIndex int
	LastRunID string
	UpdatedAt time.Time
}

func NewDocument() *Document {
	return &Document{Items: make(map[catalog.Key]Harvest)}
}

// Get returns the state of key; unknown keys are Unresolved.
func (d *Document) Get(key catalog.Key) Harvest {
	if h, ok := d.Items[key]; ok && h != nil {
		return h
	}
	return Unresolved{}
}

func (d *Document) Set(key catalog.Key, h Harvest) {
	if d.Items == nil {
		d.Items = make(map[catalog.Key]Harvest)
	}
	if _, ok := h.(Unresolved); ok || h == nil {
		delete(d.Items, key)
		return
	}
	d.Items[key] = h
}

// Counts returns the number of items per status.
func (d *Document) Counts() map[Status]int {
	counts := make(map[Status]int, 2)
	for _, h := range d.Items {
		counts[h.Status()]++
	}
	return counts
}
