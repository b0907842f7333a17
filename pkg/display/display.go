// Package display defines the surface onto which request status is drawn.
// Hosts provide an implementation anchored to their own content (an editor
// overlay, a terminal area); the Recorder implementation backs tests and the
// service's status endpoint.
package display

import "sync"

// Region identifies the anchor the frame is drawn next to, typically a span
// of the user's original content.
type Region struct {
	// ID distinguishes regions within one host.
	ID string

	// Path and line range locate the anchored content, when known.
	Path      string
	StartLine int
	EndLine   int
}

// Frame is the renderable representation of current status: a header line
// and zero or more body lines. Frames are recomputed on every tick or output
// event and never persisted.
type Frame struct {
	Header string
	Body   []string
}

// Surface draws frames into regions.
type Surface interface {
	// Render replaces the region's content with the frame.
	Render(region Region, frame Frame)

	// Clear removes any frame drawn in the region.
	Clear(region Region)
}

// Recorder is a Surface that remembers the last frame per region.
type Recorder struct {
	mu     sync.Mutex
	frames map[string]Frame
	lastID string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{frames: make(map[string]Frame)}
}

// Render implements Surface.
func (r *Recorder) Render(region Region, frame Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[region.ID] = frame
	r.lastID = region.ID
}

// Clear implements Surface.
func (r *Recorder) Clear(region Region) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.frames, region.ID)
	if r.lastID == region.ID {
		r.lastID = ""
	}
}

// Last returns the last rendered frame for the region, if present.
func (r *Recorder) Last(region Region) (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[region.ID]
	return f, ok
}

// LastRendered returns the most recently rendered frame across all regions.
func (r *Recorder) LastRendered() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[r.lastID]
	return f, ok
}
