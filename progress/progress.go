package progress

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Delta represents an incremental counter change; fields may be negative.
type Delta struct {
	Created    int
	Archived   int
	Failed     int
	Terminated int
	Pending    int
	Retrying   int
}

// Progress keeps row counters of one process instance. It is safe for concurrent use.
type Progress struct {
	TraceID   string    `json:"traceId"`
	StreamID  string    `json:"streamId"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Created    int `json:"created"`
	Archived   int `json:"archived"`
	Failed     int `json:"failed"`
	Terminated int `json:"terminated"`
	Pending    int `json:"pending"`
	Retrying   int `json:"retrying"`

	mux      sync.Mutex
	onChange func(Progress)
}

// Update applies the delta. The onChange callback runs outside the lock with a copy.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.mux.Lock()
	p.Created += d.Created
	p.Archived += d.Archived
	p.Failed += d.Failed
	p.Terminated += d.Terminated
	p.Pending += d.Pending
	p.Retrying += d.Retrying
	p.UpdatedAt = time.Now()
	snapshot := p.copy()
	cb := p.onChange
	p.mux.Unlock()
	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy for read-only inspection.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.copy()
}

// Active reports rows not yet in a terminal state.
func (p *Progress) Active() int {
	return p.Created - p.Archived - p.Failed - p.Terminated
}

func (p *Progress) copy() Progress {
	return Progress{
		TraceID:    p.TraceID,
		StreamID:   p.StreamID,
		StartedAt:  p.StartedAt,
		UpdatedAt:  p.UpdatedAt,
		Created:    p.Created,
		Archived:   p.Archived,
		Failed:     p.Failed,
		Terminated: p.Terminated,
		Pending:    p.Pending,
		Retrying:   p.Retrying,
	}
}

// Registry holds trackers by trace id
type Registry struct {
	mux      sync.RWMutex
	trackers map[string]*Progress
	onChange func(Progress)
}

// Tracker returns the tracker of traceID, creating it when missing
func (r *Registry) Tracker(traceID, streamID string) *Progress {
	r.mux.RLock()
	tracker, ok := r.trackers[traceID]
	r.mux.RUnlock()
	if ok {
		return tracker
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	if tracker, ok = r.trackers[traceID]; ok {
		return tracker
	}
	now := time.Now()
	tracker = &Progress{TraceID: traceID, StreamID: streamID, StartedAt: now, UpdatedAt: now, onChange: r.onChange}
	r.trackers[traceID] = tracker
	return tracker
}

// Update applies delta to the tracker of traceID
func (r *Registry) Update(traceID, streamID string, d Delta) {
	r.Tracker(traceID, streamID).Update(d)
}

// Get returns a snapshot for traceID
func (r *Registry) Get(traceID string) (Progress, bool) {
	r.mux.RLock()
	tracker, ok := r.trackers[traceID]
	r.mux.RUnlock()
	if !ok {
		return Progress{}, false
	}
	return tracker.Snapshot(), true
}

// List returns snapshots ordered by trace id
func (r *Registry) List() []Progress {
	r.mux.RLock()
	var ret []Progress
	for _, tracker := range r.trackers {
		ret = append(ret, tracker.Snapshot())
	}
	r.mux.RUnlock()
	sort.Slice(ret, func(i, j int) bool { return ret[i].TraceID < ret[j].TraceID })
	return ret
}

// NewRegistry creates a registry; onChange is attached to every tracker
func NewRegistry(onChange func(Progress)) *Registry {
	return &Registry{trackers: map[string]*Progress{}, onChange: onChange}
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithTracker embeds tracker in ctx.
func WithTracker(ctx context.Context, tracker *Progress) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, trackerKey, tracker)
}

// FromContext extracts the tracker from ctx.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// UpdateCtx applies d to the tracker carried by ctx, if any.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
