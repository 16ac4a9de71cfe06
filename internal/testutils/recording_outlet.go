package testutils

import (
	"slices"
	"sync"

	"github.com/srg/ellsl/internal/outlet"
)

// RecordedSample is one PushSample call
type RecordedSample struct {
	Values    []float64
	Timestamp float64
}

// RecordingOutlet is an outlet.Outlet that keeps every pushed sample
type RecordingOutlet struct {
	mu        sync.Mutex
	info      outlet.StreamInfo
	consumers bool
	closed    bool
	samples   []RecordedSample
}

func (o *RecordingOutlet) Info() outlet.StreamInfo {
	return o.info
}

func (o *RecordingOutlet) HaveConsumers() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.consumers && !o.closed
}

func (o *RecordingOutlet) PushSample(values []float64, timestamp float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return outlet.ErrClosed
	}
	o.samples = append(o.samples, RecordedSample{Values: slices.Clone(values), Timestamp: timestamp})
	return nil
}

func (o *RecordingOutlet) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// SetConsumers changes whether the outlet reports consumers
func (o *RecordingOutlet) SetConsumers(consumers bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.consumers = consumers
}

// Closed reports whether Close was called
func (o *RecordingOutlet) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Samples returns the pushed samples in order
func (o *RecordingOutlet) Samples() []RecordedSample {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.samples)
}

// OutletRecorder creates RecordingOutlets and remembers all of them
type OutletRecorder struct {
	mu      sync.Mutex
	outlets []*RecordingOutlet
	// Consumers is the initial consumer state of new outlets
	Consumers bool
	// Err, when set, makes the factory fail
	Err error
}

// Factory returns an outlet.Factory backed by the recorder
func (r *OutletRecorder) Factory() outlet.Factory {
	return func(info outlet.StreamInfo) (outlet.Outlet, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.Err != nil {
			return nil, r.Err
		}
		o := &RecordingOutlet{info: info, consumers: r.Consumers}
		r.outlets = append(r.outlets, o)
		return o, nil
	}
}

// All returns every outlet created so far, oldest first
func (r *OutletRecorder) All() []*RecordingOutlet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.outlets)
}

// Live returns the outlets that were not closed
func (r *OutletRecorder) Live() []*RecordingOutlet {
	var live []*RecordingOutlet
	for _, o := range r.All() {
		if !o.Closed() {
			live = append(live, o)
		}
	}
	return live
}

// Last returns the newest outlet or nil
func (r *OutletRecorder) Last() *RecordingOutlet {
	all := r.All()
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}
