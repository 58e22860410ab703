package match

import (
	"slices"
	"sync"
)

// PublishLog is an interface for publishing order book logs (opens, matches, cancels).
//
// Publish is called inside the engine's critical section, so implementations
// must not block. They must also either:
//  1. Process logs synchronously before returning, OR
//  2. Clone the BookLog data before returning
//
// The caller recycles BookLog objects to a sync.Pool after Publish returns,
// so any asynchronous processing must work with cloned data.
type PublishLog interface {
	Publish(...*BookLog)
}

// RecordingPublishLog keeps a value copy of every published log.
type RecordingPublishLog struct {
	mu   sync.Mutex
	logs []BookLog
}

func (r *RecordingPublishLog) Publish(logs ...*BookLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, log := range logs {
		r.logs = append(r.logs, *log)
	}
}

// Logs returns the recorded logs in publication order.
func (r *RecordingPublishLog) Logs() []BookLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.logs)
}

type discardPublishLog struct{}

func (discardPublishLog) Publish(...*BookLog) {}

// MultiPublishLog fans every batch out to several publishers in order.
type MultiPublishLog []PublishLog

func (m MultiPublishLog) Publish(logs ...*BookLog) {
	for _, p := range m {
		p.Publish(logs...)
	}
}
