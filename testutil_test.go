package shutdown

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// EventTime records, for each named event, the duration since recording
// started when it occurred.
type EventTime map[string]time.Duration

func (e EventTime) String() string {
	keys := make([]string, 0, len(e))
	for key := range e {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, "%s\t%dms\n", key, e[key].Milliseconds())
	}
	return b.String()
}

// SequenceMonitor captures the relative time of named events and asserts
// they landed within the expected coarse window.
type SequenceMonitor struct {
	mu        sync.Mutex
	events    EventTime
	startTime time.Time
}

// StartRecording resets the monitor and begins its clock.
func (s *SequenceMonitor) StartRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = EventTime{}
	s.startTime = time.Now()
}

// Mark records the relative time of name's occurrence.
func (s *SequenceMonitor) Mark(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[name] = time.Since(s.startTime)
}

// EventTime returns the events recorded so far.
func (s *SequenceMonitor) EventTime() EventTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(EventTime, len(s.events))
	for k, v := range s.events {
		out[k] = v
	}
	return out
}

// Within reports whether name was recorded and landed within window of
// expected.
func (s *SequenceMonitor) Within(name string, expected, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	got, ok := s.events[name]
	if !ok {
		return false
	}
	diff := got - expected
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}
