// Package collector accumulates raw input samples for the current logging
// session. It is the single owned home for the counters the capture backend
// feeds; there is no package-level state, callers inject a *Collector.
package collector

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// EventType classifies a raw input event.
type EventType string

const (
	EventClick     EventType = "click"
	EventScroll    EventType = "scroll"
	EventKeystroke EventType = "keystroke"
)

// Event is one raw input event from the capture backend.
type Event struct {
	Type EventType
	Text string
	At   time.Time
}

// Counters is a point-in-time snapshot of the cumulative counters.
type Counters struct {
	Clicks     int64
	Scrolls    int64
	Keys       int64
	Text       string
	AppUsage   map[string]int64
	LastActive time.Time
}

// Collector owns the monotonically increasing counters for one session.
// Safe for concurrent use; the OS listener thread records events while the
// accounting tick snapshots.
type Collector struct {
	mu         sync.Mutex
	clicks     int64
	scrolls    int64
	keys       int64
	text       strings.Builder
	appUsage   map[string]int64
	lastActive time.Time
}

func New() *Collector {
	return &Collector{appUsage: make(map[string]int64)}
}

// Record registers a raw input event.
func (c *Collector) Record(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case EventClick:
		c.clicks++
	case EventScroll:
		c.scrolls++
	case EventKeystroke:
		c.keys++
		c.text.WriteString(ev.Text)
	default:
		return
	}
	if ev.At.After(c.lastActive) {
		c.lastActive = ev.At
	}
}

// RecordUsage attributes seconds of focus time to an application or website.
func (c *Collector) RecordUsage(app string, seconds int64) {
	if app == "" || seconds <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appUsage[app] += seconds
}

// Snapshot returns the current cumulative counters.
func (c *Collector) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()

	usage := make(map[string]int64, len(c.appUsage))
	for app, secs := range c.appUsage {
		usage[app] = secs
	}
	return Counters{
		Clicks:     c.clicks,
		Scrolls:    c.scrolls,
		Keys:       c.keys,
		Text:       c.text.String(),
		AppUsage:   usage,
		LastActive: c.lastActive,
	}
}

// Reset zeroes all counters. Called when a session ends or is hard-reset.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clicks = 0
	c.scrolls = 0
	c.keys = 0
	c.text.Reset()
	c.appUsage = make(map[string]int64)
	c.lastActive = time.Time{}
}

// UsageList returns the snapshot's app usage as a stable-ordered slice.
func (s Counters) UsageList() []Usage {
	apps := make([]string, 0, len(s.AppUsage))
	for app := range s.AppUsage {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	list := make([]Usage, 0, len(apps))
	for _, app := range apps {
		list = append(list, Usage{Name: app, Seconds: s.AppUsage[app]})
	}
	return list
}

// Usage is one app/website's accumulated focus time.
type Usage struct {
	Name    string
	Seconds int64
}
