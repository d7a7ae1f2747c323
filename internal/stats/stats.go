// Package stats counts connections, sessions and messages. StatsUpdater
// publishes them through expvar; PrometheusStats exposes them for scraping.
package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"sync"
	"time"
)

// StatsProvider is the sink used by the hub, the router and the REST layer.
// A counter must be registered before it is updated.
type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	// RegisterGaugeFunc publishes a value read from fn on every scrape.
	RegisterGaugeFunc(name string, fn func() float64)
	Run()
}

type update struct {
	name  string
	delta int64
}

// StatsUpdater applies counter updates on a single goroutine started by
// Run. Until Run is called, updates queue up to the buffer size.
type StatsUpdater struct {
	vars     *expvar.Map
	updates  chan update
	stopOnce sync.Once
}

// NewStatsUpdater serves the updater's values at GET /debug/vars. The map is
// private to the updater, so several updaters can coexist in one process.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:    new(expvar.Map).Init(),
		updates: make(chan update, 512),
	}
	mux.HandleFunc("GET /debug/vars", su.serveVars)

	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))

	return su
}

func (su *StatsUpdater) serveVars(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	out := make(map[string]json.RawMessage)
	su.vars.Do(func(kv expvar.KeyValue) {
		out[kv.Key] = json.RawMessage(kv.Value.String())
	})

	json.NewEncoder(w).Encode(out)
}

func (su *StatsUpdater) apply() {
	for u := range su.updates {
		v, ok := su.vars.Get(u.name).(*expvar.Int)
		if !ok {
			panic("metric not found: " + u.name)
		}
		v.Add(u.delta)
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.updates <- update{name: name, delta: 1}
}

func (su *StatsUpdater) Decr(name string) {
	su.updates <- update{name: name, delta: -1}
}

func (su *StatsUpdater) RegisterMetric(name string) {
	if su.vars.Get(name) == nil {
		su.vars.Set(name, new(expvar.Int))
	}
}

func (su *StatsUpdater) RegisterGaugeFunc(name string, fn func() float64) {
	su.vars.Set(name, expvar.Func(func() any { return fn() }))
}

// Value reads a registered counter, or 0 if name is not a counter.
func (su *StatsUpdater) Value(name string) int64 {
	if v, ok := su.vars.Get(name).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}

func (su *StatsUpdater) Run() {
	go su.apply()
}

// Stop ends the update goroutine. Updates after Stop panic.
func (su *StatsUpdater) Stop() {
	su.stopOnce.Do(func() { close(su.updates) })
}
