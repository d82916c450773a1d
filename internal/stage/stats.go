package stage

import (
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// maxSamples bounds the duration history kept for summaries.
const maxSamples = 100

// Stats holds running statistics for one component. Safe for concurrent use.
type Stats struct {
	mu          sync.Mutex
	name        string
	invocations int
	errors      int
	total       time.Duration
	last        time.Duration
	samples     []float64 // seconds, successful invocations only
}

// NewStats creates empty statistics for the named component.
func NewStats(name string) *Stats {
	return &Stats{name: name}
}

// Record adds one invocation. Failed invocations count toward invocations and
// errors but not toward timing.
func (s *Stats) Record(elapsed time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invocations++
	if err != nil {
		s.errors++
		return
	}
	s.total += elapsed
	s.last = elapsed
	s.samples = append(s.samples, elapsed.Seconds())
	if len(s.samples) > maxSamples {
		s.samples = s.samples[len(s.samples)-maxSamples:]
	}
}

// Reset clears every counter.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invocations, s.errors = 0, 0
	s.total, s.last = 0, 0
	s.samples = nil
}

// Snapshot is a point-in-time copy of a component's statistics.
type Snapshot struct {
	Name        string        `json:"name"`
	Invocations int           `json:"invocations"`
	Errors      int           `json:"errors"`
	Total       time.Duration `json:"total"`
	Average     time.Duration `json:"average"`
	Last        time.Duration `json:"last"`
	Median      time.Duration `json:"median"`
	Max         time.Duration `json:"max"`
}

// Snapshot returns the current statistics. Average is total time over
// successful invocations.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Name:        s.name,
		Invocations: s.invocations,
		Errors:      s.errors,
		Total:       s.total,
		Last:        s.last,
	}
	if succeeded := s.invocations - s.errors; succeeded > 0 {
		snap.Average = s.total / time.Duration(succeeded)
	}
	if len(s.samples) > 0 {
		data := stats.Float64Data(s.samples)
		if m, err := data.Median(); err == nil {
			snap.Median = seconds(m)
		}
		if m, err := data.Max(); err == nil {
			snap.Max = seconds(m)
		}
	}
	return snap
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// Registry owns one Stats per component name.
type Registry struct {
	mu    sync.Mutex
	stats map[string]*Stats
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stats: make(map[string]*Stats)}
}

// For returns the statistics of the named component, creating them on first use.
func (r *Registry) For(name string) *Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[name]
	if !ok {
		s = NewStats(name)
		r.stats[name] = s
	}
	return s
}

// Snapshots returns every component's statistics sorted by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	all := make([]*Stats, 0, len(r.stats))
	for _, s := range r.stats {
		all = append(all, s)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset clears every component's statistics.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stats {
		s.Reset()
	}
}
