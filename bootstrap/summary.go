package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ionite34/nwave/component"
	"github.com/ionite34/nwave/task"
)

var statusOrder = []task.Status{task.StatusCompleted, task.StatusCancelled, task.StatusFailed}

// Summary tallies task results for the end-of-run report. It is safe for
// concurrent use.
type Summary struct {
	mu       sync.Mutex
	started  time.Time
	finished time.Time
	counts   map[task.Status]int
	failures []task.Result
}

// NewSummary creates an empty summary.
func NewSummary() *Summary {
	return &Summary{counts: make(map[task.Status]int)}
}

// Start marks the beginning of the run.
func (s *Summary) Start() {
	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()
}

// Finish marks the end of the run.
func (s *Summary) Finish() {
	s.mu.Lock()
	s.finished = time.Now()
	s.mu.Unlock()
}

// Record tallies one result.
func (s *Summary) Record(r task.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := r.Status()
	s.counts[st]++
	if st == task.StatusFailed {
		s.failures = append(s.failures, r)
	}
}

// Count returns the number of results with the given status.
func (s *Summary) Count(st task.Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[st]
}

// Total returns the number of recorded results.
func (s *Summary) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.counts {
		n += c
	}
	return n
}

// Succeeded reports whether every recorded result completed.
func (s *Summary) Succeeded() bool {
	return s.Total() == s.Count(task.StatusCompleted)
}

// Duration returns the time between Start and Finish, or zero.
func (s *Summary) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() || s.finished.Before(s.started) {
		return 0
	}
	return s.finished.Sub(s.started)
}

// Display writes the result tally, each failure and live component health.
func (s *Summary) Display(w io.Writer, registry *component.Registry) {
	total, d := s.Total(), s.Duration()

	fmt.Fprintf(w, "\n📦 Results (%d tasks in %.2fs)\n", total, d.Seconds())
	for i, st := range statusOrder {
		prefix := "├──"
		if i == len(statusOrder)-1 {
			prefix = "└──"
		}
		fmt.Fprintf(w, "   %s %s %s: %d\n", prefix, resultIcon(st), st, s.Count(st))
	}

	s.mu.Lock()
	failures := append([]task.Result(nil), s.failures...)
	s.mu.Unlock()
	if len(failures) > 0 {
		fmt.Fprintf(w, "\n❌ Failures\n")
		for i, r := range failures {
			prefix := "├──"
			if i == len(failures)-1 {
				prefix = "└──"
			}
			fmt.Fprintf(w, "   %s %s: %v\n", prefix, r.Task.Source(), r.Err)
		}
	}

	if registry != nil {
		healthResults := registry.HealthAll(context.Background())
		if len(healthResults) > 0 {
			fmt.Fprintf(w, "\n🏥 Health Check\n")
			for i, h := range healthResults {
				prefix := "├──"
				if i == len(healthResults)-1 {
					prefix = "└──"
				}
				msg := ""
				if h.Message != "" {
					msg = fmt.Sprintf(" (%s)", h.Message)
				}
				fmt.Fprintf(w, "   %s %s %s: %s%s\n", prefix, healthStatusIcon(h.Status), h.Name, strings.ToLower(string(h.Status)), msg)
			}
		}
	}
	fmt.Fprintln(w)
}

func resultIcon(st task.Status) string {
	switch st {
	case task.StatusCompleted:
		return "✅"
	case task.StatusCancelled:
		return "⏸️"
	default:
		return "❌"
	}
}

func healthStatusIcon(status component.HealthStatus) string {
	switch status {
	case component.StatusHealthy:
		return "✅"
	case component.StatusDegraded:
		return "⚠️"
	case component.StatusUnhealthy:
		return "❌"
	default:
		return "❓"
	}
}
