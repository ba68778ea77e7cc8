package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// Health runs readiness probes concurrently.
type Health struct {
	probes  map[string]Probe
	timeout time.Duration
	log     *zap.Logger
}

// NewHealth bounds every check by timeout; zero means two seconds.
func NewHealth(timeout time.Duration, log *zap.Logger) *Health {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Health{probes: make(map[string]Probe), timeout: timeout, log: log.Named("health")}
}

// Add registers a probe under name. Register all probes before serving.
func (h *Health) Add(name string, p Probe) {
	if p != nil {
		h.probes[name] = p
	}
}

// Report is the readiness answer.
type Report struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// Check runs every probe with its own timeout. One failing probe does not
// cancel the others.
func (h *Health) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		g      errgroup.Group
		report = Report{Ready: true, Checks: make(map[string]string, len(h.probes))}
	)
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		probe := h.probes[name]
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			err := probe(pctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Ready = false
				report.Checks[name] = err.Error()
				h.log.Warn("readiness probe failed", zap.String("probe", name), zap.Error(err))
				return nil
			}
			report.Checks[name] = "ok"
			return nil
		})
	}
	_ = g.Wait()
	return report
}
