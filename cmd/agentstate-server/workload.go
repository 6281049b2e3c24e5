package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/ekessh/agent-checkpoint-protocol/pkg/agentstate"
)

// workloadManager drives a synthetic agent session so the metrics
// endpoints have live counters to expose.
type workloadManager struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

var wm workloadManager

func (m *workloadManager) start(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		http.Error(w, "workload already running", http.StatusConflict)
		return
	}
	rate := 200 * time.Millisecond
	if v := r.URL.Query().Get("rate_ms"); v != "" {
		if ms, err := time.ParseDuration(v + "ms"); err == nil {
			rate = ms
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go func() { runSessionLoop(ctx, rate) }()
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, "workload started at %v\n", rate)
}

func (m *workloadManager) stop(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "workload stopped\n")
}

// runSessionLoop checkpoints, occasionally rolls back or branches, and
// keeps going until the context is cancelled.
func runSessionLoop(ctx context.Context, rate time.Duration) {
	eng, err := agentstate.New(agentstate.Options{AgentName: "load-agent", MaxCheckpoints: 200})
	if err != nil {
		return
	}

	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			step++
			eng.Checkpoint(ctx,
				map[string]any{"step": step, "noise": rand.Float64()},
				nil, fmt.Sprintf("synthetic step %d", step), fmt.Sprintf("step-%d", step))

			switch rand.Intn(10) {
			case 0:
				_, _ = eng.Rollback(1 + rand.Intn(3))
			case 1:
				eng.Branch(fmt.Sprintf("probe-%d", step), "")
				_, _ = eng.SwitchBranch(agentstate.MainBranch)
			}
		}
	}
}
