// Package main provides a minimal HTTP server exposing debug endpoints.
package main

import (
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register /debug/pprof
	"os"
	"sort"
	"strings"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "agentstate server is running. See /healthz, /metrics, /debug/vars, /debug/pprof/")
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "ok")
	})

	// Prometheus-compatible metrics endpoint (no external deps)
	mux.HandleFunc("/metrics", promMetricsHandler)

	// Workload endpoints to generate metrics load
	mux.HandleFunc("/workload/start", wm.start)
	mux.HandleFunc("/workload/stop", wm.stop)

	addr := ":8080"
	if v := os.Getenv("AGENTSTATE_ADDR"); v != "" {
		addr = v
	}
	log.Printf("Starting agentstate server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// promMetricsHandler renders known expvar metrics in Prometheus text format.
func promMetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	type meta struct {
		typ, help string
	}
	metas := map[string]meta{
		"agentstate_checkpoints_total":          {typ: "counter", help: "Checkpoints created"},
		"agentstate_rollbacks_total":            {typ: "counter", help: "Rollback operations performed"},
		"agentstate_recoveries_total":           {typ: "counter", help: "Guarded operations recovered via fallback"},
		"agentstate_branches_total":             {typ: "counter", help: "Branches created"},
		"agentstate_errors_caught_total":        {typ: "counter", help: "Faults caught by guarded execution"},
		"agentstate_recovery_nanoseconds_total": {typ: "counter", help: "Total time spent in rollback recovery"},
	}

	// Collect variable names deterministically
	varNames := make([]string, 0, 64)
	expvar.Do(func(kv expvar.KeyValue) {
		varNames = append(varNames, kv.Key)
	})
	sort.Strings(varNames)

	for _, name := range varNames {
		v := expvar.Get(name)
		m, known := metas[name]
		if !known {
			// Minimal rendering: publish as an untyped gauge if numeric
			if iv, ok := v.(*expvar.Int); ok {
				_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", name)
				_, _ = fmt.Fprintf(w, "%s %s\n", name, iv.String())
			}
			continue
		}
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, sanitizeHelp(m.help))
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, m.typ)
		_, _ = fmt.Fprintf(w, "%s %s\n", name, v.String())
	}
}

func sanitizeHelp(s string) string {
	// Replace newlines with spaces to satisfy Prometheus text format
	return strings.ReplaceAll(s, "\n", " ")
}
