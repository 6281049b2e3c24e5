package metrics

import (
	"expvar"
)

// Process-wide counters mirroring the per-controller metrics snapshot.
// Published under expvar so any process already serving /debug/vars gets
// them for free.
var (
	checkpointsTotal = new(expvar.Int)
	rollbacksTotal   = new(expvar.Int)
	recoveriesTotal  = new(expvar.Int)
	branchesTotal    = new(expvar.Int)
	errorsCaught     = new(expvar.Int)
	recoveryNanos    = new(expvar.Int)
)

func init() {
	expvar.Publish("agentstate_checkpoints_total", checkpointsTotal)
	expvar.Publish("agentstate_rollbacks_total", rollbacksTotal)
	expvar.Publish("agentstate_recoveries_total", recoveriesTotal)
	expvar.Publish("agentstate_branches_total", branchesTotal)
	expvar.Publish("agentstate_errors_caught_total", errorsCaught)
	expvar.Publish("agentstate_recovery_nanoseconds_total", recoveryNanos)
}

func IncCheckpoints() { checkpointsTotal.Add(1) }

func IncRollbacks() { rollbacksTotal.Add(1) }

func IncRecoveries() { recoveriesTotal.Add(1) }

func IncBranches() { branchesTotal.Add(1) }

func IncErrorsCaught() { errorsCaught.Add(1) }

func AddRecoveryNanos(n int64) { recoveryNanos.Add(n) }
