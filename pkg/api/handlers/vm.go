package handlers

import (
	"net/http"
	"time"

	"github.com/chronolab/chronovm/pkg/metrics"
	"github.com/chronolab/chronovm/pkg/vm/ir"
	"github.com/chronolab/chronovm/pkg/vm/orchestrator"
)

// VMHandler exposes the pure VM core (pkg/vm/orchestrator) over HTTP. It
// holds no state of its own beyond the metrics recorder: every run is
// computed fresh from the request body and returned in the response. The
// orchestrator itself never imports pkg/metrics — instrumentation happens
// here, at the boundary, so the VM core stays a pure function of its input.
type VMHandler struct {
	maxSteps int64
	vmMetrics metrics.VMMetrics
}

// NewVMHandler builds a VMHandler. maxSteps is the default step budget
// applied when a request doesn't specify one; zero selects
// orchestrator.DefaultMaxSteps.
func NewVMHandler(maxSteps int64) *VMHandler {
	return &VMHandler{maxSteps: maxSteps, vmMetrics: metrics.NewVMMetrics()}
}

type runRequest struct {
	Program  ir.Program `json:"program"`
	MaxSteps int64      `json:"maxSteps,omitempty"`
	GC       bool       `json:"gc,omitempty"`
}

type runResponse struct {
	Halted         bool     `json:"halted"`
	Output         []string `json:"output"`
	StepCount      int64    `json:"stepCount"`
	SnapshotCount  int      `json:"snapshotCount"`
	Error          string   `json:"error,omitempty"`
}

// Run handles POST /api/v1/vm/runs: executes a program to completion (or
// budget exhaustion) and returns its final output and step count. The full
// sealed trace is not returned inline — pkg/trace/archive is the intended
// path for retrieving it durably.
func (h *VMHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = h.maxSteps
	}

	start := time.Now()
	result := orchestrator.Run(req.Program, orchestrator.Options{MaxSteps: maxSteps, GC: req.GC})

	metrics.RecordRunCompleted(h.vmMetrics, time.Since(start), !result.FinalState.IsRunning)
	metrics.RecordHeapSize(h.vmMetrics, len(result.FinalState.Heap))
	metrics.RecordEnvSize(h.vmMetrics, countBindings(result.FinalState.EnvironmentRecords))
	metrics.RecordSteps(h.vmMetrics, result.FinalState.StepCount)

	resp := runResponse{
		Halted:        !result.FinalState.IsRunning,
		Output:        result.FinalState.Output,
		StepCount:     result.FinalState.StepCount,
		SnapshotCount: result.Trace.Len(),
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}

	writeJSON(w, http.StatusOK, okResponse(resp))
}

func countBindings(records map[ir.EnvironmentAddress]ir.EnvironmentRecord) int {
	total := 0
	for _, rec := range records {
		total += len(rec.Bindings)
	}
	return total
}
