package execution

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// NodeResult is the terminal record of one execution-graph node.
type NodeResult struct {
	ID       string
	DefPath  string
	Status   Status
	Err      error
	CacheKey string
	Started  time.Time
	Finished time.Time
	Outputs  map[string]interface{}
}

// MarshalJSON flattens the result for report output; the error is rendered
// as its message.
func (r *NodeResult) MarshalJSON() ([]byte, error) {
	msg := ""
	if r.Err != nil {
		msg = r.Err.Error()
	}
	return json.Marshal(struct {
		ID       string                 `json:"id"`
		DefPath  string                 `json:"def_path"`
		Status   Status                 `json:"status"`
		Error    string                 `json:"error,omitempty"`
		CacheKey string                 `json:"cache_key,omitempty"`
		Started  time.Time              `json:"started"`
		Finished time.Time              `json:"finished"`
		Outputs  map[string]interface{} `json:"outputs,omitempty"`
	}{r.ID, r.DefPath, r.Status, msg, r.CacheKey, r.Started, r.Finished, r.Outputs})
}

// Duration returns how long the node ran. Zero for nodes never attempted.
func (r *NodeResult) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Report is the full per-node status table for one run. A run always
// completes with a report; partial success is a first-class outcome, so the
// report distinguishes "failed" from "skipped due to upstream failure" from
// "succeeded via cache hit" from "succeeded via fresh execution".
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	// RoutingErrors collects output-router failures. They are reported but
	// never retroactively invalidate a node's computation.
	RoutingErrors []error

	results map[string]*NodeResult
	order   []string
}

func newReport(runID string) *Report {
	return &Report{
		RunID:   runID,
		Started: time.Now(),
		results: make(map[string]*NodeResult),
	}
}

func (r *Report) add(res *NodeResult) {
	if _, exists := r.results[res.ID]; !exists {
		r.order = append(r.order, res.ID)
	}
	r.results[res.ID] = res
}

// Result returns the record for a node identity.
func (r *Report) Result(id string) (*NodeResult, bool) {
	res, ok := r.results[id]
	return res, ok
}

// Results returns all node records in graph order.
func (r *Report) Results() []*NodeResult {
	out := make([]*NodeResult, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.results[id])
	}
	return out
}

// Counts tallies node records by status.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, res := range r.results {
		counts[res.Status]++
	}
	return counts
}

// OK reports whether the run finished with no failed node. Skipped nodes do
// not fail a run on their own, but a skip always has a failed ancestor.
func (r *Report) OK() bool {
	for _, res := range r.results {
		if res.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Summary renders the status table, one line per node.
func (r *Report) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s: %s\n", r.RunID, r.statusLine())
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	for _, id := range ids {
		res := r.results[id]
		fmt.Fprintf(&sb, "  %-12s %s", res.Status, res.ID)
		if res.Err != nil {
			fmt.Fprintf(&sb, " (%v)", res.Err)
		}
		sb.WriteString("\n")
	}
	for _, err := range r.RoutingErrors {
		fmt.Fprintf(&sb, "  routing error: %v\n", err)
	}
	return sb.String()
}

func (r *Report) statusLine() string {
	counts := r.Counts()
	parts := make([]string, 0, len(counts))
	for _, status := range []Status{StatusSucceeded, StatusCached, StatusFailed, StatusSkipped, StatusPending} {
		if counts[status] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[status], status))
		}
	}
	if len(parts) == 0 {
		return "empty graph"
	}
	return strings.Join(parts, ", ")
}
