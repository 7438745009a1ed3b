package execution

import (
	"sync"
	"time"

	"github.com/pipevine/pipevine/pkg/cache"
	"github.com/pipevine/pipevine/pkg/graph"
)

// runState is the scheduler's shared mutable view of one run: node statuses,
// unresolved dependency counts, the ready queue, and per-node results. All
// mutation happens under mu; workers only touch it through the methods below.
type runState struct {
	mu sync.Mutex

	statuses     map[string]Status
	depRemaining map[string]int
	dependents   map[string][]*graph.ExecNode
	outputs      map[string]map[string]interface{}
	keys         map[string]cache.Key
	report       *Report
	graph        *graph.Graph

	readyCh   chan *graph.ExecNode
	remaining int
	closeOnce sync.Once
}

func newRunState(g *graph.Graph, report *Report) *runState {
	st := &runState{
		statuses:     make(map[string]Status, g.Len()),
		depRemaining: make(map[string]int, g.Len()),
		dependents:   make(map[string][]*graph.ExecNode),
		outputs:      make(map[string]map[string]interface{}),
		keys:         make(map[string]cache.Key),
		report:       report,
		graph:        g,
		readyCh:      make(chan *graph.ExecNode, g.Len()),
		remaining:    g.Len(),
	}
	for _, n := range g.Nodes() {
		st.statuses[n.ID] = StatusPending

		// Several edges from the same producer resolve together, so
		// dependency counts track distinct producers, not edges.
		producers := make(map[string]bool)
		for _, in := range n.Ins {
			producers[in.From.ID] = true
		}
		st.depRemaining[n.ID] = len(producers)

		consumers := make(map[string]bool)
		for _, out := range n.Outs {
			if !consumers[out.To.ID] {
				consumers[out.To.ID] = true
				st.dependents[n.ID] = append(st.dependents[n.ID], out.To)
			}
		}
	}
	return st
}

// seedReady queues every node with no upstream dependencies.
func (st *runState) seedReady() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, n := range st.graph.Nodes() {
		if st.depRemaining[n.ID] == 0 {
			st.statuses[n.ID] = StatusReady
			st.readyCh <- n
		}
	}
	st.maybeCloseLocked()
}

func (st *runState) setRunning(n *graph.ExecNode) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.statuses[n.ID] = StatusRunning
}

// producerResult returns a terminal producer's outputs and cache key.
func (st *runState) producerResult(id string) (map[string]interface{}, cache.Key) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.outputs[id], st.keys[id]
}

func (st *runState) addRoutingError(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.report.RoutingErrors = append(st.report.RoutingErrors, err)
}

// complete records a node's terminal result and advances the frontier:
// success (fresh or cached) unlocks dependents whose last dependency this
// was; failure marks everything reachable through forward connections as
// skipped, transitively, leaving independent branches untouched.
func (st *runState) complete(n *graph.ExecNode, res *NodeResult) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.statuses[n.ID] = res.Status
	st.report.add(res)
	st.remaining--

	if res.Status.IsSuccess() {
		st.outputs[n.ID] = res.Outputs
		st.keys[n.ID] = cache.Key(res.CacheKey)
		for _, dep := range st.dependents[n.ID] {
			st.depRemaining[dep.ID]--
			if st.depRemaining[dep.ID] == 0 && st.statuses[dep.ID] == StatusPending {
				st.statuses[dep.ID] = StatusReady
				st.readyCh <- dep
			}
		}
	} else {
		st.skipDependentsLocked(n)
	}

	st.maybeCloseLocked()
}

func (st *runState) skipDependentsLocked(n *graph.ExecNode) {
	for _, dep := range st.dependents[n.ID] {
		if st.statuses[dep.ID] != StatusPending {
			continue
		}
		st.statuses[dep.ID] = StatusSkipped
		now := time.Now()
		st.report.add(&NodeResult{
			ID:       dep.ID,
			DefPath:  dep.DefPath,
			Status:   StatusSkipped,
			Started:  now,
			Finished: now,
		})
		st.remaining--
		st.skipDependentsLocked(dep)
	}
}

func (st *runState) maybeCloseLocked() {
	if st.remaining == 0 {
		st.closeOnce.Do(func() { close(st.readyCh) })
	}
}

// finalize fills the report with pending records for nodes that were never
// attempted (a cancelled run discards pending and ready nodes without
// marking them failed).
func (st *runState) finalize() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, n := range st.graph.Nodes() {
		if _, ok := st.report.Result(n.ID); !ok {
			st.report.add(&NodeResult{ID: n.ID, DefPath: n.DefPath, Status: StatusPending})
		}
	}
}
