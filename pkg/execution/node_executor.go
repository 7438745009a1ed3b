package execution

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pipevine/pipevine/pkg/cache"
	"github.com/pipevine/pipevine/pkg/errors"
	"github.com/pipevine/pipevine/pkg/graph"
	"github.com/pipevine/pipevine/pkg/workflow"
)

// executeNode resolves a node's inputs, consults the cache, and runs the
// interface when needed. It always returns a result; errors are carried in
// the result rather than aborting the run.
func (e *Engine) executeNode(ctx context.Context, n *graph.ExecNode, st *runState, cfg RunConfig, store *cache.Store) *NodeResult {
	res := &NodeResult{ID: n.ID, DefPath: n.DefPath, Started: time.Now()}
	defer func() { res.Finished = time.Now() }()

	sig := n.Iface.Signature()

	// Resolution order: defaults, then static parameters, then connection
	// values. A port never legally has more than one of the latter two, so
	// precedence only ever applies to defaults.
	inputs := make(map[string]interface{})
	for _, spec := range sig.Inputs() {
		if spec.Default != nil {
			inputs[spec.Name] = spec.Default
		}
	}
	for k, v := range n.Params {
		inputs[k] = v
	}

	upstream := make(map[string]cache.Key, len(n.Ins))
	for _, in := range n.Ins {
		producerOutputs, producerKey := st.producerResult(in.From.ID)
		value, ok := producerOutputs[in.FromPort]
		if !ok {
			res.Status = StatusFailed
			res.Err = &errors.UnresolvedInputError{NodeID: n.ID, Port: in.ToPort}
			return res
		}
		inputs[in.ToPort] = value
		upstream[in.ToPort] = producerKey
	}

	for _, spec := range sig.Inputs() {
		if !spec.Required {
			continue
		}
		if _, ok := inputs[spec.Name]; !ok {
			res.Status = StatusFailed
			res.Err = &errors.UnresolvedInputError{NodeID: n.ID, Port: spec.Name}
			return res
		}
	}

	config := ""
	if fp, ok := n.Iface.(workflow.Fingerprinter); ok {
		config = fp.Fingerprint()
	}
	key, err := cache.ComputeKey(n.Iface.Name(), config, n.Params, upstream)
	if err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("node %s: %w", n.ID, err)
		return res
	}
	res.CacheKey = key.String()

	if entry, found, err := store.Lookup(key); err != nil {
		e.logger.Warn("cache lookup failed, executing", zap.String("node", n.ID), zap.Error(err))
	} else if found {
		if verr := cache.VerifyArtifacts(entry, sig); verr != nil {
			e.logger.Warn("cache entry corrupt, re-executing", zap.String("node", n.ID), zap.Error(verr))
		} else {
			res.Status = StatusCached
			res.Outputs = entry.Outputs
			e.route(n, entry.Outputs, st)
			return res
		}
	}

	workDir := filepath.Join(cfg.WorkingDirectory, nodeDir(n.ID))
	if err := os.MkdirAll(workDir, 0755); err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("node %s: failed to create working directory: %w", n.ID, err)
		return res
	}

	outputs, err := n.Iface.Run(ctx, &workflow.RunRequest{
		NodeID:  n.ID,
		Inputs:  inputs,
		Params:  n.Params,
		WorkDir: workDir,
	})
	if err != nil {
		res.Status = StatusFailed
		if _, ok := err.(*errors.InterfaceExecutionError); ok {
			res.Err = err
		} else {
			res.Err = errors.NewInterfaceExecutionError(n.ID, n.Iface.Name(), err)
		}
		return res
	}

	if err := validateOutputs(n, sig, outputs); err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	res.Status = StatusSucceeded
	res.Outputs = outputs

	// A failed recording leaves the run correct and only costs a future
	// cache miss.
	entry := &cache.Entry{Key: key, NodeID: n.ID, Outputs: outputs, CreatedAt: time.Now()}
	if err := store.Record(entry); err != nil {
		e.logger.Warn("failed to record cache entry", zap.String("node", n.ID), zap.Error(err))
	}

	e.route(n, outputs, st)
	return res
}

// route drains designated outputs through the router, when one is attached.
// Router failures are collected on the report; they never fail the node.
func (e *Engine) route(n *graph.ExecNode, outputs map[string]interface{}, st *runState) {
	if e.router == nil || !e.router.Matches(n.DefPath) {
		return
	}
	if err := e.router.Route(n, outputs); err != nil {
		e.logger.Warn("output routing failed", zap.String("node", n.ID), zap.Error(err))
		st.addRoutingError(err)
	}
}

// validateOutputs checks that the interface populated every declared output
// and that file artifacts actually exist on disk.
func validateOutputs(n *graph.ExecNode, sig *workflow.Signature, outputs map[string]interface{}) error {
	for _, spec := range sig.Outputs() {
		value, ok := outputs[spec.Name]
		if !ok || value == nil {
			return &errors.InterfaceExecutionError{
				NodeID:    n.ID,
				Interface: n.Iface.Name(),
				Msg:       fmt.Sprintf("declared output %q was not populated", spec.Name),
			}
		}
		if !spec.Type.IsFileType() {
			continue
		}
		for _, path := range artifactPaths(value) {
			if _, err := os.Stat(path); err != nil {
				return &errors.InterfaceExecutionError{
					NodeID:    n.ID,
					Interface: n.Iface.Name(),
					Msg:       fmt.Sprintf("output %q references missing artifact %s", spec.Name, path),
				}
			}
		}
	}
	return nil
}

func artifactPaths(value interface{}) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		paths := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				paths = append(paths, s)
			}
		}
		return paths
	default:
		return nil
	}
}

// nodeDir maps an execution-graph identity to its private working directory,
// one path level per workflow nesting level.
func nodeDir(id string) string {
	return filepath.FromSlash(strings.ReplaceAll(id, ".", "/"))
}
