// Package sink routes final artifacts into a persistent, human-meaningful
// layout. After a node designated by a rule succeeds, its declared outputs
// are copied (never moved) under the sink base directory following a naming
// template parameterized by the node's iterable values; the working-directory
// copy remains the cache's source of truth. Routing is a pure side effect:
// failures are reported but never invalidate the computation.
package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pipevine/pipevine/pkg/graph"
	"github.com/pipevine/pipevine/pkg/validation"
)

// Rule maps one final output to a destination template. Dest may contain
// ${placeholder} references resolved from the producing clone's iterable
// values, plus ${node} (the definition path's last segment) and ${port}.
// A field bound by more than one sweep is referenced as ${sourcepath.field}.
type Rule struct {
	// Node is the definition path of the producing node (e.g.
	// "volanalysis.contrastestimate").
	Node string
	// Port is the output port to route.
	Port string
	// Dest is the destination directory template, relative to the base
	// directory and container.
	Dest string
}

// Config configures the output router.
type Config struct {
	// BaseDirectory is the persistent storage root.
	BaseDirectory string
	// Container is an optional subdirectory grouping all routed outputs of
	// one pipeline (e.g. "results/level1_output").
	Container string
	// Rules are the routing rules.
	Rules []Rule
}

// Router copies designated outputs into persistent storage.
type Router struct {
	cfg       Config
	validator *validation.DestinationValidator
	logger    *zap.Logger
}

// NewRouter creates a router for the given configuration.
func NewRouter(cfg Config, logger *zap.Logger) (*Router, error) {
	validator, err := validation.NewDestinationValidator(cfg.BaseDirectory)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, validator: validator, logger: logger}, nil
}

// Matches reports whether any rule designates the given definition path as
// final.
func (r *Router) Matches(defPath string) bool {
	for _, rule := range r.cfg.Rules {
		if rule.Node == defPath {
			return true
		}
	}
	return false
}

// Route copies the node's designated outputs to their destinations. All
// matching rules are attempted; errors are accumulated so one full rule
// failure does not stop the others.
func (r *Router) Route(n *graph.ExecNode, outputs map[string]interface{}) error {
	var failures []string
	for _, rule := range r.cfg.Rules {
		if rule.Node != n.DefPath {
			continue
		}
		if err := r.routeOne(n, rule, outputs); err != nil {
			failures = append(failures, err.Error())
			continue
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("sink: node %s: %s", n.ID, strings.Join(failures, "; "))
	}
	return nil
}

var placeholderRegex = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

func (r *Router) routeOne(n *graph.ExecNode, rule Rule, outputs map[string]interface{}) error {
	value, ok := outputs[rule.Port]
	if !ok {
		return fmt.Errorf("rule %s.%s: output port not present", rule.Node, rule.Port)
	}

	dest, err := r.substitute(rule.Dest, n, rule.Port)
	if err != nil {
		return err
	}
	if r.cfg.Container != "" {
		dest = filepath.Join(r.cfg.Container, dest)
	}
	destDir, err := r.validator.Validate(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination %s: %w", destDir, err)
	}

	spec, _ := n.Iface.Signature().Output(rule.Port)
	if spec.Type.IsFileType() {
		for _, src := range filePaths(value) {
			target := filepath.Join(destDir, filepath.Base(src))
			if err := copyFile(src, target); err != nil {
				return err
			}
			r.logger.Info("routed artifact",
				zap.String("node", n.ID),
				zap.String("port", rule.Port),
				zap.String("dest", target))
		}
		return nil
	}

	// Non-file values are materialized as JSON next to the file artifacts.
	target := filepath.Join(destDir, rule.Port+".json")
	if err := writeJSON(target, value); err != nil {
		return err
	}
	r.logger.Info("routed value",
		zap.String("node", n.ID),
		zap.String("port", rule.Port),
		zap.String("dest", target))
	return nil
}

// substitute resolves ${placeholder} references in a destination template.
// A bare ${field} resolves against the clone's iterable bindings; when two
// independent sweeps bind the same field name the reference is ambiguous and
// must be qualified as ${sourcepath.field}. Unresolvable placeholders are an
// error rather than an empty segment.
func (r *Router) substitute(template string, n *graph.ExecNode, port string) (string, error) {
	var missing, ambiguous []string
	out := placeholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderRegex.FindStringSubmatch(match)[1]
		switch name {
		case "node":
			segs := strings.Split(n.DefPath, ".")
			return segs[len(segs)-1]
		case "port":
			return port
		}
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			if v, ok := n.Tuple.SourceValue(name[:idx], name[idx+1:]); ok {
				return fmt.Sprint(v)
			}
			missing = append(missing, name)
			return match
		}
		switch bindings := n.Tuple.Bindings(name); len(bindings) {
		case 1:
			return fmt.Sprint(bindings[0].Value)
		case 0:
			missing = append(missing, name)
		default:
			ambiguous = append(ambiguous, name)
		}
		return match
	})
	if len(ambiguous) > 0 {
		return "", fmt.Errorf("template %q: placeholders bound by more than one sweep, qualify them by source path: %s", template, strings.Join(ambiguous, ", "))
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("template %q references unknown placeholders: %s", template, strings.Join(missing, ", "))
	}
	return out, nil
}

func filePaths(value interface{}) []string {
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

// copyFile copies src to dst. The source stays in place: the node's working
// directory remains the cache's source of truth.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open artifact %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Sync()
}

func writeJSON(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
