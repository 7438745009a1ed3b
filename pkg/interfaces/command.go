package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pipevine/pipevine/pkg/errors"
	"github.com/pipevine/pipevine/pkg/workflow"
)

var argPlaceholderRegex = regexp.MustCompile(`\$\{([a-zA-Z][a-zA-Z0-9_]*)\}`)

// CommandSpec declares how a Command invocation is assembled from resolved
// inputs and where its artifacts land.
type CommandSpec struct {
	// Program is the executable to run, resolved through PATH unless absolute.
	Program string

	// Args are the argument templates. A `${port}` placeholder is replaced
	// with the resolved input value; an argument consisting of exactly one
	// placeholder bound to a file list expands into one argument per file.
	Args []string

	// Outputs maps each output port to a glob pattern, relative to the node's
	// working directory, locating the artifact the program produced. Patterns
	// may also use `${port}` placeholders.
	Outputs map[string]string
}

// Command runs an external executable inside the node's working directory
// and collects its file artifacts by glob. Stdout and stderr are captured
// and attached to the execution error on failure.
type Command struct {
	name string
	sig  *workflow.Signature
	spec CommandSpec
}

// NewCommand builds a command interface. Every output port must be declared
// as a file or file list, and every output must have a glob pattern.
func NewCommand(name string, sig *workflow.Signature, spec CommandSpec) (*Command, error) {
	if !workflow.ValidName(name) {
		return nil, fmt.Errorf("command: invalid interface name %q", name)
	}
	if spec.Program == "" {
		return nil, fmt.Errorf("command %s: program is required", name)
	}
	for _, out := range sig.Outputs() {
		if !out.Type.IsFileType() {
			return nil, fmt.Errorf("command %s: output %q must be a file or file list, got %s", name, out.Name, out.Type)
		}
		if _, ok := spec.Outputs[out.Name]; !ok {
			return nil, fmt.Errorf("command %s: output %q has no artifact pattern", name, out.Name)
		}
	}
	for port := range spec.Outputs {
		if _, ok := sig.Output(port); !ok {
			return nil, fmt.Errorf("command %s: artifact pattern for undeclared output %q", name, port)
		}
	}
	return &Command{name: name, sig: sig, spec: spec}, nil
}

// Name implements workflow.Interface.
func (c *Command) Name() string {
	return c.name
}

// Fingerprint implements workflow.Fingerprinter: two commands assembling
// different invocations must not share a cache entry, whatever their names.
func (c *Command) Fingerprint() string {
	data, _ := json.Marshal(c.spec)
	return string(data)
}

// Signature implements workflow.Interface.
func (c *Command) Signature() *workflow.Signature {
	return c.sig
}

// Run assembles the argument vector, executes the program with the node's
// working directory as cwd, and globs the declared artifacts.
func (c *Command) Run(ctx context.Context, req *workflow.RunRequest) (map[string]interface{}, error) {
	args, err := c.renderArgs(req.Inputs)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, c.spec.Program, args...)
	cmd.Dir = req.WorkDir
	combined, err := cmd.CombinedOutput()
	if err != nil {
		return nil, &errors.InterfaceExecutionError{
			NodeID:    req.NodeID,
			Interface: c.name,
			Msg:       fmt.Sprintf("%s %s: %v", c.spec.Program, strings.Join(args, " "), err),
			Output:    string(combined),
			Cause:     err,
		}
	}

	outputs := make(map[string]interface{}, len(c.spec.Outputs))
	for _, spec := range c.sig.Outputs() {
		pattern, err := substitutePlaceholders(c.spec.Outputs[spec.Name], req.Inputs)
		if err != nil {
			return nil, fmt.Errorf("command %s: output %q: %w", c.name, spec.Name, err)
		}
		matches, err := filepath.Glob(filepath.Join(req.WorkDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("command %s: output %q: bad pattern %q: %w", c.name, spec.Name, pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("command %s: output %q: no artifact matched %q", c.name, spec.Name, pattern)
		}
		sort.Strings(matches)
		switch spec.Type {
		case workflow.TypeFile:
			if len(matches) > 1 {
				return nil, fmt.Errorf("command %s: output %q: %d artifacts matched %q, want one", c.name, spec.Name, len(matches), pattern)
			}
			outputs[spec.Name] = matches[0]
		default:
			outputs[spec.Name] = matches
		}
	}
	return outputs, nil
}

func (c *Command) renderArgs(inputs map[string]interface{}) ([]string, error) {
	args := make([]string, 0, len(c.spec.Args))
	for _, tmpl := range c.spec.Args {
		// An argument that is exactly one placeholder bound to a list expands
		// into one argument per element.
		if m := argPlaceholderRegex.FindStringSubmatch(tmpl); m != nil && m[0] == tmpl {
			value, ok := inputs[m[1]]
			if !ok {
				return nil, fmt.Errorf("command %s: argument references unresolved input %q", c.name, m[1])
			}
			if list, ok := asStringList(value); ok {
				args = append(args, list...)
				continue
			}
			args = append(args, fmt.Sprint(value))
			continue
		}
		rendered, err := substitutePlaceholders(tmpl, inputs)
		if err != nil {
			return nil, fmt.Errorf("command %s: %w", c.name, err)
		}
		args = append(args, rendered)
	}
	return args, nil
}

func substitutePlaceholders(tmpl string, inputs map[string]interface{}) (string, error) {
	var missing string
	out := argPlaceholderRegex.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[2 : len(match)-1]
		value, ok := inputs[name]
		if !ok {
			missing = name
			return match
		}
		if list, ok := asStringList(value); ok {
			return strings.Join(list, " ")
		}
		return fmt.Sprint(value)
	})
	if missing != "" {
		return "", fmt.Errorf("template %q references unresolved input %q", tmpl, missing)
	}
	return out, nil
}

func asStringList(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []interface{}:
		list := make([]string, len(v))
		for i, item := range v {
			list[i] = fmt.Sprint(item)
		}
		return list, true
	default:
		return nil, false
	}
}
