// Package pipeline loads workflow definitions from YAML files. A definition
// is validated against an embedded JSON schema, then decoded through
// intermediate structures and assembled into a workflow.Workflow plus an
// optional sink configuration.
package pipeline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pipevine/pipevine/pkg/interfaces"
	"github.com/pipevine/pipevine/pkg/sink"
	"github.com/pipevine/pipevine/pkg/workflow"
)

// Definition is the decoded form of a pipeline YAML file.
type Definition struct {
	Version  string      `yaml:"version"`
	Workflow workflowDef `yaml:"workflow"`
	Sink     *sinkDef    `yaml:"sink,omitempty"`
}

type workflowDef struct {
	Name        string          `yaml:"name"`
	Nodes       []nodeDef       `yaml:"nodes,omitempty"`
	Workflows   []workflowDef   `yaml:"workflows,omitempty"`
	Connections []connectionDef `yaml:"connections,omitempty"`
	Expose      []exposeDef     `yaml:"expose,omitempty"`
	Iterables   []iterableDef   `yaml:"iterables,omitempty"`
}

// nodeDef is the union of all node kind configurations; the schema constrains
// which keys each kind accepts only loosely, so the assembler re-checks the
// fields it actually consumes.
type nodeDef struct {
	Name string `yaml:"name"`
	Kind string `yaml:"interface"`

	// identity
	Fields map[string]string `yaml:"fields,omitempty"`

	// command
	Program   string            `yaml:"program,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Inputs    map[string]string `yaml:"inputs,omitempty"`
	Outputs   map[string]string `yaml:"outputs,omitempty"`
	Artifacts map[string]string `yaml:"artifacts,omitempty"`

	// datagrabber
	BaseDirectory string                `yaml:"base_directory,omitempty"`
	Template      string                `yaml:"template,omitempty"`
	TemplateArgs  map[string][][]string `yaml:"template_args,omitempty"`

	Params map[string]interface{} `yaml:"params,omitempty"`
}

type connectionDef struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type exposeDef struct {
	Alias  string `yaml:"alias"`
	Target string `yaml:"target"`
}

type iterableDef struct {
	Node   string        `yaml:"node"`
	Field  string        `yaml:"field"`
	Values []interface{} `yaml:"values"`
}

type sinkDef struct {
	BaseDirectory string    `yaml:"base_directory"`
	Container     string    `yaml:"container,omitempty"`
	Rules         []ruleDef `yaml:"rules"`
}

type ruleDef struct {
	Node string `yaml:"node"`
	Port string `yaml:"port"`
	Dest string `yaml:"dest"`
}

// Load reads, schema-validates, and assembles a pipeline definition file.
func Load(path string) (*workflow.Workflow, *sink.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	return Parse(data)
}

// Parse assembles a pipeline definition from YAML bytes.
func Parse(data []byte) (*workflow.Workflow, *sink.Config, error) {
	if err := ValidateAgainstSchema(data); err != nil {
		return nil, nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, nil, fmt.Errorf("failed to parse definition YAML: %w", err)
	}

	wf, err := buildWorkflow(def.Workflow)
	if err != nil {
		return nil, nil, err
	}

	var sinkCfg *sink.Config
	if def.Sink != nil {
		sinkCfg = &sink.Config{
			BaseDirectory: def.Sink.BaseDirectory,
			Container:     def.Sink.Container,
		}
		for _, rule := range def.Sink.Rules {
			sinkCfg.Rules = append(sinkCfg.Rules, sink.Rule{
				Node: rule.Node,
				Port: rule.Port,
				Dest: rule.Dest,
			})
		}
	}
	return wf, sinkCfg, nil
}

// buildWorkflow assembles one workflow level: sub-workflows and nodes first,
// then exposures, then connections, then iterables, so each step can refer
// to everything the previous ones declared.
func buildWorkflow(def workflowDef) (*workflow.Workflow, error) {
	wf, err := workflow.NewWorkflow(def.Name)
	if err != nil {
		return nil, err
	}

	for _, subDef := range def.Workflows {
		sub, err := buildWorkflow(subDef)
		if err != nil {
			return nil, err
		}
		if err := wf.AddWorkflow(sub); err != nil {
			return nil, fmt.Errorf("workflow %s: %w", def.Name, err)
		}
	}

	for _, nd := range def.Nodes {
		node, err := buildNode(nd)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", def.Name, err)
		}
		if err := wf.AddNode(node); err != nil {
			return nil, fmt.Errorf("workflow %s: %w", def.Name, err)
		}
	}

	for _, exp := range def.Expose {
		if err := wf.Expose(exp.Alias, exp.Target); err != nil {
			return nil, fmt.Errorf("workflow %s: %w", def.Name, err)
		}
	}

	links := make([]workflow.Link, 0, len(def.Connections))
	for _, conn := range def.Connections {
		links = append(links, workflow.Link{From: conn.From, To: conn.To})
	}
	if len(links) > 0 {
		if err := wf.Connect(links...); err != nil {
			return nil, fmt.Errorf("workflow %s: %w", def.Name, err)
		}
	}

	for _, it := range def.Iterables {
		values, err := evalValues(it.Values)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: iterable %s.%s: %w", def.Name, it.Node, it.Field, err)
		}
		if err := wf.SetIterable(it.Node, it.Field, values); err != nil {
			return nil, fmt.Errorf("workflow %s: %w", def.Name, err)
		}
	}

	return wf, nil
}

// buildNode constructs the interface for a node definition and binds its
// static parameters.
func buildNode(def nodeDef) (*workflow.Node, error) {
	iface, err := buildInterface(def)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", def.Name, err)
	}
	node, err := workflow.NewNode(def.Name, iface)
	if err != nil {
		return nil, err
	}
	for field, raw := range def.Params {
		value, err := evalParam(raw)
		if err != nil {
			return nil, fmt.Errorf("node %s: param %s: %w", def.Name, field, err)
		}
		if err := node.SetParam(field, value); err != nil {
			return nil, fmt.Errorf("node %s: %w", def.Name, err)
		}
	}
	return node, nil
}

func buildInterface(def nodeDef) (workflow.Interface, error) {
	switch def.Kind {
	case "identity":
		fields, err := parseFieldTypes(def.Fields)
		if err != nil {
			return nil, err
		}
		return interfaces.NewIdentity(fields)

	case "command":
		sig, err := parseSignature(def.Inputs, def.Outputs)
		if err != nil {
			return nil, err
		}
		return interfaces.NewCommand(def.Name, sig, interfaces.CommandSpec{
			Program: def.Program,
			Args:    def.Args,
			Outputs: def.Artifacts,
		})

	case "datagrabber":
		sig, err := parseSignature(def.Inputs, def.Outputs)
		if err != nil {
			return nil, err
		}
		return interfaces.NewDataGrabber(def.Name, sig, interfaces.GrabSpec{
			BaseDirectory: def.BaseDirectory,
			Template:      def.Template,
			Args:          def.TemplateArgs,
		})

	case "jsonselect":
		return interfaces.NewJSONSelect(), nil

	default:
		return nil, fmt.Errorf("unknown interface kind %q", def.Kind)
	}
}

// parseSignature decodes input/output port maps. A port declared as
// "file" is required; a trailing "?" marks it optional.
func parseSignature(inputs, outputs map[string]string) (*workflow.Signature, error) {
	sig := workflow.NewSignature()
	for name, typ := range inputs {
		spec, err := parsePortSpec(name, typ)
		if err != nil {
			return nil, err
		}
		if err := sig.AddInput(spec); err != nil {
			return nil, err
		}
	}
	for name, typ := range outputs {
		spec, err := parsePortSpec(name, typ)
		if err != nil {
			return nil, err
		}
		spec.Required = false
		if err := sig.AddOutput(spec); err != nil {
			return nil, err
		}
	}
	return sig, nil
}

func parsePortSpec(name, typ string) (workflow.PortSpec, error) {
	required := true
	if strings.HasSuffix(typ, "?") {
		required = false
		typ = strings.TrimSuffix(typ, "?")
	}
	spec := workflow.PortSpec{
		Name:     name,
		Type:     workflow.PortType(typ),
		Required: required,
	}
	return spec, nil
}

func parseFieldTypes(fields map[string]string) (map[string]workflow.PortType, error) {
	types := make(map[string]workflow.PortType, len(fields))
	for name, typ := range fields {
		types[name] = workflow.PortType(strings.TrimSuffix(typ, "?"))
	}
	return types, nil
}

func evalValues(values []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(values))
	for i, raw := range values {
		value, err := evalParam(raw)
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}
