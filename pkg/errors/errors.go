// Package errors defines the error taxonomy for the pipevine engine.
//
// Structural errors (ConfigurationError, CycleError) are raised while a graph
// is being composed or built and are fatal to the whole run: nothing executes.
// Runtime errors (UnresolvedInputError, InterfaceExecutionError) are scoped to
// a single execution-graph node and propagate as a failed status.
// CacheCorruptionError is recovered locally by re-executing the node.
package errors

import (
	"fmt"
	"strings"
)

// ConfigurationError reports an invalid graph definition: an unknown port
// reference, a type mismatch, a destination port with more than one producer,
// or a required input left unsatisfied.
type ConfigurationError struct {
	// Ref identifies the offending element (e.g. "preproc.realign.in_files").
	Ref string
	// Msg is a human-readable description of the violation.
	Msg string
}

// NewConfigurationError creates a ConfigurationError for the given reference.
func NewConfigurationError(ref, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Ref: ref, Msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Ref == "" {
		return "configuration: " + e.Msg
	}
	return fmt.Sprintf("configuration: %s: %s", e.Ref, e.Msg)
}

// CycleError reports a directed cycle among connections, detected at graph
// build time. Nodes holds the identities left with unresolved in-degree after
// a stable topological pass.
type CycleError struct {
	Nodes []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	if len(e.Nodes) == 0 {
		return "graph contains a cycle"
	}
	return fmt.Sprintf("graph contains a cycle involving: %s", strings.Join(e.Nodes, ", "))
}

// UnresolvedInputError reports a required input that had no value when a node
// was about to execute. Graph validation catches statically unsatisfiable
// inputs; this guards the executor against a producer that succeeded without
// populating a declared output.
type UnresolvedInputError struct {
	NodeID string
	Port   string
}

// Error implements the error interface.
func (e *UnresolvedInputError) Error() string {
	return fmt.Sprintf("node %s: required input %q was not resolved", e.NodeID, e.Port)
}

// InterfaceExecutionError reports a failure of the external computation behind
// a node: a non-zero exit status, a malformed or missing declared output, or
// any error returned by the interface implementation.
type InterfaceExecutionError struct {
	NodeID    string
	Interface string
	Msg       string
	// Output captures diagnostic output from the external tool, if any.
	Output string
	Cause  error
}

// NewInterfaceExecutionError wraps a cause in an InterfaceExecutionError.
func NewInterfaceExecutionError(nodeID, iface string, cause error) *InterfaceExecutionError {
	return &InterfaceExecutionError{NodeID: nodeID, Interface: iface, Cause: cause}
}

// Error implements the error interface.
func (e *InterfaceExecutionError) Error() string {
	msg := e.Msg
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Output != "" {
		return fmt.Sprintf("node %s: interface %s failed: %s: %s", e.NodeID, e.Interface, msg, e.Output)
	}
	return fmt.Sprintf("node %s: interface %s failed: %s", e.NodeID, e.Interface, msg)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *InterfaceExecutionError) Unwrap() error {
	return e.Cause
}

// CacheCorruptionError reports a cache entry whose recorded artifacts are
// missing or unreadable. Callers treat the entry as a miss and re-execute.
type CacheCorruptionError struct {
	Key    string
	NodeID string
	Path   string
}

// Error implements the error interface.
func (e *CacheCorruptionError) Error() string {
	return fmt.Sprintf("cache entry %s for node %s is corrupt: artifact %s is missing or unreadable", e.Key, e.NodeID, e.Path)
}
