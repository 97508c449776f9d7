package config

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/operation"
)

// CurrentVersion is the graph document version this package reads
const CurrentVersion = "1"

// DefaultStopTimeout bounds how long an engine waits for its operations to stop
const DefaultStopTimeout = 5 * time.Second

// Graph is a graph document: the operations of one engine and the
// connections between their sockets
type Graph struct {
	Version     string                     `json:"version"`
	Engine      EngineConfig               `json:"engine"`
	Operations  map[string]OperationConfig `json:"operations"`
	Connections []Connection               `json:"connections,omitempty"`
}

// EngineConfig holds engine-wide settings
type EngineConfig struct {
	Name        string `json:"name,omitempty"`
	StopTimeout string `json:"stop_timeout,omitempty"`
}

// OperationConfig describes one operation instance. Config is handed to the
// factory named by Type; Properties are applied afterwards through
// SetProperty.
type OperationConfig struct {
	Type       string          `json:"type"`
	Config     json.RawMessage `json:"config,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
}

// Connection links an output socket to an input socket. Both ends are
// written as "operation.socket".
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Ref names a socket on an operation
type Ref struct {
	Operation string
	Socket    string
}

func (r Ref) String() string { return r.Operation + "." + r.Socket }

// ParseRef splits "operation.socket"
func ParseRef(s string) (Ref, error) {
	op, sock, ok := strings.Cut(s, ".")
	if !ok || op == "" || sock == "" || strings.Contains(sock, ".") {
		return Ref{}, errors.WrapInvalid(
			fmt.Errorf("%w: socket reference %q must be operation.socket", errors.ErrInvalidConfig, s),
			"Graph", "ParseRef", "split reference")
	}
	return Ref{Operation: op, Socket: sock}, nil
}

// Refs parses both ends of the connection
func (c Connection) Refs() (from, to Ref, err error) {
	if from, err = ParseRef(c.From); err != nil {
		return Ref{}, Ref{}, err
	}
	if to, err = ParseRef(c.To); err != nil {
		return Ref{}, Ref{}, err
	}
	return from, to, nil
}

// StopTimeoutDuration returns the configured stop timeout or the default
func (e EngineConfig) StopTimeoutDuration() time.Duration {
	if e.StopTimeout == "" {
		return DefaultStopTimeout
	}
	d, err := time.ParseDuration(e.StopTimeout)
	if err != nil || d <= 0 {
		return DefaultStopTimeout
	}
	return d
}

// OperationNames returns operation names in sorted order
func (g *Graph) OperationNames() []string {
	names := make([]string, 0, len(g.Operations))
	for name := range g.Operations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validate checks the document beyond what the schema can express: names,
// references to declared operations and single-source inputs.
func (g *Graph) Validate() error {
	if g.Version != CurrentVersion {
		return errors.WrapInvalid(
			fmt.Errorf("%w: unsupported version %q", errors.ErrInvalidConfig, g.Version),
			"Graph", "Validate", "version check")
	}

	if g.Engine.Name != "" {
		if err := operation.ValidateName(g.Engine.Name); err != nil {
			return errors.Wrap(err, "Graph", "Validate", "engine name")
		}
	}
	if g.Engine.StopTimeout != "" {
		d, err := time.ParseDuration(g.Engine.StopTimeout)
		if err != nil || d <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: stop_timeout %q", errors.ErrInvalidConfig, g.Engine.StopTimeout),
				"Graph", "Validate", "stop timeout")
		}
	}

	if len(g.Operations) == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: operations", errors.ErrMissingConfig),
			"Graph", "Validate", "operations check")
	}
	for _, name := range g.OperationNames() {
		op := g.Operations[name]
		if err := operation.ValidateName(name); err != nil {
			return errors.Wrap(err, "Graph", "Validate", "operation name")
		}
		if op.Type == "" {
			return errors.WrapInvalid(fmt.Errorf("%w: operation %s has no type", errors.ErrMissingConfig, name),
				"Graph", "Validate", "operation type")
		}
		if err := operation.ValidateFactoryConfig(op.Config); err != nil {
			return errors.Wrap(err, "Graph", "Validate", fmt.Sprintf("operation %s config", name))
		}
	}

	sources := make(map[string]string, len(g.Connections))
	for i, c := range g.Connections {
		from, to, err := c.Refs()
		if err != nil {
			return errors.Wrap(err, "Graph", "Validate", fmt.Sprintf("connection %d", i))
		}
		for _, ref := range []Ref{from, to} {
			if _, ok := g.Operations[ref.Operation]; !ok {
				return errors.WrapInvalid(
					fmt.Errorf("%w: connection %d references %q", errors.ErrOperationNotFound, i, ref.Operation),
					"Graph", "Validate", "connection reference")
			}
		}
		if prev, taken := sources[c.To]; taken {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s is fed by both %s and %s", errors.ErrAlreadyConnected, c.To, prev, c.From),
				"Graph", "Validate", "single source check")
		}
		sources[c.To] = c.From
	}
	return nil
}
