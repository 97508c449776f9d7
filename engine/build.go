package engine

import (
	"fmt"
	"time"

	"github.com/c360/visionflow/config"
	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/flowgraph"
	"github.com/c360/visionflow/operation"
)

// propertyApplier is implemented by operations embedding *operation.Base
type propertyApplier interface {
	ApplyProperties(values map[string]any) error
}

// Build creates an engine from a graph document. Operations are created
// through registry in name order, their properties applied, and the
// connections made in document order.
func Build(g *config.Graph, registry *operation.Registry, deps operation.Dependencies, opts ...Option) (*Engine, error) {
	if g == nil || registry == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Engine", "Build", "graph and registry required")
	}
	if err := g.Validate(); err != nil {
		return nil, errors.Wrap(err, "Engine", "Build", "validate graph")
	}

	name := g.Engine.Name
	if name == "" {
		name = DefaultName
	}
	opts = append([]Option{WithStopTimeout(g.Engine.StopTimeoutDuration())}, opts...)
	e, err := New(name, deps, opts...)
	if err != nil {
		return nil, err
	}

	for _, opName := range g.OperationNames() {
		oc := g.Operations[opName]
		op, err := registry.Create(oc.Type, opName, oc.Config, deps)
		if err != nil {
			return nil, errors.Wrap(err, "Engine", "Build", "create "+opName)
		}
		if len(oc.Properties) > 0 {
			applier, ok := op.(propertyApplier)
			if !ok {
				return nil, errors.WrapInvalid(
					fmt.Errorf("%w: %s has no properties", errors.ErrUnknownProperty, opName),
					"Engine", "Build", "apply properties")
			}
			if err := applier.ApplyProperties(oc.Properties); err != nil {
				return nil, errors.Wrap(err, "Engine", "Build", "properties of "+opName)
			}
		}
		if err := e.Add(op); err != nil {
			return nil, err
		}

		e.mu.Lock()
		e.types[opName] = oc.Type
		e.configs[opName] = oc.Config
		e.mu.Unlock()
	}

	for _, conn := range g.Connections {
		from, to, err := conn.Refs()
		if err != nil {
			return nil, errors.Wrap(err, "Engine", "Build", "connection")
		}
		if err := e.Connect(from.Operation, from.Socket, to.Operation, to.Socket); err != nil {
			return nil, errors.Wrap(err, "Engine", "Build", fmt.Sprintf("connect %s -> %s", from, to))
		}
	}

	e.logger.Debug("Engine built", "operations", len(g.Operations), "connections", len(g.Connections))
	return e, nil
}

// Document describes the live engine as a graph document: every operation
// with its type, its factory config and its current property values, and
// every connection between operations. Only engines whose operations were all
// created by Build can be documented.
func (e *Engine) Document() (*config.Graph, error) {
	g := &config.Graph{
		Version: config.CurrentVersion,
		Engine: config.EngineConfig{
			Name:        e.name,
			StopTimeout: e.stopTimeout.String(),
		},
		Operations: make(map[string]config.OperationConfig),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, op := range e.root.Operations() {
		name := op.Name()
		typ, ok := e.types[name]
		if !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s was not created from a factory", errors.ErrInvalidConfig, name),
				"Engine", "Document", "operation type")
		}

		oc := config.OperationConfig{Type: typ, Config: e.configs[name]}
		if c, ok := op.(operation.Configurable); ok {
			props := make(map[string]any)
			for _, info := range c.Properties() {
				v, err := c.Property(info.Name)
				if err != nil {
					return nil, errors.Wrap(err, "Engine", "Document", "read "+name+"."+info.Name)
				}
				if d, ok := v.(time.Duration); ok {
					v = d.String()
				}
				props[info.Name] = v
			}
			if len(props) > 0 {
				oc.Properties = props
			}
		}
		g.Operations[name] = oc
	}

	fg, err := flowgraph.FromContainer(e)
	if err != nil {
		return nil, errors.Wrap(err, "Engine", "Document", "read connections")
	}
	for _, edge := range fg.GetEdges() {
		g.Connections = append(g.Connections, config.Connection{
			From: edge.From.String(),
			To:   edge.To.String(),
		})
	}
	return g, nil
}
