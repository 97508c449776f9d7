package flowgraph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/c360/visionflow/operation"
	"github.com/c360/visionflow/socket"
)

// Container is a set of operations wired together
type Container interface {
	Name() string
	Operations() []operation.Operation
}

// Validation statuses
const (
	StatusHealthy  = "healthy"
	StatusWarnings = "warnings"
)

// Orphan issues
const (
	IssueNoSource  = "no_source"
	IssueNoTargets = "no_targets"
)

// FlowGraph represents a directed graph of operation connections
type FlowGraph struct {
	nodes map[string]*OperationNode
	edges []FlowEdge
}

// OperationNode represents an operation in the flow graph
type OperationNode struct {
	Name      string
	Operation operation.Operation
	Inputs    []SocketInfo
	Outputs   []SocketInfo

	// boundary marks a socket wired through the container's exposed proxies
	boundary bool
}

// SocketInfo contains socket metadata for graph analysis
type SocketInfo struct {
	Name      string
	Direction socket.Direction
	Required  bool
	Group     int
	Connected bool
}

// FlowEdge represents a connection between two operation sockets
type FlowEdge struct {
	From  SocketRef `json:"from"`
	To    SocketRef `json:"to"`
	Lossy bool      `json:"lossy,omitempty"`
}

// SocketRef references a specific socket on an operation
type SocketRef struct {
	Operation string `json:"operation"`
	Socket    string `json:"socket"`
}

func (r SocketRef) String() string { return r.Operation + "." + r.Socket }

// FlowAnalysisResult contains the results of connectivity analysis
type FlowAnalysisResult struct {
	ConnectedComponents [][]string         `json:"connected_components"`
	ConnectedEdges      []FlowEdge         `json:"connected_edges"`
	DisconnectedNodes   []DisconnectedNode `json:"disconnected_nodes"`
	OrphanedSockets     []OrphanedSocket   `json:"orphaned_sockets"`
	ValidationStatus    string             `json:"validation_status"`
}

// DisconnectedNode represents an operation with no connections
type DisconnectedNode struct {
	Operation   string   `json:"operation"`
	Issue       string   `json:"issue"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// OrphanedSocket represents a socket with no connections
type OrphanedSocket struct {
	Operation string           `json:"operation"`
	Socket    string           `json:"socket"`
	Direction socket.Direction `json:"direction"`
	Issue     string           `json:"issue"`
	Required  bool             `json:"required"`
}

// NewFlowGraph creates a new empty FlowGraph
func NewFlowGraph() *FlowGraph {
	return &FlowGraph{
		nodes: make(map[string]*OperationNode),
		edges: make([]FlowEdge, 0),
	}
}

// FromContainer builds a FlowGraph from the current wiring of c
func FromContainer(c Container) (*FlowGraph, error) {
	g := NewFlowGraph()
	ops := c.Operations()
	for _, op := range ops {
		if err := g.AddOperationNode(op.Name(), op); err != nil {
			return nil, err
		}
	}

	for _, op := range ops {
		for _, name := range op.OutputNames() {
			out := op.Output(name)
			if out == nil {
				continue
			}
			for _, target := range out.Targets() {
				to, ok := g.owner(target)
				if !ok {
					g.nodes[op.Name()].boundary = true
					continue
				}
				g.edges = append(g.edges, FlowEdge{
					From:  SocketRef{Operation: op.Name(), Socket: name},
					To:    SocketRef{Operation: to, Socket: target.Name()},
					Lossy: lossy(target),
				})
			}
		}
		for _, name := range op.InputNames() {
			in := op.Input(name)
			if in == nil || in.Source() == nil {
				continue
			}
			if _, ok := g.ownerOfOutput(in.Source()); !ok {
				g.nodes[op.Name()].boundary = true
			}
		}
	}
	return g, nil
}

// Analyze builds the graph for c and analyzes it
func Analyze(c Container) (*FlowAnalysisResult, error) {
	g, err := FromContainer(c)
	if err != nil {
		return nil, err
	}
	return g.AnalyzeConnectivity(), nil
}

// owner finds the node whose input is in
func (g *FlowGraph) owner(in socket.Input) (string, bool) {
	node, ok := g.nodes[in.Owner()]
	if !ok || node.Operation.Input(in.Name()) != in {
		return "", false
	}
	return node.Name, true
}

func (g *FlowGraph) ownerOfOutput(out socket.Output) (string, bool) {
	node, ok := g.nodes[out.Owner()]
	if !ok || node.Operation.Output(out.Name()) != out {
		return "", false
	}
	return node.Name, true
}

func lossy(in socket.Input) bool {
	l, ok := in.(interface{ Lossy() bool })
	return ok && l.Lossy()
}

// GetNodes returns a copy of the operation nodes
func (g *FlowGraph) GetNodes() map[string]*OperationNode {
	result := make(map[string]*OperationNode, len(g.nodes))
	for k, v := range g.nodes {
		nodeCopy := *v
		nodeCopy.Inputs = slices.Clone(v.Inputs)
		nodeCopy.Outputs = slices.Clone(v.Outputs)
		result[k] = &nodeCopy
	}
	return result
}

// GetEdges returns the edges in the graph
func (g *FlowGraph) GetEdges() []FlowEdge {
	return slices.Clone(g.edges)
}

// AddOperationNode adds an operation as a node in the graph
func (g *FlowGraph) AddOperationNode(name string, op operation.Operation) error {
	if name == "" {
		return fmt.Errorf("operation name cannot be empty")
	}
	if op == nil {
		return fmt.Errorf("operation cannot be nil")
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("operation %s already exists in graph", name)
	}

	node := &OperationNode{Name: name, Operation: op}
	for _, sname := range op.InputNames() {
		in := op.Input(sname)
		info := SocketInfo{Name: sname, Direction: socket.DirectionInput}
		if in != nil {
			info.Direction = in.Direction()
			info.Connected = in.Source() != nil
		}
		if s, ok := in.(*socket.InputSocket); ok {
			info.Required = !s.Optional()
			info.Group = s.Group()
		}
		node.Inputs = append(node.Inputs, info)
	}
	for _, sname := range op.OutputNames() {
		out := op.Output(sname)
		info := SocketInfo{Name: sname, Direction: socket.DirectionOutput}
		if out != nil {
			info.Direction = out.Direction()
			info.Connected = len(out.Targets()) > 0
		}
		node.Outputs = append(node.Outputs, info)
	}

	g.nodes[name] = node
	return nil
}

// AnalyzeConnectivity performs graph connectivity analysis
func (g *FlowGraph) AnalyzeConnectivity() *FlowAnalysisResult {
	result := &FlowAnalysisResult{
		ConnectedEdges:      g.GetEdges(),
		ValidationStatus:    StatusHealthy,
		DisconnectedNodes:   []DisconnectedNode{},
		ConnectedComponents: g.findConnectedComponents(),
		OrphanedSockets:     g.findOrphanedSockets(),
	}

	linked := make(map[string]bool)
	for _, edge := range g.edges {
		linked[edge.From.Operation] = true
		linked[edge.To.Operation] = true
	}
	for _, name := range g.sortedNames() {
		if linked[name] || g.nodes[name].boundary {
			continue
		}
		result.DisconnectedNodes = append(result.DisconnectedNodes, DisconnectedNode{
			Operation:   name,
			Issue:       "Operation has no connections",
			Suggestions: []string{"Connect it to another operation", "Remove it from the graph"},
		})
	}

	hasCriticalIssues := false
	for _, s := range result.OrphanedSockets {
		if s.Required {
			hasCriticalIssues = true
			break
		}
	}
	if len(result.DisconnectedNodes) > 0 || hasCriticalIssues {
		result.ValidationStatus = StatusWarnings
	}
	return result
}

func (g *FlowGraph) sortedNames() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// findConnectedComponents uses DFS to find connected components, treating
// edges as undirected
func (g *FlowGraph) findConnectedComponents() [][]string {
	adj := make(map[string][]string)
	for _, edge := range g.edges {
		from, to := edge.From.Operation, edge.To.Operation
		adj[from] = append(adj[from], to)
		adj[to] = append(adj[to], from)
	}

	visited := make(map[string]bool)
	components := [][]string{}
	for _, name := range g.sortedNames() {
		if visited[name] {
			continue
		}
		var cluster []string
		g.dfs(name, adj, visited, &cluster)
		slices.Sort(cluster)
		components = append(components, cluster)
	}
	return components
}

func (g *FlowGraph) dfs(node string, adj map[string][]string, visited map[string]bool, cluster *[]string) {
	visited[node] = true
	*cluster = append(*cluster, node)
	for _, neighbor := range adj[node] {
		if !visited[neighbor] {
			g.dfs(neighbor, adj, visited, cluster)
		}
	}
}

// findOrphanedSockets lists sockets with nothing attached. Outputs may be
// left open on purpose, so only required inputs count as critical.
func (g *FlowGraph) findOrphanedSockets() []OrphanedSocket {
	orphaned := []OrphanedSocket{}
	for _, name := range g.sortedNames() {
		node := g.nodes[name]
		for _, s := range node.Inputs {
			if s.Connected {
				continue
			}
			orphaned = append(orphaned, OrphanedSocket{
				Operation: name, Socket: s.Name, Direction: s.Direction,
				Issue: IssueNoSource, Required: s.Required,
			})
		}
		for _, s := range node.Outputs {
			if s.Connected {
				continue
			}
			orphaned = append(orphaned, OrphanedSocket{
				Operation: name, Socket: s.Name, Direction: s.Direction,
				Issue: IssueNoTargets,
			})
		}
	}
	return orphaned
}

// String renders the result as an indented report
func (r *FlowAnalysisResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "status: %s\n", r.ValidationStatus)
	fmt.Fprintf(&b, "components: %d\n", len(r.ConnectedComponents))
	for _, c := range r.ConnectedComponents {
		fmt.Fprintf(&b, "  - %s\n", strings.Join(c, ", "))
	}
	if len(r.ConnectedEdges) > 0 {
		b.WriteString("edges:\n")
		for _, e := range r.ConnectedEdges {
			fmt.Fprintf(&b, "  - %s -> %s\n", e.From, e.To)
		}
	}
	if len(r.DisconnectedNodes) > 0 {
		b.WriteString("disconnected:\n")
		for _, n := range r.DisconnectedNodes {
			fmt.Fprintf(&b, "  - %s: %s\n", n.Operation, n.Issue)
		}
	}
	if len(r.OrphanedSockets) > 0 {
		b.WriteString("orphaned sockets:\n")
		for _, s := range r.OrphanedSockets {
			req := ""
			if s.Required {
				req = " (required)"
			}
			fmt.Fprintf(&b, "  - %s.%s %s: %s%s\n", s.Operation, s.Socket, s.Direction, s.Issue, req)
		}
	}
	return b.String()
}
