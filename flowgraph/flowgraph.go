// Package flowgraph analyses the connectivity of a sheet: connected process
// groups, processes without connections and ports nothing is attached to.
package flowgraph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/c360/semflow/flow"
)

// FlowGraph is a detached copy of a sheet's topology
type FlowGraph struct {
	nodes map[string]*ProcessNode // process display name -> node
	edges []FlowEdge
}

// ProcessNode is a process in the graph
type ProcessNode struct {
	Name    string // name[hexid]
	Handler string
	Inputs  []PortInfo
	Outputs []PortInfo
}

// PortInfo contains port metadata for analysis
type PortInfo struct {
	Name        string
	Direction   flow.Direction
	Discipline  flow.Discipline
	Type        string
	PassThrough bool
}

// FlowEdge is one connection
type FlowEdge struct {
	From       PortRef `json:"from"`
	To         PortRef `json:"to"`
	Discipline string  `json:"discipline"`
}

// PortRef references a port by process display name
type PortRef struct {
	Process string `json:"process"`
	Port    string `json:"port"`
}

// Orphan issues
const (
	IssueNoSenders   = "no_senders"   // streamed input: the process never receives packets
	IssueNoReceivers = "no_receivers" // streamed output: packets are dropped
	IssueUsesDefault = "uses_default" // valued input: reads its default
	IssueValueUnused = "value_unused" // valued output: nobody reads it
)

// Validation statuses
const (
	StatusHealthy  = "healthy"
	StatusWarnings = "warnings"
)

// FlowAnalysisResult contains the results of connectivity analysis
type FlowAnalysisResult struct {
	ConnectedComponents   [][]string            `json:"connected_components"`
	ConnectedEdges        []FlowEdge            `json:"connected_edges"`
	DisconnectedProcesses []DisconnectedProcess `json:"disconnected_processes"`
	OrphanedPorts         []OrphanedPort        `json:"orphaned_ports"`
	ValidationStatus      string                `json:"validation_status"`
}

// DisconnectedProcess is a process with no connections
type DisconnectedProcess struct {
	Process     string   `json:"process"`
	Issue       string   `json:"issue"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// OrphanedPort is a port with no connections. Required marks the ports
// whose absence keeps the process from ever running.
type OrphanedPort struct {
	Process    string `json:"process"`
	Port       string `json:"port"`
	Direction  string `json:"direction"`
	Discipline string `json:"discipline"`
	Issue      string `json:"issue"`
	Required   bool   `json:"required"`
}

// NewFlowGraph creates an empty graph
func NewFlowGraph() *FlowGraph {
	return &FlowGraph{nodes: make(map[string]*ProcessNode)}
}

// FromSheet copies the topology of s. It reads the sheet, so call it on the
// sheet's executor (Sheet.Do) or while the sheet is stopped.
func FromSheet(s *flow.Sheet) *FlowGraph {
	g := NewFlowGraph()
	for _, p := range s.Processes() {
		g.AddProcess(p)
	}
	for _, c := range s.Connections() {
		g.AddConnection(c)
	}
	return g
}

// AddProcess adds p and its ports
func (g *FlowGraph) AddProcess(p *flow.Process) {
	node := &ProcessNode{Name: p.String(), Handler: p.HandlerName()}
	for _, port := range p.Inputs() {
		node.Inputs = append(node.Inputs, portInfo(port))
	}
	for _, port := range p.Outputs() {
		node.Outputs = append(node.Outputs, portInfo(port))
	}
	g.nodes[node.Name] = node
}

func portInfo(port *flow.Port) PortInfo {
	return PortInfo{
		Name:        port.Name(),
		Direction:   port.Direction(),
		Discipline:  port.Discipline(),
		Type:        port.Type().Name(),
		PassThrough: port.IsPassThrough(),
	}
}

// AddConnection adds c as an edge
func (g *FlowGraph) AddConnection(c *flow.Connection) {
	g.edges = append(g.edges, FlowEdge{
		From:       PortRef{Process: c.Start().Process().String(), Port: c.Start().Name()},
		To:         PortRef{Process: c.End().Process().String(), Port: c.End().Name()},
		Discipline: c.Discipline().String(),
	})
}

// Nodes returns the process nodes keyed by display name
func (g *FlowGraph) Nodes() map[string]*ProcessNode {
	return g.nodes
}

// Edges returns the connections
func (g *FlowGraph) Edges() []FlowEdge {
	return slices.Clone(g.edges)
}

// AnalyzeConnectivity reports connected groups, disconnected processes and
// orphaned ports. The status is "warnings" when a process is disconnected
// or a required port is orphaned. All lists are sorted.
func (g *FlowGraph) AnalyzeConnectivity() *FlowAnalysisResult {
	result := &FlowAnalysisResult{
		ConnectedComponents:   g.findConnectedComponents(),
		ConnectedEdges:        g.Edges(),
		DisconnectedProcesses: []DisconnectedProcess{},
		OrphanedPorts:         g.findOrphanedPorts(),
		ValidationStatus:      StatusHealthy,
	}
	if result.ConnectedEdges == nil {
		result.ConnectedEdges = []FlowEdge{}
	}

	connected := make(map[string]bool)
	for _, edge := range g.edges {
		connected[edge.From.Process] = true
		connected[edge.To.Process] = true
	}
	for _, name := range g.sortedNames() {
		if connected[name] {
			continue
		}
		result.DisconnectedProcesses = append(result.DisconnectedProcesses, DisconnectedProcess{
			Process:     name,
			Issue:       "Process has no connections",
			Suggestions: []string{"Connect it to other processes", "Remove it from the graph"},
		})
	}

	critical := slices.ContainsFunc(result.OrphanedPorts, func(o OrphanedPort) bool { return o.Required })
	if len(result.DisconnectedProcesses) > 0 || critical {
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

// findConnectedComponents treats edges as undirected
func (g *FlowGraph) findConnectedComponents() [][]string {
	adj := make(map[string][]string)
	for _, edge := range g.edges {
		from, to := edge.From.Process, edge.To.Process
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
		stack := []string{name}
		visited[name] = true
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cluster = append(cluster, node)
			for _, next := range adj[node] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
		slices.Sort(cluster)
		components = append(components, cluster)
	}
	return components
}

func (g *FlowGraph) findOrphanedPorts() []OrphanedPort {
	connected := make(map[PortRef]bool)
	for _, edge := range g.edges {
		connected[edge.From] = true
		connected[edge.To] = true
	}

	orphaned := []OrphanedPort{}
	for _, name := range g.sortedNames() {
		node := g.nodes[name]
		for _, port := range slices.Concat(node.Inputs, node.Outputs) {
			if connected[PortRef{Process: name, Port: port.Name}] {
				continue
			}
			issue := orphanIssue(port)
			orphaned = append(orphaned, OrphanedPort{
				Process:    name,
				Port:       port.Name,
				Direction:  port.Direction.String(),
				Discipline: port.Discipline.String(),
				Issue:      issue,
				Required:   issue == IssueNoSenders,
			})
		}
	}
	return orphaned
}

func orphanIssue(port PortInfo) string {
	switch {
	case port.Direction == flow.In && port.Discipline == flow.Streamed:
		return IssueNoSenders
	case port.Direction == flow.In:
		return IssueUsesDefault
	case port.Discipline == flow.Streamed:
		return IssueNoReceivers
	default:
		return IssueValueUnused
	}
}

// Summary renders the result as human-readable lines
func (r *FlowAnalysisResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "status: %s\n", r.ValidationStatus)
	fmt.Fprintf(&b, "groups: %d, connections: %d\n", len(r.ConnectedComponents), len(r.ConnectedEdges))
	for _, d := range r.DisconnectedProcesses {
		fmt.Fprintf(&b, "disconnected: %s\n", d.Process)
	}
	for _, o := range r.OrphanedPorts {
		marker := ""
		if o.Required {
			marker = " (required)"
		}
		fmt.Fprintf(&b, "orphaned %s port %s#%s: %s%s\n", o.Direction, o.Process, o.Port, o.Issue, marker)
	}
	return b.String()
}
