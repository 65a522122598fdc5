// Package ir implements the IR generator (C4): compiling a type-checked
// pipeline into a DAG of data and module nodes, canonicalizing it, and
// content-hashing the result into a PipelineImage.
package ir

import (
	"github.com/google/uuid"

	"github.com/loom-run/loom/check"
	"github.com/loom-run/loom/types"
)

// PortRef names one (node, port) edge endpoint.
type PortRef struct {
	NodeID uuid.UUID
	Port   string
}

// DataNodeSpec is one value-carrying node of the DAG. Transform, when
// non-nil, marks this as an inline-transform node: its value is
// computed by evaluating Transform against Inputs' resolved values
// rather than by a module firing (spec.md §4.7 step 4).
type DataNodeSpec struct {
	ID        uuid.UUID
	Name      string
	Type      types.SemanticType
	Consumers []PortRef
	Transform check.Expr
	Inputs    []uuid.UUID
}

// ModuleNodeSpec is one function-call node of the DAG.
type ModuleNodeSpec struct {
	ID       uuid.UUID
	Name     string
	Consumes map[string]types.SemanticType
	Produces map[string]types.SemanticType
	Options  ModuleCallOptions
}

// ModuleCallOptions enumerates the per-call knobs recognized by the
// module-options executor (C6).
type ModuleCallOptions struct {
	Retry          *int
	DelayMs        *int
	Backoff        string // "", "Fixed", "Linear", "Exponential"
	TimeoutMs      *int
	Lazy           bool
	CacheMs        *int
	CacheBackend   string
	ThrottleCount  *int
	ThrottlePerMs  *int
	Concurrency    *int
	OnError        string // "", "Propagate", "Skip", "Log", "Wrap"
	CircuitBreaker *CircuitBreakerConfig
	Priority       *int
}

// CircuitBreakerConfig configures a per-module circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold  int
	ResetDurationMs   int
	HalfOpenMaxProbes int
}

// InEdge connects a data node to a module's input port.
type InEdge struct {
	From PortRef
	To   PortRef
}

// OutEdge connects a module's output port to a data node.
type OutEdge struct {
	From PortRef
	To   uuid.UUID
}

// DAG is the full compiled pipeline graph.
type DAG struct {
	DataNodes       map[uuid.UUID]*DataNodeSpec
	ModuleNodes     map[uuid.UUID]*ModuleNodeSpec
	InEdges         []InEdge
	OutEdges        []OutEdge
	DeclaredOutputs []string
	OutputBindings  map[string]uuid.UUID
}

// NewDAG constructs an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		DataNodes:      make(map[uuid.UUID]*DataNodeSpec),
		ModuleNodes:    make(map[uuid.UUID]*ModuleNodeSpec),
		OutputBindings: make(map[string]uuid.UUID),
	}
}

// AddDataNode allocates a new data node and returns its id.
func (d *DAG) AddDataNode(name string, t types.SemanticType) uuid.UUID {
	id := uuid.New()
	d.DataNodes[id] = &DataNodeSpec{ID: id, Name: name, Type: t}
	return id
}

// AddModuleNode allocates a new module node and returns its id.
func (d *DAG) AddModuleNode(name string, consumes, produces map[string]types.SemanticType, opts ModuleCallOptions) uuid.UUID {
	id := uuid.New()
	d.ModuleNodes[id] = &ModuleNodeSpec{ID: id, Name: name, Consumes: consumes, Produces: produces, Options: opts}
	return id
}

// Connect wires a data node to a module's input port, and records the
// consumption on the data node's Consumers list.
func (d *DAG) Connect(dataID uuid.UUID, moduleID uuid.UUID, port string) {
	d.InEdges = append(d.InEdges, InEdge{From: PortRef{NodeID: dataID}, To: PortRef{NodeID: moduleID, Port: port}})
	if dn, ok := d.DataNodes[dataID]; ok {
		dn.Consumers = append(dn.Consumers, PortRef{NodeID: moduleID, Port: port})
	}
}

// Produce wires a module's output port to a data node.
func (d *DAG) Produce(moduleID uuid.UUID, port string, dataID uuid.UUID) {
	d.OutEdges = append(d.OutEdges, OutEdge{From: PortRef{NodeID: moduleID, Port: port}, To: dataID})
}

// BindOutput records a declared pipeline output.
func (d *DAG) BindOutput(name string, dataID uuid.UUID) {
	d.DeclaredOutputs = append(d.DeclaredOutputs, name)
	d.OutputBindings[name] = dataID
}

// ValidationError describes a violated DAG invariant.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate checks the structural invariants of spec.md §3.3: acyclic,
// every module consumes-port has exactly one in-edge, every data node
// has at most one producer, every declared output resolves.
func (d *DAG) Validate() error {
	inEdgeCount := make(map[PortRef]int)
	for _, e := range d.InEdges {
		inEdgeCount[e.To]++
	}
	for _, m := range d.ModuleNodes {
		for port := range m.Consumes {
			if inEdgeCount[PortRef{NodeID: m.ID, Port: port}] != 1 {
				return &ValidationError{Message: "module " + m.Name + " port " + port + " does not have exactly one in-edge"}
			}
		}
	}

	producers := make(map[uuid.UUID]int)
	for _, e := range d.OutEdges {
		producers[e.To]++
	}
	for id := range producers {
		if producers[id] > 1 {
			return &ValidationError{Message: "data node has more than one producer"}
		}
	}

	for name, id := range d.OutputBindings {
		if _, ok := d.DataNodes[id]; !ok {
			return &ValidationError{Message: "declared output " + name + " maps to unknown data node"}
		}
	}

	if cyclic, _ := d.hasCycle(); cyclic {
		return &ValidationError{Message: "DAG contains a cycle"}
	}
	return nil
}

func (d *DAG) hasCycle() (bool, uuid.UUID) {
	// Build adjacency over both node kinds keyed by id; module and data
	// ids are both uuid.UUID and never collide since each is allocated
	// from the same generator but kept in disjoint maps.
	adj := make(map[uuid.UUID][]uuid.UUID)
	for _, e := range d.InEdges {
		adj[e.From.NodeID] = append(adj[e.From.NodeID], e.To.NodeID)
	}
	for _, e := range d.OutEdges {
		adj[e.From.NodeID] = append(adj[e.From.NodeID], e.To)
	}
	for _, n := range d.DataNodes {
		for _, in := range n.Inputs {
			adj[in] = append(adj[in], n.ID)
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[uuid.UUID]int)
	var visit func(uuid.UUID) bool
	visit = func(n uuid.UUID) bool {
		color[n] = gray
		for _, next := range adj[n] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}
	for id := range d.DataNodes {
		if color[id] == white {
			if visit(id) {
				return true, id
			}
		}
	}
	for id := range d.ModuleNodes {
		if color[id] == white {
			if visit(id) {
				return true, id
			}
		}
	}
	return false, uuid.Nil
}
