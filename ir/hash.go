package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/loom-run/loom/types"
)

// canonicalDAG is the sorted, name-addressed (not uuid-addressed)
// projection of a DAG used for content hashing: two DAGs that are
// structurally identical up to node-id allocation hash identically.
type canonicalDAG struct {
	DataNodes   []canonicalDataNode   `msgpack:"data"`
	ModuleNodes []canonicalModuleNode `msgpack:"modules"`
	InEdges     []canonicalInEdge     `msgpack:"inEdges"`
	OutEdges    []canonicalOutEdge    `msgpack:"outEdges"`
	Outputs     []canonicalOutput     `msgpack:"outputs"`
}

type canonicalDataNode struct {
	Name string `msgpack:"name"`
	Type string `msgpack:"type"`
}

type canonicalModuleNode struct {
	Name     string   `msgpack:"name"`
	Consumes []string `msgpack:"consumes"`
	Produces []string `msgpack:"produces"`
}

type canonicalInEdge struct {
	DataName   string `msgpack:"data"`
	ModuleName string `msgpack:"module"`
	Port       string `msgpack:"port"`
}

type canonicalOutEdge struct {
	ModuleName string `msgpack:"module"`
	Port       string `msgpack:"port"`
	DataName   string `msgpack:"data"`
}

type canonicalOutput struct {
	Name     string `msgpack:"name"`
	DataName string `msgpack:"data"`
}

// typeSignature renders a SemanticType into a stable string key, sorted
// field-wise, suitable for canonical hashing and port-name disambiguation.
func typeSignature(t types.SemanticType) string {
	switch t.Kind {
	case types.KindList:
		return "List<" + typeSignature(*t.Elem) + ">"
	case types.KindOptional:
		return "Optional<" + typeSignature(*t.Elem) + ">"
	case types.KindCandidates:
		return "Candidates<" + typeSignature(*t.Elem) + ">"
	case types.KindMap:
		return "Map<" + typeSignature(*t.Key) + "," + typeSignature(*t.Value) + ">"
	case types.KindRecord, types.KindOpenRecord:
		fields := append([]types.Field(nil), t.Fields...)
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		sig := "Record{"
		for i, f := range fields {
			if i > 0 {
				sig += ","
			}
			sig += f.Name + ":" + typeSignature(f.Type)
		}
		sig += "}"
		if t.Kind == types.KindOpenRecord {
			sig += "|" + t.RowVar
		}
		return sig
	case types.KindFunction:
		sig := "Function("
		for i, p := range t.Params {
			if i > 0 {
				sig += ","
			}
			sig += typeSignature(p)
		}
		return sig + ")->" + typeSignature(*t.Returns)
	default:
		return t.Kind.String()
	}
}

// Canonicalize produces a deterministic, node-id-independent projection
// of the DAG: node lists sorted by name (ties broken by type or port
// signatures), field/edge lists sorted lexicographically.
func (d *DAG) Canonicalize() (*canonicalDAG, error) {
	nameOf := make(map[uuid.UUID]string, len(d.DataNodes)+len(d.ModuleNodes))
	for id, n := range d.DataNodes {
		nameOf[id] = n.Name
	}
	for id, n := range d.ModuleNodes {
		nameOf[id] = n.Name
	}

	c := &canonicalDAG{}
	for _, n := range d.DataNodes {
		c.DataNodes = append(c.DataNodes, canonicalDataNode{Name: n.Name, Type: typeSignature(n.Type)})
	}
	sort.Slice(c.DataNodes, func(i, j int) bool {
		if c.DataNodes[i].Name != c.DataNodes[j].Name {
			return c.DataNodes[i].Name < c.DataNodes[j].Name
		}
		return c.DataNodes[i].Type < c.DataNodes[j].Type
	})

	for _, n := range d.ModuleNodes {
		m := canonicalModuleNode{Name: n.Name}
		for port, t := range n.Consumes {
			m.Consumes = append(m.Consumes, port+":"+typeSignature(t))
		}
		for port, t := range n.Produces {
			m.Produces = append(m.Produces, port+":"+typeSignature(t))
		}
		sort.Strings(m.Consumes)
		sort.Strings(m.Produces)
		c.ModuleNodes = append(c.ModuleNodes, m)
	}
	sort.Slice(c.ModuleNodes, func(i, j int) bool {
		a, b := c.ModuleNodes[i], c.ModuleNodes[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return strings.Join(a.Consumes, ",")+"|"+strings.Join(a.Produces, ",") <
			strings.Join(b.Consumes, ",")+"|"+strings.Join(b.Produces, ",")
	})

	for _, e := range d.InEdges {
		c.InEdges = append(c.InEdges, canonicalInEdge{
			DataName: nameOf[e.From.NodeID], ModuleName: nameOf[e.To.NodeID], Port: e.To.Port,
		})
	}
	sort.Slice(c.InEdges, func(i, j int) bool { return lessInEdge(c.InEdges[i], c.InEdges[j]) })

	for _, e := range d.OutEdges {
		c.OutEdges = append(c.OutEdges, canonicalOutEdge{
			ModuleName: nameOf[e.From.NodeID], Port: e.From.Port, DataName: nameOf[e.To],
		})
	}
	sort.Slice(c.OutEdges, func(i, j int) bool { return lessOutEdge(c.OutEdges[i], c.OutEdges[j]) })

	for name, id := range d.OutputBindings {
		c.Outputs = append(c.Outputs, canonicalOutput{Name: name, DataName: nameOf[id]})
	}
	sort.Slice(c.Outputs, func(i, j int) bool { return c.Outputs[i].Name < c.Outputs[j].Name })

	return c, nil
}

func lessInEdge(a, b canonicalInEdge) bool {
	if a.DataName != b.DataName {
		return a.DataName < b.DataName
	}
	if a.ModuleName != b.ModuleName {
		return a.ModuleName < b.ModuleName
	}
	return a.Port < b.Port
}

func lessOutEdge(a, b canonicalOutEdge) bool {
	if a.ModuleName != b.ModuleName {
		return a.ModuleName < b.ModuleName
	}
	if a.Port != b.Port {
		return a.Port < b.Port
	}
	return a.DataName < b.DataName
}

// StructuralHash returns the sha256 content hash of the DAG's canonical
// msgpack encoding, prefixed "sha256:".
func (d *DAG) StructuralHash() (string, error) {
	c, err := d.Canonicalize()
	if err != nil {
		return "", err
	}
	enc, err := msgpack.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(enc)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// PipelineImage is a compiled, content-hashed, reusable pipeline.
type PipelineImage struct {
	StructuralHash string
	SyntacticHash  string // hash of the untyped source text, for diagnostics
	DAG            *DAG
	CompiledAt     time.Time
}

// NewPipelineImage computes the structural hash of dag and wraps it.
func NewPipelineImage(dag *DAG, syntacticHash string, compiledAt time.Time) (*PipelineImage, error) {
	hash, err := dag.StructuralHash()
	if err != nil {
		return nil, err
	}
	return &PipelineImage{StructuralHash: hash, SyntacticHash: syntacticHash, DAG: dag, CompiledAt: compiledAt}, nil
}
