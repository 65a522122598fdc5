package ir

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/loom-run/loom/types"
)

// DeclarativePipeline is the optional YAML surface for hand-authored
// pipeline graphs that bypass the type-checker front end entirely:
// a flat list of data nodes and module nodes naming the data nodes
// they consume and produce, with no expression language (no inline
// transforms, no conditionals) — the same scope kbukum-gokit/dag's own
// Pipeline YAML covers for its node/edge graphs. Declarative pipelines
// use only the scalar and list base types; records, candidates, and
// row-polymorphic types are the type-checker path's concern.
type DeclarativePipeline struct {
	Inputs  []DeclInput  `yaml:"inputs"`
	Modules []DeclModule `yaml:"modules"`
	Outputs map[string]string `yaml:"outputs"` // declared output name -> data node name
}

// DeclInput names one pipeline input data node and its base type.
type DeclInput struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// DeclModule names one module invocation: its consumed ports (bound to
// existing data node names), its produced ports (each naming the new
// data node it creates and that node's base type), and its call
// options.
type DeclModule struct {
	Name     string            `yaml:"name"`
	Consumes map[string]string `yaml:"consumes"` // port -> data node name
	Produces map[string]string `yaml:"produces"` // port -> "dataNodeName:type"
	Options  DeclOptions       `yaml:"options"`
}

// DeclOptions mirrors ModuleCallOptions in YAML-friendly form.
type DeclOptions struct {
	Retry             *int   `yaml:"retry"`
	DelayMs           *int   `yaml:"delayMs"`
	Backoff           string `yaml:"backoff"`
	TimeoutMs         *int   `yaml:"timeoutMs"`
	Lazy              bool   `yaml:"lazy"`
	CacheMs           *int   `yaml:"cacheMs"`
	ThrottleCount     *int   `yaml:"throttleCount"`
	ThrottlePerMs     *int   `yaml:"throttlePerMs"`
	Concurrency       *int   `yaml:"concurrency"`
	OnError           string `yaml:"onError"`
	Priority          *int   `yaml:"priority"`
	FailureThreshold  *int   `yaml:"failureThreshold"`
	ResetDurationMs   *int   `yaml:"resetDurationMs"`
	HalfOpenMaxProbes *int   `yaml:"halfOpenMaxProbes"`
}

func (o DeclOptions) toModuleCallOptions() ModuleCallOptions {
	opts := ModuleCallOptions{
		Retry: o.Retry, DelayMs: o.DelayMs, Backoff: o.Backoff, TimeoutMs: o.TimeoutMs,
		Lazy: o.Lazy, CacheMs: o.CacheMs, ThrottleCount: o.ThrottleCount, ThrottlePerMs: o.ThrottlePerMs,
		Concurrency: o.Concurrency, OnError: o.OnError, Priority: o.Priority,
	}
	if o.FailureThreshold != nil {
		opts.CircuitBreaker = &CircuitBreakerConfig{
			FailureThreshold: *o.FailureThreshold,
		}
		if o.ResetDurationMs != nil {
			opts.CircuitBreaker.ResetDurationMs = *o.ResetDurationMs
		}
		if o.HalfOpenMaxProbes != nil {
			opts.CircuitBreaker.HalfOpenMaxProbes = *o.HalfOpenMaxProbes
		}
	}
	return opts
}

// baseType resolves a YAML type name to a SemanticType, supporting
// scalar names (case-insensitive) and lowercase list<...> wrappers,
// which may nest.
func baseType(name string) (types.SemanticType, error) {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "list<") && strings.HasSuffix(name, ">") {
		inner, err := baseType(name[len("list<") : len(name)-1])
		if err != nil {
			return types.SemanticType{}, err
		}
		return types.List(inner), nil
	}
	switch strings.ToLower(name) {
	case "string":
		return types.String(), nil
	case "int":
		return types.Int(), nil
	case "float":
		return types.Float(), nil
	case "boolean", "bool":
		return types.Boolean(), nil
	default:
		return types.SemanticType{}, fmt.Errorf("ir: unsupported declarative type %q", name)
	}
}

// LoadDeclarativeDAG reads a DeclarativePipeline from path and builds
// the corresponding DAG, wiring every consumes/produces port through
// Connect/Produce and every declared output through BindOutput.
func LoadDeclarativeDAG(path string) (*DAG, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading declarative pipeline %s: %w", path, err)
	}
	var p DeclarativePipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing declarative pipeline %s: %w", path, err)
	}
	return BuildDeclarativeDAG(&p)
}

// splitProduceSpec parses a "dataNodeName:type" produces entry.
func splitProduceSpec(spec string) (dataName, typeName string, err error) {
	idx := strings.LastIndex(spec, ":")
	if idx <= 0 || idx == len(spec)-1 {
		return "", "", fmt.Errorf("malformed produces entry %q, want \"name:type\"", spec)
	}
	return spec[:idx], spec[idx+1:], nil
}

// BuildDeclarativeDAG constructs a DAG from an already-parsed
// DeclarativePipeline.
func BuildDeclarativeDAG(p *DeclarativePipeline) (*DAG, error) {
	d := NewDAG()
	names := make(map[string]uuid.UUID)

	for _, in := range p.Inputs {
		t, err := baseType(in.Type)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		names[in.Name] = d.AddDataNode(in.Name, t)
	}

	for _, m := range p.Modules {
		consumes := make(map[string]types.SemanticType, len(m.Consumes))
		for port, dataName := range m.Consumes {
			id, ok := names[dataName]
			if !ok {
				return nil, fmt.Errorf("module %q port %q: unknown data node %q", m.Name, port, dataName)
			}
			consumes[port] = d.DataNodes[id].Type
		}

		produces := make(map[string]types.SemanticType, len(m.Produces))
		producedDataName := make(map[string]string, len(m.Produces))
		for port, spec := range m.Produces {
			dataName, typeName, err := splitProduceSpec(spec)
			if err != nil {
				return nil, fmt.Errorf("module %q port %q: %w", m.Name, port, err)
			}
			t, err := baseType(typeName)
			if err != nil {
				return nil, fmt.Errorf("module %q port %q: %w", m.Name, port, err)
			}
			produces[port] = t
			producedDataName[port] = dataName
		}

		moduleID := d.AddModuleNode(m.Name, consumes, produces, m.Options.toModuleCallOptions())

		for port, dataName := range m.Consumes {
			d.Connect(names[dataName], moduleID, port)
		}
		for port, t := range produces {
			dataName := producedDataName[port]
			id := d.AddDataNode(dataName, t)
			names[dataName] = id
			d.Produce(moduleID, port, id)
		}
	}

	for outName, dataName := range p.Outputs {
		id, ok := names[dataName]
		if !ok {
			return nil, fmt.Errorf("output %q: unknown data node %q", outName, dataName)
		}
		d.BindOutput(outName, id)
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("declarative pipeline failed validation: %w", err)
	}
	return d, nil
}
