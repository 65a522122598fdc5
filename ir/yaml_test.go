package ir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loom-run/loom/types"
)

func TestBuildDeclarativeDAGWiresPortsAndOutputs(t *testing.T) {
	p := &DeclarativePipeline{
		Inputs: []DeclInput{{Name: "amount", Type: "int"}},
		Modules: []DeclModule{
			{
				Name:     "double",
				Consumes: map[string]string{"in": "amount"},
				Produces: map[string]string{"out": "doubled:int"},
			},
		},
		Outputs: map[string]string{"result": "doubled"},
	}

	dag, err := BuildDeclarativeDAG(p)
	if err != nil {
		t.Fatalf("BuildDeclarativeDAG: %v", err)
	}
	if err := dag.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(dag.DataNodes) != 2 {
		t.Fatalf("expected 2 data nodes, got %d", len(dag.DataNodes))
	}
	if len(dag.ModuleNodes) != 1 {
		t.Fatalf("expected 1 module node, got %d", len(dag.ModuleNodes))
	}
	if _, ok := dag.OutputBindings["result"]; !ok {
		t.Fatal("expected output \"result\" to be bound")
	}
}

func TestBuildDeclarativeDAGUnknownConsumesDataNode(t *testing.T) {
	p := &DeclarativePipeline{
		Modules: []DeclModule{
			{Name: "double", Consumes: map[string]string{"in": "missing"}},
		},
	}
	if _, err := BuildDeclarativeDAG(p); err == nil {
		t.Fatal("expected an error for an unknown consumes data node")
	}
}

func TestBuildDeclarativeDAGUnknownOutputDataNode(t *testing.T) {
	p := &DeclarativePipeline{
		Inputs:  []DeclInput{{Name: "amount", Type: "int"}},
		Outputs: map[string]string{"result": "missing"},
	}
	if _, err := BuildDeclarativeDAG(p); err == nil {
		t.Fatal("expected an error for an unknown output data node")
	}
}

func TestBuildDeclarativeDAGMalformedProduceSpec(t *testing.T) {
	p := &DeclarativePipeline{
		Inputs: []DeclInput{{Name: "amount", Type: "int"}},
		Modules: []DeclModule{
			{
				Name:     "double",
				Consumes: map[string]string{"in": "amount"},
				Produces: map[string]string{"out": "notypehere"},
			},
		},
	}
	if _, err := BuildDeclarativeDAG(p); err == nil {
		t.Fatal("expected an error for a malformed produces entry")
	}
}

func TestBaseTypeResolvesScalarsAndLists(t *testing.T) {
	cases := map[string]types.Kind{
		"string":    types.KindString,
		"int":       types.KindInt,
		"float":     types.KindFloat,
		"boolean":   types.KindBoolean,
		"bool":      types.KindBoolean,
		"list<int>": types.KindList,
	}
	for name, wantKind := range cases {
		got, err := baseType(name)
		if err != nil {
			t.Fatalf("baseType(%q): %v", name, err)
		}
		if got.Kind != wantKind {
			t.Fatalf("baseType(%q).Kind = %v, want %v", name, got.Kind, wantKind)
		}
	}
	if _, err := baseType("record"); err == nil {
		t.Fatal("expected an error for an unsupported declarative type")
	}
}

func TestLoadDeclarativeDAGFromFile(t *testing.T) {
	content := `
inputs:
  - name: amount
    type: int
modules:
  - name: double
    consumes:
      in: amount
    produces:
      out: doubled:int
outputs:
  result: doubled
`
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dag, err := LoadDeclarativeDAG(path)
	if err != nil {
		t.Fatalf("LoadDeclarativeDAG: %v", err)
	}
	if err := dag.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadDeclarativeDAGMissingFile(t *testing.T) {
	if _, err := LoadDeclarativeDAG(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error reading a missing pipeline file")
	}
}
