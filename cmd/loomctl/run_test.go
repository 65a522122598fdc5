package main

import (
	"testing"

	"github.com/loom-run/loom/ir"
	"github.com/loom-run/loom/types"
	"github.com/loom-run/loom/values"
)

func TestParseInputsResolvesDeclaredTypes(t *testing.T) {
	dag, err := ir.BuildDeclarativeDAG(&ir.DeclarativePipeline{
		Inputs: []ir.DeclInput{
			{Name: "amount", Type: "int"},
			{Name: "label", Type: "string"},
		},
	})
	if err != nil {
		t.Fatalf("BuildDeclarativeDAG: %v", err)
	}

	inputs, err := parseInputs(dag, []string{"amount=7", "label=hello"})
	if err != nil {
		t.Fatalf("parseInputs: %v", err)
	}
	if inputs["amount"].Kind != values.KindInt || inputs["amount"].Int != 7 {
		t.Fatalf("unexpected amount binding: %+v", inputs["amount"])
	}
	if inputs["label"].Kind != values.KindString || inputs["label"].Str != "hello" {
		t.Fatalf("unexpected label binding: %+v", inputs["label"])
	}
}

func TestParseInputsRejectsMalformedFlag(t *testing.T) {
	dag, _ := ir.BuildDeclarativeDAG(&ir.DeclarativePipeline{})
	if _, err := parseInputs(dag, []string{"no-equals-sign"}); err == nil {
		t.Fatal("expected an error for a malformed --input flag")
	}
}

func TestParseInputsRejectsUnknownDataNode(t *testing.T) {
	dag, _ := ir.BuildDeclarativeDAG(&ir.DeclarativePipeline{})
	if _, err := parseInputs(dag, []string{"ghost=1"}); err == nil {
		t.Fatal("expected an error for an input naming an unknown data node")
	}
}

func TestScalarFromStringRejectsUnsupportedKind(t *testing.T) {
	if _, err := scalarFromString("x", types.List(types.Int())); err == nil {
		t.Fatal("expected an error for a non-scalar declarative input type")
	}
}

func TestScalarFromStringParsesEachScalarKind(t *testing.T) {
	if v, err := scalarFromString("42", types.Int()); err != nil || v.Int != 42 {
		t.Fatalf("int parse failed: %+v, %v", v, err)
	}
	if v, err := scalarFromString("3.5", types.Float()); err != nil || v.Float != 3.5 {
		t.Fatalf("float parse failed: %+v, %v", v, err)
	}
	if v, err := scalarFromString("true", types.Boolean()); err != nil || !v.Bool {
		t.Fatalf("bool parse failed: %+v, %v", v, err)
	}
	if v, err := scalarFromString("hi", types.String()); err != nil || v.Str != "hi" {
		t.Fatalf("string parse failed: %+v, %v", v, err)
	}
}
