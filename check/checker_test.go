package check

import (
	"errors"
	"testing"

	"github.com/loom-run/loom/registry"
	"github.com/loom-run/loom/types"
)

func TestCheckStringPassthrough(t *testing.T) {
	prog := Program{
		Decls: []Decl{
			InputDecl{Name: "x", Type: types.String()},
		},
		Outputs: []OutputDecl{{Name: "x"}},
	}
	c := New(registry.New())
	tp, err := c.Check(prog)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if tp.Bindings["x"].Kind != types.KindString {
		t.Fatalf("expected x: String, got %s", tp.Bindings["x"].Kind)
	}
}

func TestCheckConditionalSelection(t *testing.T) {
	prog := Program{
		Decls: []Decl{
			InputDecl{Name: "flag", Type: types.Boolean()},
			InputDecl{Name: "a", Type: types.Int()},
			InputDecl{Name: "b", Type: types.Int()},
			Assignment{Name: "result", Expr: Conditional{
				Cond: VarRef{Name: "flag"},
				Then: VarRef{Name: "a"},
				Else: VarRef{Name: "b"},
			}},
		},
		Outputs: []OutputDecl{{Name: "result"}},
	}
	c := New(registry.New())
	tp, err := c.Check(prog)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if tp.Bindings["result"].Kind != types.KindInt {
		t.Fatalf("expected result: Int, got %s", tp.Bindings["result"].Kind)
	}
}

func TestCheckRecordMergeRightWins(t *testing.T) {
	prog := Program{
		Decls: []Decl{
			InputDecl{Name: "a", Type: types.Record(
				types.Field{Name: "x", Type: types.Int()},
				types.Field{Name: "y", Type: types.Int()},
			)},
			InputDecl{Name: "b", Type: types.Record(
				types.Field{Name: "y", Type: types.String()},
				types.Field{Name: "z", Type: types.String()},
			)},
			Assignment{Name: "result", Expr: Merge{Left: VarRef{Name: "a"}, Right: VarRef{Name: "b"}}},
		},
		Outputs: []OutputDecl{{Name: "result"}},
	}
	c := New(registry.New())
	tp, err := c.Check(prog)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	result := tp.Bindings["result"]
	found := map[string]types.SemanticType{}
	for _, f := range result.Fields {
		found[f.Name] = f.Type
	}
	if found["y"].Kind != types.KindString {
		t.Fatalf("expected y: String (right wins), got %s", found["y"].Kind)
	}
	if len(result.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(result.Fields))
	}
}

func TestCheckRowPolymorphicCall(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.FunctionSignature{
		Name:    "GetName",
		Params:  []types.SemanticType{types.OpenRecord("rho", types.Field{Name: "name", Type: types.String()})},
		Returns: types.String(),
		RowVars: []string{"rho"},
	})
	prog := Program{
		Decls: []Decl{
			InputDecl{Name: "user", Type: types.Record(
				types.Field{Name: "name", Type: types.String()},
				types.Field{Name: "age", Type: types.Int()},
				types.Field{Name: "email", Type: types.String()},
			)},
			Assignment{Name: "n", Expr: Call{Name: "GetName", Args: []Expr{VarRef{Name: "user"}}}},
		},
		Outputs: []OutputDecl{{Name: "n"}},
	}
	c := New(reg)
	tp, err := c.Check(prog)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if tp.Bindings["n"].Kind != types.KindString {
		t.Fatalf("expected n: String, got %s", tp.Bindings["n"].Kind)
	}
}

func TestCheckUndefinedVariable(t *testing.T) {
	prog := Program{
		Outputs: []OutputDecl{{Name: "missing"}},
	}
	c := New(registry.New())
	_, err := c.Check(prog)
	if err == nil {
		t.Fatal("expected an error")
	}
	var compileErr *CompileError
	if !errors.As(err, &compileErr) {
		t.Fatalf("expected a single CompileError, got %v", err)
	}
	if compileErr.Kind != UndefinedVariable {
		t.Fatalf("expected UndefinedVariable, got %s", compileErr.Kind)
	}
}

func TestCheckAmbiguousFunction(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.FunctionSignature{Name: "parse", Namespace: "csv", Returns: types.String()})
	reg.Register(registry.FunctionSignature{Name: "parse", Namespace: "json", Returns: types.String()})
	prog := Program{
		Uses: []UseDecl{{Namespace: "csv"}, {Namespace: "json"}},
		Decls: []Decl{
			Assignment{Name: "x", Expr: Call{Name: "parse"}},
		},
	}
	c := New(reg)
	_, err := c.Check(prog)
	var compileErr *CompileError
	if !errors.As(err, &compileErr) || compileErr.Kind != AmbiguousFunction {
		t.Fatalf("expected AmbiguousFunction, got %v", err)
	}
}

func TestCheckIncompatibleMerge(t *testing.T) {
	prog := Program{
		Decls: []Decl{
			InputDecl{Name: "a", Type: types.Int()},
			InputDecl{Name: "b", Type: types.Int()},
			Assignment{Name: "x", Expr: Merge{Left: VarRef{Name: "a"}, Right: VarRef{Name: "b"}}},
		},
	}
	c := New(registry.New())
	_, err := c.Check(prog)
	var compileErr *CompileError
	if !errors.As(err, &compileErr) || compileErr.Kind != IncompatibleMerge {
		t.Fatalf("expected IncompatibleMerge, got %v", err)
	}
}
