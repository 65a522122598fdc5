package exec

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/loom-run/loom/check"
	"github.com/loom-run/loom/ir"
	"github.com/loom-run/loom/store"
	"github.com/loom-run/loom/types"
	"github.com/loom-run/loom/values"
)

type fakeModules struct {
	fns map[string]Module
}

func (f *fakeModules) Resolve(name string) (Module, bool) {
	m, ok := f.fns[name]
	return m, ok
}

func TestRunnerExecutesLinearChain(t *testing.T) {
	dag := ir.NewDAG()
	in := dag.AddDataNode("x", types.Int())
	mid := dag.AddDataNode("", types.Int())
	out := dag.AddDataNode("", types.Int())

	double := dag.AddModuleNode("double", map[string]types.SemanticType{"arg0": types.Int()}, map[string]types.SemanticType{"result": types.Int()}, ir.ModuleCallOptions{})
	dag.Connect(in, double, "arg0")
	dag.Produce(double, "result", mid)

	incr := dag.AddModuleNode("increment", map[string]types.SemanticType{"arg0": types.Int()}, map[string]types.SemanticType{"result": types.Int()}, ir.ModuleCallOptions{})
	dag.Connect(mid, incr, "arg0")
	dag.Produce(incr, "result", out)

	dag.BindOutput("result", out)
	if err := dag.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	modules := &fakeModules{fns: map[string]Module{
		"double": func(ctx context.Context, inputs map[string]values.CValue) (values.CValue, error) {
			return values.Int(inputs["arg0"].Int * 2), nil
		},
		"increment": func(ctx context.Context, inputs map[string]values.CValue) (values.CValue, error) {
			return values.Int(inputs["arg0"].Int + 1), nil
		},
	}}

	runner := NewRunner(NewExecutor(nil, nil), modules)
	sig, err := runner.Run(context.Background(), "run-1", dag, map[string]values.CValue{"x": values.Int(10)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sig.Status != StatusCompleted {
		t.Fatalf("expected Completed, got %s", sig.Status)
	}
	result, ok := sig.Outputs["result"]
	if !ok || result.Int != 21 {
		t.Fatalf("expected result=21, got %+v (ok=%v)", result, ok)
	}
}

func TestRunnerEvaluatesBranchNode(t *testing.T) {
	dag := ir.NewDAG()
	flag := dag.AddDataNode("flag", types.Boolean())
	a := dag.AddDataNode("a", types.Int())
	b := dag.AddDataNode("b", types.Int())
	out := dag.AddDataNode("", types.Int())

	branch := dag.AddModuleNode("branch-1", map[string]types.SemanticType{
		"cond": types.Boolean(), "then": types.Int(), "otherwise": types.Int(),
	}, map[string]types.SemanticType{"result": types.Int()}, ir.ModuleCallOptions{})
	dag.Connect(flag, branch, "cond")
	dag.Connect(a, branch, "then")
	dag.Connect(b, branch, "otherwise")
	dag.Produce(branch, "result", out)
	dag.BindOutput("result", out)

	if err := dag.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	runner := NewRunner(NewExecutor(nil, nil), &fakeModules{fns: map[string]Module{}})
	sig, err := runner.Run(context.Background(), "run-2", dag, map[string]values.CValue{
		"flag": values.Bool(false),
		"a":    values.Int(1),
		"b":    values.Int(2),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sig.Outputs["result"].Int != 2 {
		t.Fatalf("expected the otherwise branch (2), got %+v", sig.Outputs["result"])
	}
}

func TestRunnerReportsPartialOnUnresolvableModule(t *testing.T) {
	dag := ir.NewDAG()
	in := dag.AddDataNode("x", types.Int())
	out := dag.AddDataNode("", types.Int())
	mod := dag.AddModuleNode("missing", map[string]types.SemanticType{"arg0": types.Int()}, map[string]types.SemanticType{"result": types.Int()}, ir.ModuleCallOptions{})
	dag.Connect(in, mod, "arg0")
	dag.Produce(mod, "result", out)
	dag.BindOutput("result", out)

	runner := NewRunner(NewExecutor(nil, nil), &fakeModules{fns: map[string]Module{}})
	sig, err := runner.Run(context.Background(), "run-3", dag, map[string]values.CValue{"x": values.Int(1)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sig.Status != StatusPartial {
		t.Fatalf("expected Partial when the module can't be resolved, got %s", sig.Status)
	}
	if len(sig.PendingOutputs) != 1 || sig.PendingOutputs[0] != "result" {
		t.Fatalf("expected result to be pending, got %+v", sig.PendingOutputs)
	}
}

func TestRunnerCancellation(t *testing.T) {
	dag := ir.NewDAG()
	in := dag.AddDataNode("x", types.Int())
	out := dag.AddDataNode("", types.Int())
	mod := dag.AddModuleNode("slow", map[string]types.SemanticType{"arg0": types.Int()}, map[string]types.SemanticType{"result": types.Int()}, ir.ModuleCallOptions{})
	dag.Connect(in, mod, "arg0")
	dag.Produce(mod, "result", out)
	dag.BindOutput("result", out)

	modules := &fakeModules{fns: map[string]Module{
		"slow": func(ctx context.Context, inputs map[string]values.CValue) (values.CValue, error) {
			<-ctx.Done()
			return values.CValue{}, ctx.Err()
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := NewRunner(NewExecutor(nil, nil), modules)
	sig, err := runner.Run(ctx, "run-4", dag, map[string]values.CValue{"x": values.Int(1)})
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if sig.Status != StatusCancelled {
		t.Fatalf("expected Cancelled, got %s", sig.Status)
	}
}

func TestEvalInlineRecordMergeRightWins(t *testing.T) {
	bindings := map[string]values.CValue{
		"x": values.Product(values.CType{Kind: values.KindProduct}, values.ProductFieldValue{Name: "a", Value: values.Int(1)}),
		"y": values.Product(values.CType{Kind: values.KindProduct}, values.ProductFieldValue{Name: "a", Value: values.Int(2)}, values.ProductFieldValue{Name: "b", Value: values.Int(3)}),
	}
	merged := check.Merge{Left: check.VarRef{Name: "x"}, Right: check.VarRef{Name: "y"}}
	v, err := evalInline(merged, bindings)
	if err != nil {
		t.Fatalf("evalInline merge: %v", err)
	}

	var gotA, gotB int64
	for _, f := range v.Fields {
		switch f.Name {
		case "a":
			gotA = f.Value.Int
		case "b":
			gotB = f.Value.Int
		}
	}
	if gotA != 2 || gotB != 3 {
		t.Fatalf("expected right-wins merge {a:2,b:3}, got a=%d b=%d", gotA, gotB)
	}
}

func TestEvalInlineRecordLitAndFieldAccess(t *testing.T) {
	bindings := map[string]values.CValue{"n": values.Int(12)}
	lit := check.RecordLit{Fields: []check.RecordLitField{{Name: "count", Expr: check.VarRef{Name: "n"}}}}
	access := check.FieldAccess{Base: lit, Field: "count"}
	v, err := evalInline(access, bindings)
	if err != nil {
		t.Fatalf("evalInline field access: %v", err)
	}
	if v.Int != 12 {
		t.Fatalf("expected 12, got %+v", v)
	}
}

func TestEvalInlineArithmeticAndComparison(t *testing.T) {
	bindings := map[string]values.CValue{"a": values.Int(4), "b": values.Int(3)}
	sum := check.BinOp{Op: check.OpAdd, Left: check.VarRef{Name: "a"}, Right: check.VarRef{Name: "b"}}
	v, err := evalInline(sum, bindings)
	if err != nil {
		t.Fatalf("evalInline add: %v", err)
	}
	if v.Int != 7 {
		t.Fatalf("expected 7, got %d", v.Int)
	}

	gt := check.BinOp{Op: check.OpGt, Left: check.VarRef{Name: "a"}, Right: check.VarRef{Name: "b"}}
	v, err = evalInline(gt, bindings)
	if err != nil {
		t.Fatalf("evalInline gt: %v", err)
	}
	if !v.Bool {
		t.Fatalf("expected a > b to be true")
	}
}

func TestEvalInlineGuardAndCoalesce(t *testing.T) {
	bindings := map[string]values.CValue{"v": values.Int(5)}
	guard := check.Guard{Value: check.VarRef{Name: "v"}, Cond: check.Literal{Kind: check.LiteralBool, Bool: false}}
	some, err := evalInline(guard, bindings)
	if err != nil {
		t.Fatalf("evalInline guard: %v", err)
	}
	if some.Kind != values.KindNone {
		t.Fatalf("expected a false guard to produce None, got %+v", some)
	}

	coalesce := check.Coalesce{Left: guard, Right: check.Literal{Kind: check.LiteralInt, Int: 9}}
	result, err := evalInline(coalesce, bindings)
	if err != nil {
		t.Fatalf("evalInline coalesce: %v", err)
	}
	if result.Int != 9 {
		t.Fatalf("expected the coalesce fallback 9, got %+v", result)
	}
}

func TestRunnerFiresModuleFedByInlineExpressionArgument(t *testing.T) {
	dag := ir.NewDAG()
	a := dag.AddDataNode("a", types.Int())
	b := dag.AddDataNode("b", types.Int())
	sum := dag.AddDataNode("", types.Int())
	dag.DataNodes[sum].Transform = check.BinOp{Op: check.OpAdd, Left: check.VarRef{Name: "a"}, Right: check.VarRef{Name: "b"}}
	dag.DataNodes[sum].Inputs = []uuid.UUID{a, b}
	out := dag.AddDataNode("", types.Int())

	f := dag.AddModuleNode("f", map[string]types.SemanticType{"arg0": types.Int()}, map[string]types.SemanticType{"result": types.Int()}, ir.ModuleCallOptions{})
	dag.Connect(sum, f, "arg0")
	dag.Produce(f, "result", out)
	dag.BindOutput("y", out)
	if err := dag.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	modules := &fakeModules{fns: map[string]Module{
		"f": func(ctx context.Context, inputs map[string]values.CValue) (values.CValue, error) {
			return values.Int(inputs["arg0"].Int * 10), nil
		},
	}}

	runner := NewRunner(NewExecutor(nil, nil), modules)
	sig, err := runner.Run(context.Background(), "run-inline-arg", dag, map[string]values.CValue{
		"a": values.Int(2), "b": values.Int(3),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sig.Status != StatusCompleted {
		t.Fatalf("expected Completed, got %s (missing=%v)", sig.Status, sig.MissingInputs)
	}
	if sig.Outputs["y"].Int != 50 {
		t.Fatalf("expected y=50, got %+v", sig.Outputs["y"])
	}
}

func TestRunnerSuspendAndResume(t *testing.T) {
	dag := ir.NewDAG()
	x := dag.AddDataNode("x", types.Int())
	y := dag.AddDataNode("y", types.Int())
	out := dag.AddDataNode("", types.Int())

	add := dag.AddModuleNode("add", map[string]types.SemanticType{"arg0": types.Int(), "arg1": types.Int()}, map[string]types.SemanticType{"result": types.Int()}, ir.ModuleCallOptions{})
	dag.Connect(x, add, "arg0")
	dag.Connect(y, add, "arg1")
	dag.Produce(add, "result", out)
	dag.BindOutput("result", out)
	if err := dag.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	modules := &fakeModules{fns: map[string]Module{
		"add": func(ctx context.Context, inputs map[string]values.CValue) (values.CValue, error) {
			return values.Int(inputs["arg0"].Int + inputs["arg1"].Int), nil
		},
	}}
	runner := NewRunner(NewExecutor(nil, nil), modules)

	providedInputs := map[string]values.CValue{"x": values.Int(4)}
	sig, err := runner.Run(context.Background(), "run-suspend", dag, providedInputs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sig.Status != StatusPartial {
		t.Fatalf("expected Partial while y is missing, got %s", sig.Status)
	}
	if sig.StructuralHash == "" {
		t.Fatal("expected a non-empty structural hash")
	}

	suspensionStore := store.NewMemorySuspensionStore()
	handle, err := runner.Suspend(suspensionStore, sig, providedInputs)
	if err != nil {
		t.Fatalf("Suspend: %v", err)
	}

	suspended, err := suspensionStore.Load(handle)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	resumed, err := runner.Resume(context.Background(), dag, suspended, map[string]values.CValue{"y": values.Int(6)})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != StatusCompleted {
		t.Fatalf("expected Completed after resuming with y, got %s", resumed.Status)
	}
	if resumed.Outputs["result"].Int != 10 {
		t.Fatalf("expected result=10, got %+v", resumed.Outputs["result"])
	}
	if resumed.ResumptionCount != 1 {
		t.Fatalf("expected ResumptionCount=1, got %d", resumed.ResumptionCount)
	}
}

func TestRunnerSuspendRejectsNonPartialSignature(t *testing.T) {
	sig := &DataSignature{Status: StatusCompleted}
	runner := NewRunner(NewExecutor(nil, nil), &fakeModules{fns: map[string]Module{}})
	if _, err := runner.Suspend(store.NewMemorySuspensionStore(), sig, nil); err == nil {
		t.Fatal("expected an error suspending a non-Partial signature")
	}
}
