package ir

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/loom-run/loom/check"
	"github.com/loom-run/loom/registry"
	"github.com/loom-run/loom/types"
)

// CompileError wraps a DAG-generation failure with the offending span.
type CompileError struct {
	Message string
	Span    check.Span
}

func (e *CompileError) Error() string { return e.Message }

// Generator lowers a checked Program into a DAG, per spec.md §4.4.
type Generator struct {
	reg *registry.Registry
}

// NewGenerator constructs a Generator bound to reg (consulted for
// per-call module names when a Call resolves to a registered function).
func NewGenerator(reg *registry.Registry) *Generator {
	return &Generator{reg: reg}
}

// genState carries one Generate call's lowering state; its branchSeq
// names synthetic branch nodes deterministically within that call, per
// spec.md §4.7 ("branch-N" prefix).
type genState struct {
	dag       *DAG
	bindings  map[string]uuid.UUID // name -> data-node id
	branchSeq int
}

// Generate compiles prog (already type-checked via tp) into a DAG.
func (g *Generator) Generate(prog check.Program, tp check.TypedPipeline) (*DAG, error) {
	dag := NewDAG()
	st := &genState{dag: dag, bindings: make(map[string]uuid.UUID)}

	for _, decl := range prog.Decls {
		switch d := decl.(type) {
		case check.InputDecl:
			id := dag.AddDataNode(d.Name, d.Type)
			st.bindings[d.Name] = id
		case check.Assignment:
			t, ok := tp.Bindings[d.Name]
			if !ok {
				return nil, &CompileError{Message: fmt.Sprintf("internal: no inferred type for %q", d.Name), Span: d.Span}
			}
			id, err := g.lower(st, d.Expr, t)
			if err != nil {
				return nil, err
			}
			st.bindings[d.Name] = id
			if dn, ok := dag.DataNodes[id]; ok && dn.Name == "" {
				dn.Name = d.Name
			}
		}
	}

	for _, o := range prog.Outputs {
		id, ok := st.bindings[o.Name]
		if !ok {
			return nil, &CompileError{Message: fmt.Sprintf("internal: output %q has no bound node", o.Name), Span: o.Span}
		}
		dag.BindOutput(o.Name, id)
	}

	if err := dag.Validate(); err != nil {
		return nil, err
	}
	return dag, nil
}

// lower compiles expr into zero-or-more nodes and returns the id of the
// data node holding its value. Function calls become module nodes with
// a fresh output data node; everything else becomes an inline-transform
// data node (reduced by the DAG executor, not evaluated here).
func (g *Generator) lower(st *genState, expr check.Expr, t types.SemanticType) (uuid.UUID, error) {
	switch x := expr.(type) {
	case check.VarRef:
		id, ok := st.bindings[x.Name]
		if !ok {
			return uuid.Nil, &CompileError{Message: fmt.Sprintf("internal: unbound reference %q", x.Name), Span: x.Span}
		}
		return id, nil

	case check.Call:
		return g.lowerCall(st, x, t)

	case check.Conditional:
		return g.lowerConditional(st, x, t)

	default:
		return g.lowerInline(st, expr, t)
	}
}

// lowerInline creates a single inline-transform data node carrying expr
// verbatim; the DAG executor evaluates it once its referenced bindings
// resolve (Open Question 3: folded into the executor, not a pre-pass).
func (g *Generator) lowerInline(st *genState, expr check.Expr, t types.SemanticType) (uuid.UUID, error) {
	id := st.dag.AddDataNode("", t)
	node := st.dag.DataNodes[id]
	node.Transform = expr
	for _, name := range referencedNames(expr) {
		if depID, ok := st.bindings[name]; ok {
			st.dag.DataNodes[depID].Consumers = append(st.dag.DataNodes[depID].Consumers, PortRef{NodeID: id})
			node.Inputs = append(node.Inputs, depID)
		}
	}
	return id, nil
}

func (g *Generator) lowerCall(st *genState, call check.Call, t types.SemanticType) (uuid.UUID, error) {
	var sig registry.FunctionSignature
	var err error
	if call.Namespace != "" {
		var ok bool
		sig, ok = g.reg.GetQualified(call.Namespace, call.Name)
		if !ok {
			return uuid.Nil, &CompileError{Message: fmt.Sprintf("undefined function %s.%s", call.Namespace, call.Name), Span: call.Span}
		}
	} else {
		sig, err = g.reg.Lookup(call.Name, nil)
		if err != nil {
			return uuid.Nil, &CompileError{Message: err.Error(), Span: call.Span}
		}
	}

	consumes := make(map[string]types.SemanticType, len(sig.Params))
	produces := map[string]types.SemanticType{"result": t}
	opts := lowerCallOptions(call.Options)
	moduleID := st.dag.AddModuleNode(sig.ModuleName, consumes, produces, opts)

	for i, arg := range call.Args {
		argID, err := g.lower(st, arg, sig.Params[i])
		if err != nil {
			return uuid.Nil, err
		}
		port := fmt.Sprintf("arg%d", i)
		consumes[port] = sig.Params[i]
		st.dag.Connect(argID, moduleID, port)
	}

	outID := st.dag.AddDataNode("", t)
	st.dag.Produce(moduleID, "result", outID)
	return outID, nil
}

// lowerConditional generates a synthetic branch-N node per spec.md
// §4.7, recognized by the executor via its name prefix rather than
// looked up in the registry.
func (g *Generator) lowerConditional(st *genState, cond check.Conditional, t types.SemanticType) (uuid.UUID, error) {
	condID, err := g.lower(st, cond.Cond, types.Boolean())
	if err != nil {
		return uuid.Nil, err
	}
	thenID, err := g.lower(st, cond.Then, t)
	if err != nil {
		return uuid.Nil, err
	}
	elseID, err := g.lower(st, cond.Else, t)
	if err != nil {
		return uuid.Nil, err
	}

	st.branchSeq++
	name := fmt.Sprintf("branch-%d", st.branchSeq)
	consumes := map[string]types.SemanticType{"cond": types.Boolean(), "then": t, "otherwise": t}
	produces := map[string]types.SemanticType{"result": t}
	moduleID := st.dag.AddModuleNode(name, consumes, produces, ModuleCallOptions{})
	st.dag.Connect(condID, moduleID, "cond")
	st.dag.Connect(thenID, moduleID, "then")
	st.dag.Connect(elseID, moduleID, "otherwise")

	outID := st.dag.AddDataNode("", t)
	st.dag.Produce(moduleID, "result", outID)
	return outID, nil
}

func lowerCallOptions(o check.CallOptions) ModuleCallOptions {
	opts := ModuleCallOptions{CacheBackend: "", OnError: o.ErrorStrategy}
	if o.Retry != nil {
		attempts := o.Retry.MaxAttempts
		opts.Retry = &attempts
		opts.Backoff = o.Retry.Backoff
	}
	if o.Priority != 0 {
		p := o.Priority
		opts.Priority = &p
	}
	if o.RateLimit != nil {
		count := o.RateLimit.Count
		opts.ThrottleCount = &count
	}
	return opts
}

// referencedNames collects the set of bound variable names an inline
// expression reads, used to wire data-node dependency edges.
func referencedNames(expr check.Expr) []string {
	var names []string
	var walk func(check.Expr)
	walk = func(e check.Expr) {
		switch x := e.(type) {
		case check.VarRef:
			names = append(names, x.Name)
		case check.Literal:
		case check.RecordLit:
			for _, f := range x.Fields {
				walk(f.Expr)
			}
		case check.Merge:
			walk(x.Left)
			walk(x.Right)
		case check.Projection:
			walk(x.Base)
		case check.FieldAccess:
			walk(x.Base)
		case check.Guard:
			walk(x.Value)
			walk(x.Cond)
		case check.Coalesce:
			walk(x.Left)
			walk(x.Right)
		case check.BinOp:
			walk(x.Left)
			walk(x.Right)
		case check.Not:
			walk(x.Operand)
		}
	}
	walk(expr)
	return names
}
