package check

import (
	"go.uber.org/multierr"

	"github.com/loom-run/loom/registry"
	"github.com/loom-run/loom/types"
)

// TypedPipeline is the checker's output on success: every declaration's
// name bound to its inferred type, plus ordered outputs and warnings.
type TypedPipeline struct {
	Bindings map[string]types.SemanticType
	Outputs  []string
	Warnings []Warning
}

// env threads bound names and imported namespaces through check/infer.
type env struct {
	vars       map[string]types.SemanticType
	namespaces []string // namespace names from the program's use declarations
}

func newEnv() *env {
	return &env{vars: make(map[string]types.SemanticType)}
}

func (e *env) child() *env {
	vars := make(map[string]types.SemanticType, len(e.vars))
	for k, v := range e.vars {
		vars[k] = v
	}
	return &env{vars: vars, namespaces: e.namespaces}
}

// Checker runs the bidirectional algorithm against a Registry.
type Checker struct {
	reg *registry.Registry
}

// New constructs a Checker bound to reg.
func New(reg *registry.Registry) *Checker {
	return &Checker{reg: reg}
}

// Check type-checks prog, recording each use declaration's namespace
// name (UseDecl.Alias is not consulted, so a call qualified by an alias
// rather than the namespace name does not resolve), threading
// bindings through each declaration, and aggregating one error per
// failing declaration (fail-fast within a declaration, continue to the
// next) via multierr.
func (c *Checker) Check(prog Program) (TypedPipeline, error) {
	e := newEnv()
	for _, u := range prog.Uses {
		ns := u.Namespace
		e.namespaces = append(e.namespaces, ns)
	}

	out := TypedPipeline{Bindings: make(map[string]types.SemanticType)}
	var errs error

	for _, decl := range prog.Decls {
		switch d := decl.(type) {
		case InputDecl:
			if _, dup := out.Bindings[d.Name]; dup {
				out.Warnings = append(out.Warnings, Warning{Message: "shadowed binding: " + d.Name, Span: d.Span})
			}
			out.Bindings[d.Name] = d.Type
			e.vars[d.Name] = d.Type
		case Assignment:
			t, err := c.infer(e, d.Expr)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if _, dup := out.Bindings[d.Name]; dup {
				out.Warnings = append(out.Warnings, Warning{Message: "shadowed binding: " + d.Name, Span: d.Span})
			}
			out.Bindings[d.Name] = t
			e.vars[d.Name] = t
		}
	}

	for _, o := range prog.Outputs {
		if _, ok := out.Bindings[o.Name]; !ok {
			errs = multierr.Append(errs, errUndefinedVariable(o.Name, o.Span))
			continue
		}
		out.Outputs = append(out.Outputs, o.Name)
	}

	if errs != nil {
		return TypedPipeline{}, errs
	}
	return out, nil
}

// infer implements the infer(expr) -> type judgment.
func (c *Checker) infer(e *env, expr Expr) (types.SemanticType, error) {
	switch x := expr.(type) {
	case Literal:
		return c.inferLiteral(x), nil

	case VarRef:
		t, ok := e.vars[x.Name]
		if !ok {
			return types.SemanticType{}, errUndefinedVariable(x.Name, x.Span)
		}
		return t, nil

	case RecordLit:
		fields := make([]types.Field, 0, len(x.Fields))
		for _, f := range x.Fields {
			ft, err := c.infer(e, f.Expr)
			if err != nil {
				return types.SemanticType{}, err
			}
			fields = append(fields, types.Field{Name: f.Name, Type: ft})
		}
		return types.Record(fields...), nil

	case Merge:
		lt, err := c.infer(e, x.Left)
		if err != nil {
			return types.SemanticType{}, err
		}
		rt, err := c.infer(e, x.Right)
		if err != nil {
			return types.SemanticType{}, err
		}
		return c.inferMerge(lt, rt, x.Span)

	case Projection:
		bt, err := c.infer(e, x.Base)
		if err != nil {
			return types.SemanticType{}, err
		}
		return c.inferProjection(bt, x.Fields, x.Span)

	case FieldAccess:
		bt, err := c.infer(e, x.Base)
		if err != nil {
			return types.SemanticType{}, err
		}
		return c.inferFieldAccess(bt, x.Field, x.Span)

	case Conditional:
		if err := c.check(e, x.Cond, types.Boolean()); err != nil {
			return types.SemanticType{}, err
		}
		at, err := c.infer(e, x.Then)
		if err != nil {
			return types.SemanticType{}, err
		}
		bt, err := c.infer(e, x.Else)
		if err != nil {
			return types.SemanticType{}, err
		}
		return leastUpperBound(at, bt, x.Span)

	case Guard:
		if err := c.check(e, x.Cond, types.Boolean()); err != nil {
			return types.SemanticType{}, err
		}
		vt, err := c.infer(e, x.Value)
		if err != nil {
			return types.SemanticType{}, err
		}
		return types.Optional(vt), nil

	case Coalesce:
		lt, err := c.infer(e, x.Left)
		if err != nil {
			return types.SemanticType{}, err
		}
		if lt.Kind != types.KindOptional {
			return types.SemanticType{}, errTypeMismatchMsg(types.Optional(lt), lt, "coalesce requires an Optional left operand", x.Span)
		}
		rt, err := c.infer(e, x.Right)
		if err != nil {
			return types.SemanticType{}, err
		}
		return leastUpperBound(*lt.Elem, rt, x.Span)

	case Call:
		return c.inferCall(e, x)

	case Lambda:
		return types.SemanticType{}, errLambdaNeedsAnnotation(x.Span)

	case BinOp:
		return c.inferBinOp(e, x)

	case Not:
		if err := c.check(e, x.Operand, types.Boolean()); err != nil {
			return types.SemanticType{}, err
		}
		return types.Boolean(), nil

	default:
		return types.SemanticType{}, errTypeError("unrecognized expression node", expr.exprSpan())
	}
}

// check implements the check(expr, expected) -> () judgment, falling
// back to infer+subsumption except where an expected Function type lets
// a Lambda's parameters be inferred from context.
func (c *Checker) check(e *env, expr Expr, expected types.SemanticType) error {
	if lam, ok := expr.(Lambda); ok {
		return c.checkLambda(e, lam, expected)
	}
	actual, err := c.infer(e, expr)
	if err != nil {
		return err
	}
	if !types.IsSubtype(actual, expected) {
		reason := types.ExplainFailure(actual, expected)
		return errTypeMismatchMsg(expected, actual, reason, expr.exprSpan())
	}
	return nil
}

func (c *Checker) checkLambda(e *env, lam Lambda, expected types.SemanticType) error {
	if expected.Kind != types.KindFunction {
		return errInvalidLambdaContext(lam.Span)
	}
	if len(lam.ParamNames) != len(expected.Params) {
		return errLambdaArityMismatch(lam.Span)
	}
	child := e.child()
	for i, name := range lam.ParamNames {
		child.vars[name] = expected.Params[i]
	}
	return c.check(child, lam.Body, *expected.Returns)
}

func (c *Checker) inferLiteral(lit Literal) types.SemanticType {
	switch lit.Kind {
	case LiteralString:
		return types.String()
	case LiteralInt:
		return types.Int()
	case LiteralFloat:
		return types.Float()
	case LiteralBool:
		return types.Boolean()
	case LiteralEmptyList:
		return types.List(types.Nothing())
	default:
		return types.Nothing()
	}
}

// inferMerge implements `a + b`: both operands must be Record or
// Candidates<Record>; right wins on shared field names; Candidates
// broadcasts/unifies per the rules in spec.md §4.3.
func (c *Checker) inferMerge(left, right types.SemanticType, span Span) (types.SemanticType, error) {
	switch {
	case left.Kind == types.KindRecord && right.Kind == types.KindRecord:
		return types.Merge(left, right), nil
	case left.Kind == types.KindCandidates && right.Kind == types.KindRecord:
		if left.Elem.Kind != types.KindRecord {
			return types.SemanticType{}, errIncompatibleMerge(left, right, span)
		}
		return types.Candidates(types.Merge(*left.Elem, right)), nil
	case left.Kind == types.KindRecord && right.Kind == types.KindCandidates:
		if right.Elem.Kind != types.KindRecord {
			return types.SemanticType{}, errIncompatibleMerge(left, right, span)
		}
		return types.Candidates(types.Merge(left, *right.Elem)), nil
	case left.Kind == types.KindCandidates && right.Kind == types.KindCandidates:
		if left.Elem.Kind != types.KindRecord || right.Elem.Kind != types.KindRecord {
			return types.SemanticType{}, errIncompatibleMerge(left, right, span)
		}
		return types.Candidates(types.Merge(*left.Elem, *right.Elem)), nil
	default:
		return types.SemanticType{}, errIncompatibleMerge(left, right, span)
	}
}

func (c *Checker) inferProjection(base types.SemanticType, fields []string, span Span) (types.SemanticType, error) {
	record := base
	wrapCandidates := false
	if base.Kind == types.KindCandidates {
		record = *base.Elem
		wrapCandidates = true
	}
	if record.Kind != types.KindRecord && record.Kind != types.KindOpenRecord {
		return types.SemanticType{}, errInvalidProjection(firstOr(fields, ""), base, span)
	}
	byName := make(map[string]types.SemanticType, len(record.Fields))
	for _, f := range record.Fields {
		byName[f.Name] = f.Type
	}
	out := make([]types.Field, 0, len(fields))
	for _, name := range fields {
		ft, ok := byName[name]
		if !ok {
			return types.SemanticType{}, errInvalidProjection(name, base, span)
		}
		out = append(out, types.Field{Name: name, Type: ft})
	}
	result := types.Record(out...)
	if wrapCandidates {
		return types.Candidates(result), nil
	}
	return result, nil
}

func (c *Checker) inferFieldAccess(base types.SemanticType, field string, span Span) (types.SemanticType, error) {
	record := base
	wrapCandidates := false
	if base.Kind == types.KindCandidates {
		record = *base.Elem
		wrapCandidates = true
	}
	if record.Kind != types.KindRecord && record.Kind != types.KindOpenRecord {
		return types.SemanticType{}, errTypeError("field access requires a record operand", span)
	}
	for _, f := range record.Fields {
		if f.Name == field {
			if wrapCandidates {
				return types.Candidates(f.Type), nil
			}
			return f.Type, nil
		}
	}
	return types.SemanticType{}, errInvalidFieldAccess(field, base, span)
}

// inferCall resolves name against imported namespaces, instantiates
// row-polymorphic signatures with fresh row vars, and checks each
// argument against its parameter type (via row unification for
// OpenRecord parameters, subtyping otherwise).
func (c *Checker) inferCall(e *env, call Call) (types.SemanticType, error) {
	var sig registry.FunctionSignature
	var err error
	if call.Namespace != "" {
		found := false
		for _, ns := range e.namespaces {
			if ns == call.Namespace {
				found = true
				break
			}
		}
		if !found {
			return types.SemanticType{}, errUndefinedNamespace(call.Namespace, call.Span)
		}
		var ok bool
		sig, ok = c.reg.GetQualified(call.Namespace, call.Name)
		if !ok {
			return types.SemanticType{}, errUndefinedFunction(call.Name, call.Span)
		}
	} else {
		sig, err = c.reg.Lookup(call.Name, e.namespaces)
		if err != nil {
			if ambig, ok := err.(*registry.AmbiguousFunctionError); ok {
				names := make([]string, len(ambig.Candidates))
				for i, cand := range ambig.Candidates {
					names[i] = cand.Namespace + "." + cand.Name
				}
				return types.SemanticType{}, errAmbiguousFunction(call.Name, names, call.Span)
			}
			return types.SemanticType{}, errUndefinedFunction(call.Name, call.Span)
		}
	}

	if sig.IsRowPolymorphic() {
		sig = sig.Instantiate()
	}

	if len(call.Args) != len(sig.Params) {
		return types.SemanticType{}, errTypeError("argument count mismatch", call.Span)
	}

	for i, arg := range call.Args {
		param := sig.Params[i]
		argType, err := c.infer(e, arg)
		if err != nil {
			return types.SemanticType{}, err
		}
		if param.Kind == types.KindOpenRecord {
			if _, err := types.UnifyClosedWithOpen(argType, param); err != nil {
				return types.SemanticType{}, errTypeMismatchMsg(param, argType, err.Error(), arg.exprSpan())
			}
			continue
		}
		if !types.IsSubtype(argType, param) {
			return types.SemanticType{}, errTypeMismatchMsg(param, argType, types.ExplainFailure(argType, param), arg.exprSpan())
		}
	}
	return sig.Returns, nil
}

func (c *Checker) inferBinOp(e *env, op BinOp) (types.SemanticType, error) {
	lt, err := c.infer(e, op.Left)
	if err != nil {
		return types.SemanticType{}, err
	}
	rt, err := c.infer(e, op.Right)
	if err != nil {
		return types.SemanticType{}, err
	}

	switch op.Op {
	case OpAdd, OpSub, OpMul, OpDiv:
		if !isNumeric(lt) || !isNumeric(rt) {
			return types.SemanticType{}, errUnsupportedArithmetic(opName(op.Op), lt, rt, op.Span)
		}
		if lt.Kind == types.KindFloat || rt.Kind == types.KindFloat {
			return types.Float(), nil
		}
		return types.Int(), nil
	case OpLt, OpGt, OpLte, OpGte:
		if !isNumeric(lt) || !isNumeric(rt) {
			return types.SemanticType{}, errUnsupportedComparison(opName(op.Op), lt, rt, op.Span)
		}
		return types.Boolean(), nil
	case OpEq, OpNeq:
		if !types.IsSubtype(lt, rt) && !types.IsSubtype(rt, lt) {
			return types.SemanticType{}, errUnsupportedComparison(opName(op.Op), lt, rt, op.Span)
		}
		return types.Boolean(), nil
	case OpAnd, OpOr:
		if lt.Kind != types.KindBoolean {
			return types.SemanticType{}, errTypeMismatch(types.Boolean(), lt, op.Left.exprSpan())
		}
		if rt.Kind != types.KindBoolean {
			return types.SemanticType{}, errTypeMismatch(types.Boolean(), rt, op.Right.exprSpan())
		}
		return types.Boolean(), nil
	default:
		return types.SemanticType{}, errTypeError("unknown operator", op.Span)
	}
}

func isNumeric(t types.SemanticType) bool {
	return t.Kind == types.KindInt || t.Kind == types.KindFloat
}

func opName(op BinOpKind) string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpEq:
		return "=="
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpGt:
		return ">"
	case OpLte:
		return "<="
	case OpGte:
		return ">="
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	default:
		return "?"
	}
}

// leastUpperBound approximates a ⊔ b as the supertype when one operand
// subsumes the other, erroring otherwise.
func leastUpperBound(a, b types.SemanticType, span Span) (types.SemanticType, error) {
	if types.IsSubtype(a, b) {
		return b, nil
	}
	if types.IsSubtype(b, a) {
		return a, nil
	}
	return types.SemanticType{}, errTypeMismatchMsg(a, b, "branches do not unify under subtyping", span)
}

func firstOr(fields []string, def string) string {
	if len(fields) > 0 {
		return fields[0]
	}
	return def
}
