package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loom-run/loom/check"
	"github.com/loom-run/loom/ir"
	"github.com/loom-run/loom/store"
	"github.com/loom-run/loom/types"
	"github.com/loom-run/loom/values"
)

// Status enumerates a run's terminal or in-progress state.
type Status string

const (
	StatusCompleted Status = "Completed"
	StatusSuspended Status = "Suspended"
	StatusPartial   Status = "Partial"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
	StatusTimedOut  Status = "TimedOut"
)

// ModuleStatus mirrors spec.md §3.4's per-module lifecycle.
type ModuleStatus struct {
	State     string // "Pending" | "Running" | "Fired" | "Failed" | "Skipped"
	StartedAt time.Time
	Latency   time.Duration
	Err       error
}

// DataSignature is the run's externally-observable result, per
// spec.md §6.
type DataSignature struct {
	ExecutionID     string
	StructuralHash  string
	Status          Status
	ResumptionCount int
	Outputs         map[string]values.CValue
	ComputedNodes   map[uuid.UUID]values.CValue
	MissingInputs   []string
	PendingOutputs  []string
	FailedNodes     []uuid.UUID
	AllInputs       map[string]values.CValue
	StartedAt       time.Time
	CompletedAt     time.Time
}

// Module is the registered implementation a module node's name
// resolves to: consumes a port->CValue map and produces a single
// CValue. The runner writes that one value to every data node the
// module's out-edges name; it does not split a result across ports.
type Module func(ctx context.Context, inputs map[string]values.CValue) (values.CValue, error)

// ModuleSource resolves a module node's name to a callable. Branch
// nodes (name prefix "branch-") are handled internally and never
// consulted here.
type ModuleSource interface {
	Resolve(name string) (Module, bool)
}

// Runner drives one pipeline run's ready-set execution loop.
type Runner struct {
	executor *Executor
	modules  ModuleSource
}

// NewRunner constructs a Runner.
func NewRunner(executor *Executor, modules ModuleSource) *Runner {
	return &Runner{executor: executor, modules: modules}
}

// runState is the mutable per-run execution state (spec.md §3.4's
// `State`), guarded by mu; modules observe immutable snapshots copied
// out under the lock.
type runState struct {
	mu           sync.Mutex
	data         map[uuid.UUID]values.CValue
	moduleStatus map[uuid.UUID]*ModuleStatus
}

// Run executes dag to completion, cancellation, or exhaustion of
// progress (at which point it reports Partial — suspending that result
// to a store.SuspensionStore and resuming it later are the caller's
// responsibility, via Suspend and Resume below).
func (r *Runner) Run(ctx context.Context, executionID string, d *ir.DAG, inputs map[string]values.CValue) (*DataSignature, error) {
	return r.run(ctx, executionID, d, inputs, nil, 0)
}

// Resume continues a previously suspended execution: suspended.ComputedValues
// reseeds every data node already resolved before the pause, and
// additionalInputs supplies whatever newly arrived values the caller is
// resuming with (merged over suspended.ProvidedInputs, by name, so a
// resume can supply inputs the original call never provided). d must be
// the same DAG the suspension was taken against — its node ids are only
// stable within one in-memory DAG instance, which is why the caller
// resolves it from the pipeline image store by suspended.StructuralHash
// rather than recompiling it.
func (r *Runner) Resume(ctx context.Context, d *ir.DAG, suspended *store.SuspendedExecution, additionalInputs map[string]values.CValue) (*DataSignature, error) {
	merged := make(map[string]values.CValue, len(suspended.ProvidedInputs)+len(additionalInputs))
	for name, v := range suspended.ProvidedInputs {
		merged[name] = v
	}
	for name, v := range additionalInputs {
		merged[name] = v
	}
	return r.run(ctx, suspended.ExecutionID, d, merged, suspended.ComputedValues, suspended.ResumptionCount+1)
}

// Suspend saves a Partial-status DataSignature into suspensionStore so a
// later Resume can pick the execution back up. Only StatusPartial
// signatures are suspendable; a caller observing any other terminal
// status has nothing to suspend.
func (r *Runner) Suspend(suspensionStore store.SuspensionStore, sig *DataSignature, providedInputs map[string]values.CValue) (string, error) {
	if sig.Status != StatusPartial {
		return "", fmt.Errorf("cannot suspend an execution with status %s", sig.Status)
	}
	return suspensionStore.Save(&store.SuspendedExecution{
		ExecutionID:     sig.ExecutionID,
		StructuralHash:  sig.StructuralHash,
		ResumptionCount: sig.ResumptionCount,
		ComputedValues:  sig.ComputedNodes,
		ProvidedInputs:  providedInputs,
		SuspendedAt:     sig.CompletedAt,
	})
}

func (r *Runner) run(ctx context.Context, executionID string, d *ir.DAG, inputs map[string]values.CValue, preseeded map[uuid.UUID]values.CValue, resumptionCount int) (*DataSignature, error) {
	startedAt := time.Now()
	st := &runState{
		data:         make(map[uuid.UUID]values.CValue, len(preseeded)),
		moduleStatus: make(map[uuid.UUID]*ModuleStatus),
	}
	for id, v := range preseeded {
		st.data[id] = v
	}

	nameToID := make(map[string]uuid.UUID, len(d.DataNodes))
	for id, n := range d.DataNodes {
		nameToID[n.Name] = id
	}
	for name, v := range inputs {
		if id, ok := nameToID[name]; ok {
			st.data[id] = v
		}
	}
	for id := range d.ModuleNodes {
		st.moduleStatus[id] = &ModuleStatus{State: "Pending"}
	}

	structuralHash, _ := d.StructuralHash()

	for {
		select {
		case <-ctx.Done():
			return r.signature(executionID, structuralHash, resumptionCount, inputs, d, st, StatusCancelled, startedAt), ctx.Err()
		default:
		}

		r.reduceInline(d, st)
		ready := r.readySet(d, st)

		if r.allOutputsResolved(d, st) {
			return r.signature(executionID, structuralHash, resumptionCount, inputs, d, st, StatusCompleted, startedAt), nil
		}
		if len(ready) == 0 {
			return r.signature(executionID, structuralHash, resumptionCount, inputs, d, st, StatusPartial, startedAt), nil
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, moduleID := range ready {
			moduleID := moduleID
			g.Go(func() error { return r.fire(gctx, d, st, moduleID) })
		}
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			// Individual module failures are recorded in moduleStatus, not
			// surfaced as a run-level error, unless the group context itself
			// was cancelled (handled by the ctx.Done() check above).
			_ = err
		}
	}
}

// readySet returns module ids whose every consumes port has a resolved
// data value and that are still Pending.
func (r *Runner) readySet(d *ir.DAG, st *runState) []uuid.UUID {
	st.mu.Lock()
	defer st.mu.Unlock()

	inEdgesByModule := make(map[uuid.UUID]map[string]uuid.UUID)
	for _, e := range d.InEdges {
		if inEdgesByModule[e.To.NodeID] == nil {
			inEdgesByModule[e.To.NodeID] = make(map[string]uuid.UUID)
		}
		inEdgesByModule[e.To.NodeID][e.To.Port] = e.From.NodeID
	}

	var ready []uuid.UUID
	for id, m := range d.ModuleNodes {
		if st.moduleStatus[id].State != "Pending" {
			continue
		}
		allReady := true
		for port := range m.Consumes {
			dataID, ok := inEdgesByModule[id][port]
			if !ok {
				allReady = false
				break
			}
			if _, have := st.data[dataID]; !have {
				allReady = false
				break
			}
		}
		if allReady {
			ready = append(ready, id)
		}
	}
	return ready
}

// reduceInline evaluates every inline-transform data node whose inputs
// are all resolved, per spec.md §4.7 step 4 (folded into the executor,
// not a pre-pass — SPEC_FULL.md Open Question 3).
func (r *Runner) reduceInline(d *ir.DAG, st *runState) {
	changed := true
	for changed {
		changed = false
		st.mu.Lock()
		for id, n := range d.DataNodes {
			if n.Transform == nil {
				continue
			}
			if _, done := st.data[id]; done {
				continue
			}
			bindings := make(map[string]values.CValue)
			allReady := true
			for _, depID := range n.Inputs {
				v, ok := st.data[depID]
				if !ok {
					allReady = false
					break
				}
				bindings[d.DataNodes[depID].Name] = v
			}
			if !allReady {
				continue
			}
			v, err := evalInline(n.Transform, bindings)
			if err != nil {
				continue
			}
			st.data[id] = v
			changed = true
		}
		st.mu.Unlock()
	}
}

func (r *Runner) allOutputsResolved(d *ir.DAG, st *runState) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, id := range d.OutputBindings {
		if _, ok := st.data[id]; !ok {
			return false
		}
	}
	return true
}

// fire runs one module node (or synthetic branch node) and writes its
// outputs to the data map.
func (r *Runner) fire(ctx context.Context, d *ir.DAG, st *runState, moduleID uuid.UUID) error {
	m := d.ModuleNodes[moduleID]

	st.mu.Lock()
	st.moduleStatus[moduleID].State = "Running"
	st.moduleStatus[moduleID].StartedAt = time.Now()
	inEdgesByModule := make(map[string]uuid.UUID)
	for _, e := range d.InEdges {
		if e.To.NodeID == moduleID {
			inEdgesByModule[e.To.Port] = e.From.NodeID
		}
	}
	inputs := make(map[string]values.CValue, len(inEdgesByModule))
	for port, dataID := range inEdgesByModule {
		inputs[port] = st.data[dataID]
	}
	st.mu.Unlock()

	started := time.Now()
	var result values.CValue
	var err error
	if isBranchNode(m.Name) {
		result, err = evalBranch(inputs)
	} else {
		mod, ok := r.modules.Resolve(m.Name)
		if !ok {
			err = fmt.Errorf("module %q not registered", m.Name)
		} else {
			op := func(ctx context.Context, _ values.CValue) (values.CValue, error) {
				return mod(ctx, inputs)
			}
			result, err = r.executor.ExecuteWithOptions(ctx, moduleID.String(), m.Name, op, m.Options, outputTypeOf(m), values.CValue{}, nil)
		}
	}
	latency := time.Since(started)

	st.mu.Lock()
	defer st.mu.Unlock()
	if err != nil {
		st.moduleStatus[moduleID].State = "Failed"
		st.moduleStatus[moduleID].Err = err
		return err
	}
	st.moduleStatus[moduleID].State = "Fired"
	st.moduleStatus[moduleID].Latency = latency
	for _, e := range d.OutEdges {
		if e.From.NodeID == moduleID {
			st.data[e.To] = result
		}
	}
	return nil
}

func isBranchNode(name string) bool {
	return len(name) > 7 && name[:7] == "branch-"
}

func evalBranch(inputs map[string]values.CValue) (values.CValue, error) {
	cond, ok := inputs["cond"]
	if !ok || cond.Kind != values.KindBoolean {
		return values.CValue{}, fmt.Errorf("branch node missing boolean cond input")
	}
	if cond.Bool {
		return inputs["then"], nil
	}
	return inputs["otherwise"], nil
}

func outputTypeOf(m *ir.ModuleNodeSpec) values.CType {
	if t, ok := m.Produces["result"]; ok {
		return semanticToCType(t)
	}
	return values.CType{Kind: values.KindString}
}

// semanticToCType projects a checker-time SemanticType down to the
// runtime CType it describes, dropping row-polymorphism (resolved away
// by the time a DAG is generated) and Candidates (narrowed to its
// element — the executor deals in concrete produced values, not
// branch-time ambiguity).
func semanticToCType(t types.SemanticType) values.CType {
	switch t.Kind {
	case types.KindInt:
		return values.CType{Kind: values.KindInt}
	case types.KindFloat:
		return values.CType{Kind: values.KindFloat}
	case types.KindBoolean:
		return values.CType{Kind: values.KindBoolean}
	case types.KindList:
		elem := semanticToCType(*t.Elem)
		return values.CType{Kind: values.KindList, Elem: &elem}
	case types.KindMap:
		k, v := semanticToCType(*t.Key), semanticToCType(*t.Value)
		return values.CType{Kind: values.KindMap, Key: &k, Value: &v}
	case types.KindOptional:
		elem := semanticToCType(*t.Elem)
		return values.CType{Kind: values.KindSome, Elem: &elem}
	case types.KindRecord, types.KindOpenRecord:
		fields := make([]values.ProductField, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = values.ProductField{Name: f.Name, Type: semanticToCType(f.Type)}
		}
		return values.CType{Kind: values.KindProduct, Fields: fields}
	case types.KindCandidates:
		return semanticToCType(*t.Elem)
	default:
		return values.CType{Kind: values.KindString}
	}
}

// evalInline evaluates a non-call TypedExpression against resolved
// bindings. Only the subset reachable after type-checking (literals,
// var refs, record construction/merge/projection/field access, guard,
// coalesce, boolean/arithmetic operators) needs handling here — Call
// and Conditional never appear as inline Transform nodes (Generator
// lowers them to module/branch nodes instead).
func evalInline(expr check.Expr, bindings map[string]values.CValue) (values.CValue, error) {
	switch x := expr.(type) {
	case check.Literal:
		return literalValue(x), nil
	case check.VarRef:
		v, ok := bindings[x.Name]
		if !ok {
			return values.CValue{}, fmt.Errorf("unbound reference %q", x.Name)
		}
		return v, nil
	case check.RecordLit:
		fields := make([]values.ProductFieldValue, 0, len(x.Fields))
		for _, f := range x.Fields {
			v, err := evalInline(f.Expr, bindings)
			if err != nil {
				return values.CValue{}, err
			}
			fields = append(fields, values.ProductFieldValue{Name: f.Name, Value: v})
		}
		return values.Product(values.CType{Kind: values.KindProduct}, fields...), nil
	case check.Projection:
		base, err := evalInline(x.Base, bindings)
		if err != nil {
			return values.CValue{}, err
		}
		wanted := make(map[string]bool, len(x.Fields))
		for _, f := range x.Fields {
			wanted[f] = true
		}
		fields := make([]values.ProductFieldValue, 0, len(x.Fields))
		for _, f := range base.Fields {
			if wanted[f.Name] {
				fields = append(fields, f)
			}
		}
		return values.Product(values.CType{Kind: values.KindProduct}, fields...), nil
	case check.FieldAccess:
		base, err := evalInline(x.Base, bindings)
		if err != nil {
			return values.CValue{}, err
		}
		for _, f := range base.Fields {
			if f.Name == x.Field {
				return f.Value, nil
			}
		}
		return values.CValue{}, fmt.Errorf("field %q not found", x.Field)
	case check.Merge:
		left, err := evalInline(x.Left, bindings)
		if err != nil {
			return values.CValue{}, err
		}
		right, err := evalInline(x.Right, bindings)
		if err != nil {
			return values.CValue{}, err
		}
		return mergeValues(left, right), nil
	case check.Guard:
		cond, err := evalInline(x.Cond, bindings)
		if err != nil {
			return values.CValue{}, err
		}
		if !cond.Bool {
			return values.None(values.CType{}), nil
		}
		v, err := evalInline(x.Value, bindings)
		if err != nil {
			return values.CValue{}, err
		}
		return values.Some(values.CType{}, v), nil
	case check.Coalesce:
		left, err := evalInline(x.Left, bindings)
		if err != nil {
			return values.CValue{}, err
		}
		if left.Kind == values.KindSome {
			return *left.Some, nil
		}
		return evalInline(x.Right, bindings)
	case check.BinOp:
		return evalBinOp(x, bindings)
	case check.Not:
		v, err := evalInline(x.Operand, bindings)
		if err != nil {
			return values.CValue{}, err
		}
		return values.Bool(!v.Bool), nil
	default:
		return values.CValue{}, fmt.Errorf("inline evaluation not supported for %T", expr)
	}
}

func evalBinOp(x check.BinOp, bindings map[string]values.CValue) (values.CValue, error) {
	left, err := evalInline(x.Left, bindings)
	if err != nil {
		return values.CValue{}, err
	}
	right, err := evalInline(x.Right, bindings)
	if err != nil {
		return values.CValue{}, err
	}

	switch x.Op {
	case check.OpAnd:
		return values.Bool(left.Bool && right.Bool), nil
	case check.OpOr:
		return values.Bool(left.Bool || right.Bool), nil
	case check.OpEq:
		return values.Bool(equalValues(left, right)), nil
	case check.OpNeq:
		return values.Bool(!equalValues(left, right)), nil
	}

	if left.Kind == values.KindFloat || right.Kind == values.KindFloat {
		lf, rf := asFloat(left), asFloat(right)
		switch x.Op {
		case check.OpAdd:
			return values.Float(lf + rf), nil
		case check.OpSub:
			return values.Float(lf - rf), nil
		case check.OpMul:
			return values.Float(lf * rf), nil
		case check.OpDiv:
			return values.Float(lf / rf), nil
		case check.OpLt:
			return values.Bool(lf < rf), nil
		case check.OpGt:
			return values.Bool(lf > rf), nil
		case check.OpLte:
			return values.Bool(lf <= rf), nil
		case check.OpGte:
			return values.Bool(lf >= rf), nil
		}
	}

	li, ri := left.Int, right.Int
	switch x.Op {
	case check.OpAdd:
		return values.Int(li + ri), nil
	case check.OpSub:
		return values.Int(li - ri), nil
	case check.OpMul:
		return values.Int(li * ri), nil
	case check.OpDiv:
		return values.Int(li / ri), nil
	case check.OpLt:
		return values.Bool(li < ri), nil
	case check.OpGt:
		return values.Bool(li > ri), nil
	case check.OpLte:
		return values.Bool(li <= ri), nil
	case check.OpGte:
		return values.Bool(li >= ri), nil
	}
	return values.CValue{}, fmt.Errorf("unsupported binary operator %v", x.Op)
}

func asFloat(v values.CValue) float64 {
	if v.Kind == values.KindFloat {
		return v.Float
	}
	return float64(v.Int)
}

func equalValues(a, b values.CValue) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case values.KindString:
		return a.Str == b.Str
	case values.KindInt:
		return a.Int == b.Int
	case values.KindFloat:
		return a.Float == b.Float
	case values.KindBoolean:
		return a.Bool == b.Bool
	default:
		return a.String() == b.String()
	}
}

func literalValue(lit check.Literal) values.CValue {
	switch lit.Kind {
	case check.LiteralString:
		return values.String(lit.Str)
	case check.LiteralInt:
		return values.Int(lit.Int)
	case check.LiteralFloat:
		return values.Float(lit.Float)
	case check.LiteralBool:
		return values.Bool(lit.Bool)
	default:
		return values.List(values.CType{Kind: values.KindString})
	}
}

func mergeValues(left, right values.CValue) values.CValue {
	byName := make(map[string]values.CValue, len(left.Fields)+len(right.Fields))
	order := make([]string, 0, len(left.Fields)+len(right.Fields))
	for _, f := range left.Fields {
		if _, ok := byName[f.Name]; !ok {
			order = append(order, f.Name)
		}
		byName[f.Name] = f.Value
	}
	for _, f := range right.Fields {
		if _, ok := byName[f.Name]; !ok {
			order = append(order, f.Name)
		}
		byName[f.Name] = f.Value
	}
	fields := make([]values.ProductFieldValue, 0, len(order))
	for _, name := range order {
		fields = append(fields, values.ProductFieldValue{Name: name, Value: byName[name]})
	}
	return values.Product(values.CType{Kind: values.KindProduct}, fields...)
}

func (r *Runner) signature(executionID, structuralHash string, resumptionCount int, allInputs map[string]values.CValue, d *ir.DAG, st *runState, status Status, startedAt time.Time) *DataSignature {
	st.mu.Lock()
	defer st.mu.Unlock()

	outputs := make(map[string]values.CValue, len(d.DeclaredOutputs))
	var pending []string
	for _, name := range d.DeclaredOutputs {
		id := d.OutputBindings[name]
		if v, ok := st.data[id]; ok {
			outputs[name] = v
		} else {
			pending = append(pending, name)
		}
	}

	computed := make(map[uuid.UUID]values.CValue, len(st.data))
	for id, v := range st.data {
		computed[id] = v
	}

	var failed []uuid.UUID
	for id, ms := range st.moduleStatus {
		if ms.State == "Failed" {
			failed = append(failed, id)
		}
	}

	var missing []string
	if status == StatusPartial {
		for id, n := range d.DataNodes {
			if _, have := st.data[id]; !have && n.Transform == nil && len(n.Consumers) > 0 {
				missing = append(missing, n.Name)
			}
		}
	}

	return &DataSignature{
		ExecutionID:     executionID,
		StructuralHash:  structuralHash,
		Status:          status,
		ResumptionCount: resumptionCount,
		Outputs:         outputs,
		ComputedNodes:   computed,
		MissingInputs:   missing,
		PendingOutputs:  pending,
		FailedNodes:     failed,
		AllInputs:       allInputs,
		StartedAt:       startedAt,
		CompletedAt:    time.Now(),
	}
}
