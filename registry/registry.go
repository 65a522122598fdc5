// Package registry implements the function registry (C2): registered
// module signatures, namespace resolution, and row-variable
// instantiation for row-polymorphic signatures.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/loom-run/loom/types"
)

// FunctionSignature describes one registered callable module.
type FunctionSignature struct {
	Name       string
	Params     []types.SemanticType
	Returns    types.SemanticType
	ModuleName string
	Namespace  string // empty if unnamespaced
	RowVars    []string
}

// IsRowPolymorphic reports whether the signature declares any row
// variables.
func (s FunctionSignature) IsRowPolymorphic() bool { return len(s.RowVars) > 0 }

// AmbiguousFunctionError is returned by Lookup when two imported
// namespaces expose the same function name with no qualifier given.
type AmbiguousFunctionError struct {
	Name       string
	Candidates []FunctionSignature
}

func (e *AmbiguousFunctionError) Error() string {
	return fmt.Sprintf("function %q is ambiguous across %d imported namespaces", e.Name, len(e.Candidates))
}

// Registry holds FunctionSignatures keyed by qualified name, supporting
// concurrent registration and lookup (the checker and compiler run
// several pipelines against the same registry concurrently).
type Registry struct {
	mu   sync.RWMutex
	byQN map[string]FunctionSignature // "namespace\x00name" or "\x00name"
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{byQN: make(map[string]FunctionSignature)}
}

func qualify(namespace, name string) string { return namespace + "\x00" + name }

// Register adds sig, replacing any existing signature under the same
// namespace+name.
func (r *Registry) Register(sig FunctionSignature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byQN[qualify(sig.Namespace, sig.Name)] = sig
}

// Get returns the unnamespaced signature registered under name.
func (r *Registry) Get(name string) (FunctionSignature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sig, ok := r.byQN[qualify("", name)]
	return sig, ok
}

// GetQualified returns the signature registered under namespace+name.
func (r *Registry) GetQualified(namespace, name string) (FunctionSignature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sig, ok := r.byQN[qualify(namespace, name)]
	return sig, ok
}

// Lookup resolves name against the unnamespaced registry first, then
// against each of importedNamespaces in turn. If more than one imported
// namespace exposes name and no unnamespaced or single match exists, it
// returns AmbiguousFunctionError.
func (r *Registry) Lookup(name string, importedNamespaces []string) (FunctionSignature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if sig, ok := r.byQN[qualify("", name)]; ok {
		return sig, nil
	}

	var matches []FunctionSignature
	for _, ns := range importedNamespaces {
		if sig, ok := r.byQN[qualify(ns, name)]; ok {
			matches = append(matches, sig)
		}
	}
	switch len(matches) {
	case 0:
		return FunctionSignature{}, fmt.Errorf("undefined function %q", name)
	case 1:
		return matches[0], nil
	default:
		sort.Slice(matches, func(i, j int) bool { return matches[i].Namespace < matches[j].Namespace })
		return FunctionSignature{}, &AmbiguousFunctionError{Name: name, Candidates: matches}
	}
}

// rowVarSeq allocates fresh row-variable identifiers for Instantiate.
// It is a package-level counter, shared by every registry and guarded
// by its own mutex; InstantiateWith takes caller-supplied names instead.
var rowVarSeq struct {
	mu  sync.Mutex
	n   uint64
}

func nextRowVar() string {
	rowVarSeq.mu.Lock()
	defer rowVarSeq.mu.Unlock()
	rowVarSeq.n++
	return fmt.Sprintf("row$%d", rowVarSeq.n)
}

// Instantiate returns a sibling signature with every declared row
// variable replaced by a freshly-allocated one, rewriting parameter and
// return types accordingly.
func (s FunctionSignature) Instantiate() FunctionSignature {
	fresh := make(map[string]string, len(s.RowVars))
	for _, rv := range s.RowVars {
		fresh[rv] = nextRowVar()
	}
	return s.InstantiateWith(fresh)
}

// InstantiateWith is Instantiate with caller-supplied fresh names,
// useful for deterministic tests.
func (s FunctionSignature) InstantiateWith(fresh map[string]string) FunctionSignature {
	params := make([]types.SemanticType, len(s.Params))
	for i, p := range s.Params {
		params[i] = renameRowVars(p, fresh)
	}
	returns := renameRowVars(s.Returns, fresh)
	rowVars := make([]string, 0, len(s.RowVars))
	for _, rv := range s.RowVars {
		if nv, ok := fresh[rv]; ok {
			rowVars = append(rowVars, nv)
		} else {
			rowVars = append(rowVars, rv)
		}
	}
	return FunctionSignature{
		Name: s.Name, Params: params, Returns: returns,
		ModuleName: s.ModuleName, Namespace: s.Namespace, RowVars: rowVars,
	}
}

func renameRowVars(t types.SemanticType, fresh map[string]string) types.SemanticType {
	switch t.Kind {
	case types.KindRowVar:
		if nv, ok := fresh[t.RowVar]; ok {
			return types.RowVar(nv)
		}
		return t
	case types.KindOpenRecord:
		fields := make([]types.Field, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = types.Field{Name: f.Name, Type: renameRowVars(f.Type, fresh)}
		}
		rv := t.RowVar
		if nv, ok := fresh[rv]; ok {
			rv = nv
		}
		return types.OpenRecord(rv, fields...)
	case types.KindRecord:
		fields := make([]types.Field, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = types.Field{Name: f.Name, Type: renameRowVars(f.Type, fresh)}
		}
		return types.Record(fields...)
	case types.KindList:
		e := renameRowVars(*t.Elem, fresh)
		return types.List(e)
	case types.KindOptional:
		e := renameRowVars(*t.Elem, fresh)
		return types.Optional(e)
	case types.KindCandidates:
		e := renameRowVars(*t.Elem, fresh)
		return types.Candidates(e)
	case types.KindMap:
		k := renameRowVars(*t.Key, fresh)
		v := renameRowVars(*t.Value, fresh)
		return types.MapOf(k, v)
	case types.KindFunction:
		params := make([]types.SemanticType, len(t.Params))
		for i, p := range t.Params {
			params[i] = renameRowVars(p, fresh)
		}
		return types.Function(params, renameRowVars(*t.Returns, fresh))
	default:
		return t
	}
}
