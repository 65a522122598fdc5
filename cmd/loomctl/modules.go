package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/loom-run/loom/exec"
	"github.com/loom-run/loom/values"
)

// builtinModule is one name's callable body. Declarative pipelines
// name modules by string and never carry an implementation alongside
// them (module resolution is the embedding application's job, per the
// type-checker/registry split between signature and behavior) — the
// CLI ships a small fixed set of pure, side-effect-free builtins so
// `run` has something concrete to execute without requiring a plugin
// mechanism this spec never defines.
type builtinModule func(ctx context.Context, inputs map[string]values.CValue) (values.CValue, error)

// builtinModules is the CLI's fixed ModuleSource, grounded on the
// teacher's own Transform connector: a pure function of its inputs,
// no retries or side effects of its own (those are layered on by the
// executor's module-options composition, not the module body).
var builtinModules = map[string]builtinModule{
	"add":        moduleAdd,
	"multiply":   moduleMultiply,
	"uppercase":  moduleUppercase,
	"lowercase":  moduleLowercase,
	"concat":     moduleConcat,
	"length":     moduleLength,
	"not":        moduleNot,
}

// ModuleRegistry adapts builtinModules to exec.ModuleSource.
type ModuleRegistry struct{}

// Resolve implements exec.ModuleSource.
func (ModuleRegistry) Resolve(name string) (exec.Module, bool) {
	m, ok := builtinModules[name]
	if !ok {
		return nil, false
	}
	return exec.Module(m), true
}

// ModuleNames lists the builtins registered, sorted, for help output.
func ModuleNames() []string {
	names := make([]string, 0, len(builtinModules))
	for n := range builtinModules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func moduleAdd(_ context.Context, inputs map[string]values.CValue) (values.CValue, error) {
	a, err := intInput(inputs, "a")
	if err != nil {
		return values.CValue{}, err
	}
	b, err := intInput(inputs, "b")
	if err != nil {
		return values.CValue{}, err
	}
	return values.Int(a + b), nil
}

func moduleMultiply(_ context.Context, inputs map[string]values.CValue) (values.CValue, error) {
	a, err := intInput(inputs, "a")
	if err != nil {
		return values.CValue{}, err
	}
	b, err := intInput(inputs, "b")
	if err != nil {
		return values.CValue{}, err
	}
	return values.Int(a * b), nil
}

func moduleUppercase(_ context.Context, inputs map[string]values.CValue) (values.CValue, error) {
	s, err := stringInput(inputs, "in")
	if err != nil {
		return values.CValue{}, err
	}
	return values.String(strings.ToUpper(s)), nil
}

func moduleLowercase(_ context.Context, inputs map[string]values.CValue) (values.CValue, error) {
	s, err := stringInput(inputs, "in")
	if err != nil {
		return values.CValue{}, err
	}
	return values.String(strings.ToLower(s)), nil
}

func moduleConcat(_ context.Context, inputs map[string]values.CValue) (values.CValue, error) {
	left, err := stringInput(inputs, "left")
	if err != nil {
		return values.CValue{}, err
	}
	right, err := stringInput(inputs, "right")
	if err != nil {
		return values.CValue{}, err
	}
	return values.String(left + right), nil
}

func moduleLength(_ context.Context, inputs map[string]values.CValue) (values.CValue, error) {
	s, err := stringInput(inputs, "in")
	if err != nil {
		return values.CValue{}, err
	}
	return values.Int(int64(len(s))), nil
}

func moduleNot(_ context.Context, inputs map[string]values.CValue) (values.CValue, error) {
	v, ok := inputs["in"]
	if !ok || v.Kind != values.KindBoolean {
		return values.CValue{}, fmt.Errorf("module \"not\" requires a boolean input %q", "in")
	}
	return values.Bool(!v.Bool), nil
}

func intInput(inputs map[string]values.CValue, port string) (int64, error) {
	v, ok := inputs[port]
	if !ok || v.Kind != values.KindInt {
		return 0, fmt.Errorf("module requires an Int input %q", port)
	}
	return v.Int, nil
}

func stringInput(inputs map[string]values.CValue, port string) (string, error) {
	v, ok := inputs[port]
	if !ok || v.Kind != values.KindString {
		return "", fmt.Errorf("module requires a String input %q", port)
	}
	return v.Str, nil
}
