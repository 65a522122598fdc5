package registry

import (
	"errors"
	"testing"

	"github.com/loom-run/loom/types"
)

func TestLookupUnqualifiedPrecedence(t *testing.T) {
	r := New()
	r.Register(FunctionSignature{Name: "parse", Returns: types.String()})
	sig, err := r.Lookup("parse", []string{"csv"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if sig.Namespace != "" {
		t.Fatalf("expected unnamespaced match, got namespace %q", sig.Namespace)
	}
}

func TestLookupAmbiguous(t *testing.T) {
	r := New()
	r.Register(FunctionSignature{Name: "parse", Namespace: "csv", Returns: types.String()})
	r.Register(FunctionSignature{Name: "parse", Namespace: "json", Returns: types.String()})
	_, err := r.Lookup("parse", []string{"csv", "json"})
	var ambig *AmbiguousFunctionError
	if !errors.As(err, &ambig) {
		t.Fatalf("expected AmbiguousFunctionError, got %v", err)
	}
	if len(ambig.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(ambig.Candidates))
	}
}

func TestLookupSingleNamespaceMatch(t *testing.T) {
	r := New()
	r.Register(FunctionSignature{Name: "parse", Namespace: "csv", Returns: types.String()})
	sig, err := r.Lookup("parse", []string{"csv"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if sig.Namespace != "csv" {
		t.Fatalf("expected csv namespace, got %q", sig.Namespace)
	}
}

func TestInstantiateFreshensRowVars(t *testing.T) {
	sig := FunctionSignature{
		Name:    "merge",
		Params:  []types.SemanticType{types.OpenRecord("r")},
		Returns: types.OpenRecord("r"),
		RowVars: []string{"r"},
	}
	inst := sig.InstantiateWith(map[string]string{"r": "r$1"})
	if inst.RowVars[0] != "r$1" {
		t.Fatalf("expected fresh row var r$1, got %q", inst.RowVars[0])
	}
	if inst.Params[0].RowVar != "r$1" || inst.Returns.RowVar != "r$1" {
		t.Fatalf("expected param/return row vars rewritten, got %+v", inst)
	}
	// original untouched
	if sig.RowVars[0] != "r" {
		t.Fatalf("Instantiate must not mutate the original signature")
	}
}

func TestGetQualifiedMissing(t *testing.T) {
	r := New()
	if _, ok := r.GetQualified("csv", "parse"); ok {
		t.Fatalf("expected no match for unregistered qualified name")
	}
}
