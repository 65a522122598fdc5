package types

import "fmt"

const maxSubtypeDepth = 64

// IsSubtype implements the structural subtyping relation: Nothing
// is bottom; T <: T reflexive; List/Optional/Candidates covariant; Map
// invariant on keys, covariant on values; Record width+depth subtyping;
// a closed Record is a subtype of an OpenRecord iff every required field
// is present with a compatible type.
func IsSubtype(sub, sup SemanticType) bool {
	return isSubtype(sub, sup, 0)
}

func isSubtype(sub, sup SemanticType, depth int) bool {
	if depth > maxSubtypeDepth {
		return false
	}
	if sub.Kind == KindNothing {
		return true
	}
	if sub.Kind == sup.Kind && isScalar(sub.Kind) {
		return true
	}

	switch sup.Kind {
	case KindList:
		return sub.Kind == KindList && isSubtype(*sub.Elem, *sup.Elem, depth+1)
	case KindOptional:
		return sub.Kind == KindOptional && isSubtype(*sub.Elem, *sup.Elem, depth+1)
	case KindCandidates:
		return sub.Kind == KindCandidates && isSubtype(*sub.Elem, *sup.Elem, depth+1)
	case KindMap:
		return sub.Kind == KindMap &&
			typesEqual(*sub.Key, *sup.Key) &&
			isSubtype(*sub.Value, *sup.Value, depth+1)
	case KindRecord:
		return sub.Kind == KindRecord && recordFieldsSubtype(sub.Fields, sup.Fields, depth)
	case KindOpenRecord:
		switch sub.Kind {
		case KindRecord:
			return recordFieldsSubtype(sub.Fields, sup.Fields, depth)
		case KindOpenRecord:
			return recordFieldsSubtype(sub.Fields, sup.Fields, depth)
		}
		return false
	case KindFunction:
		return sub.Kind == KindFunction && functionSubtype(sub, sup, depth)
	default:
		return false
	}
}

func isScalar(k Kind) bool {
	switch k {
	case KindInt, KindFloat, KindString, KindBoolean:
		return true
	default:
		return false
	}
}

// recordFieldsSubtype checks that every field named in sup exists in sub
// with a subtype (width + depth subtyping); sub's extra fields are free.
func recordFieldsSubtype(subFields, supFields []Field, depth int) bool {
	sm := fieldMap(subFields)
	for _, f := range supFields {
		st, ok := sm[f.Name]
		if !ok {
			return false
		}
		if !isSubtype(st, f.Type, depth+1) {
			return false
		}
	}
	return true
}

func functionSubtype(sub, sup SemanticType, depth int) bool {
	if len(sub.Params) != len(sup.Params) {
		return false
	}
	// Parameters are contravariant; returns covariant.
	for i := range sub.Params {
		if !isSubtype(sup.Params[i], sub.Params[i], depth+1) {
			return false
		}
	}
	return isSubtype(*sub.Returns, *sup.Returns, depth+1)
}

func typesEqual(a, b SemanticType) bool {
	return isSubtype(a, b, 0) && isSubtype(b, a, 0)
}

// ExplainFailure returns a human-readable reason IsSubtype(sub, sup)
// failed, or "" if it did not fail.
func ExplainFailure(sub, sup SemanticType) string {
	if IsSubtype(sub, sup) {
		return ""
	}
	if sub.Kind != sup.Kind && !(sup.Kind == KindOpenRecord && (sub.Kind == KindRecord || sub.Kind == KindOpenRecord)) {
		return fmt.Sprintf("expected %s, found %s", sup.Kind, sub.Kind)
	}
	switch sup.Kind {
	case KindRecord, KindOpenRecord:
		sm := fieldMap(sub.Fields)
		for _, f := range sup.Fields {
			st, ok := sm[f.Name]
			if !ok {
				return fmt.Sprintf("missing field %q", f.Name)
			}
			if !IsSubtype(st, f.Type) {
				return fmt.Sprintf("field %q: expected %s, found %s", f.Name, f.Type.Kind, st.Kind)
			}
		}
	case KindList, KindOptional, KindCandidates:
		return fmt.Sprintf("element type mismatch: expected %s, found %s", sup.Elem.Kind, sub.Elem.Kind)
	}
	return "incompatible types"
}

func (k Kind) String() string {
	switch k {
	case KindNothing:
		return "Nothing"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindBoolean:
		return "Boolean"
	case KindList:
		return "List"
	case KindMap:
		return "Map"
	case KindOptional:
		return "Optional"
	case KindRecord:
		return "Record"
	case KindCandidates:
		return "Candidates"
	case KindFunction:
		return "Function"
	case KindOpenRecord:
		return "OpenRecord"
	case KindRowVar:
		return "RowVar"
	default:
		return "Unknown"
	}
}
