// Package values implements the runtime value and type representation
// (C10): CValue tagged variants mirroring CType, and a streaming JSON
// bridge that converts external payloads into CValues against a
// declared CType under configurable size/shape limits.
package values

import "fmt"

// Kind discriminates a CType/CValue variant, mirroring the closed set
// of semantic types in package types.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBoolean
	KindList
	KindMap
	KindProduct
	KindUnion
	KindSome
	KindNone
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "String"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBoolean:
		return "Boolean"
	case KindList:
		return "List"
	case KindMap:
		return "Map"
	case KindProduct:
		return "Product"
	case KindUnion:
		return "Union"
	case KindSome:
		return "Some"
	case KindNone:
		return "None"
	default:
		return "Unknown"
	}
}

// CType describes the shape a CValue is expected to have. It mirrors
// types.SemanticType but stays independent of the checker's type model
// so the runtime value package has no compile-time dependency on it.
type CType struct {
	Kind     Kind
	Elem     *CType            // List, Some, None
	Key      *CType            // Map
	Value    *CType            // Map
	Fields   []ProductField    // Product, ordered
	Variants []CType           // Union, ordered; tag is the index
	Name     string            // Product/Union display name, optional
}

// ProductField is one named, ordered field of a Product type.
type ProductField struct {
	Name string
	Type CType
}

// CValue is the tagged runtime value. Exactly one of the type-specific
// fields is meaningful, selected by Kind.
type CValue struct {
	Kind    Kind
	Str     string
	Int     int64
	Float   float64
	Bool    bool
	List    []CValue
	ListOf  CType
	Pairs   []MapPair
	KeyType CType
	ValType CType
	Fields  []ProductFieldValue
	Schema  CType
	Tag     int
	Payload *CValue
	Variant CType
	Some    *CValue
	Inner   CType
}

// MapPair is one key/value entry of a CMap, order-preserving for
// deterministic re-serialization.
type MapPair struct {
	Key   CValue
	Value CValue
}

// ProductFieldValue is one named field of a CProduct.
type ProductFieldValue struct {
	Name  string
	Value CValue
}

// String constructs a CString.
func String(s string) CValue { return CValue{Kind: KindString, Str: s} }

// Int constructs a CInt.
func Int(i int64) CValue { return CValue{Kind: KindInt, Int: i} }

// Float constructs a CFloat.
func Float(f float64) CValue { return CValue{Kind: KindFloat, Float: f} }

// Bool constructs a CBoolean.
func Bool(b bool) CValue { return CValue{Kind: KindBoolean, Bool: b} }

// List constructs a CList with the given element type.
func List(elemType CType, elements ...CValue) CValue {
	return CValue{Kind: KindList, List: elements, ListOf: elemType}
}

// Map constructs a CMap.
func Map(keyType, valType CType, pairs ...MapPair) CValue {
	return CValue{Kind: KindMap, Pairs: pairs, KeyType: keyType, ValType: valType}
}

// Product constructs a CProduct (a record value) against schema.
func Product(schema CType, fields ...ProductFieldValue) CValue {
	return CValue{Kind: KindProduct, Schema: schema, Fields: fields}
}

// Some wraps v as CSome(v).
func Some(inner CType, v CValue) CValue {
	return CValue{Kind: KindSome, Some: &v, Inner: inner}
}

// None constructs CNone(inner).
func None(inner CType) CValue { return CValue{Kind: KindNone, Inner: inner} }

// Zero returns the type-appropriate default value for t, used by the
// Skip error strategy: empty string, 0, 0.0, false, empty list/map,
// CNone, product of zero field values, first union variant.
func Zero(t CType) CValue {
	switch t.Kind {
	case KindString:
		return String("")
	case KindInt:
		return Int(0)
	case KindFloat:
		return Float(0)
	case KindBoolean:
		return Bool(false)
	case KindList:
		elem := CType{Kind: KindString}
		if t.Elem != nil {
			elem = *t.Elem
		}
		return List(elem)
	case KindMap:
		k, v := CType{Kind: KindString}, CType{Kind: KindString}
		if t.Key != nil {
			k = *t.Key
		}
		if t.Value != nil {
			v = *t.Value
		}
		return Map(k, v)
	case KindProduct:
		fields := make([]ProductFieldValue, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = ProductFieldValue{Name: f.Name, Value: Zero(f.Type)}
		}
		return Product(t, fields...)
	case KindUnion:
		if len(t.Variants) == 0 {
			return None(t)
		}
		zero := Zero(t.Variants[0])
		return CValue{Kind: KindUnion, Tag: 0, Payload: &zero, Variant: t.Variants[0]}
	case KindSome, KindNone:
		inner := CType{Kind: KindString}
		if t.Elem != nil {
			inner = *t.Elem
		}
		return None(inner)
	default:
		return CValue{Kind: KindNone}
	}
}

// String implements fmt.Stringer for debugging/logging.
func (v CValue) String() string {
	switch v.Kind {
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case KindNone:
		return "None"
	default:
		return fmt.Sprintf("%s(...)", v.Kind)
	}
}
