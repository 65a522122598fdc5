package values

import (
	"errors"
	"strings"
	"testing"
)

func TestBridgeDecodeProductTolerantOfUnknownFields(t *testing.T) {
	schema := CType{Kind: KindProduct, Fields: []ProductField{
		{Name: "name", Type: CType{Kind: KindString}},
		{Name: "age", Type: CType{Kind: KindInt}},
	}}
	b := NewBridge(DefaultLimits())
	v, err := b.Decode(strings.NewReader(`{"name":"ada","age":30,"unknown":{"nested":[1,2,3]}}`), schema)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(v.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(v.Fields))
	}
	if v.Fields[0].Value.Str != "ada" || v.Fields[1].Value.Int != 30 {
		t.Fatalf("unexpected field values: %+v", v.Fields)
	}
}

func TestBridgeDecodeUnion(t *testing.T) {
	union := CType{Kind: KindUnion, Variants: []CType{
		{Kind: KindString},
		{Kind: KindInt},
	}}
	b := NewBridge(DefaultLimits())
	v, err := b.Decode(strings.NewReader(`{"tag":1,"value":42}`), union)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Tag != 1 || v.Payload == nil || v.Payload.Int != 42 {
		t.Fatalf("unexpected union decode: %+v", v)
	}
}

func TestBridgeArrayLimitExceeded(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxArrayElements = 2
	b := NewBridge(limits)
	listType := CType{Kind: KindList, Elem: &CType{Kind: KindInt}}
	_, err := b.Decode(strings.NewReader(`[1,2,3]`), listType)
	if !errors.Is(err, ErrArrayLimitExceeded) {
		t.Fatalf("expected ErrArrayLimitExceeded, got %v", err)
	}
}

func TestBridgePayloadTooLarge(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPayloadSize = 8
	b := NewBridge(limits)
	_, err := b.Decode(strings.NewReader(`"this string is far too long"`), CType{Kind: KindString})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestBridgeNestingLimitExceeded(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxNestingDepth = 1
	b := NewBridge(limits)
	listType := CType{Kind: KindList, Elem: &CType{Kind: KindList, Elem: &CType{Kind: KindInt}}}
	_, err := b.Decode(strings.NewReader(`[[1,2]]`), listType)
	if !errors.Is(err, ErrNestingLimitExceeded) {
		t.Fatalf("expected ErrNestingLimitExceeded, got %v", err)
	}
}
