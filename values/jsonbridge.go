package values

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Limits bound the streaming JSON bridge: enforced as the payload is
// decoded, not after whole-document materialization.
type Limits struct {
	MaxPayloadSize   int64
	MaxArrayElements int
	MaxNestingDepth  int
}

// DefaultLimits returns conservative defaults suitable for untrusted
// external input.
func DefaultLimits() Limits {
	return Limits{
		MaxPayloadSize:   10 << 20, // 10MiB
		MaxArrayElements: 100_000,
		MaxNestingDepth:  64,
	}
}

// Distinct error kinds for limit violations.
var (
	ErrPayloadTooLarge     = errors.New("payload exceeds maxPayloadSize")
	ErrArrayLimitExceeded  = errors.New("array exceeds maxArrayElements")
	ErrNestingLimitExceeded = errors.New("nesting exceeds maxNestingDepth")
)

// limitedReader counts bytes read and fails once MaxPayloadSize is
// exceeded, independent of how the decoder buffers internally.
type limitedReader struct {
	r     io.Reader
	max   int64
	total int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.total += int64(n)
	if l.max > 0 && l.total > l.max {
		return n, ErrPayloadTooLarge
	}
	return n, err
}

// Bridge decodes JSON into CValues matching a declared CType, honoring
// Limits. It is token-driven (via json.Decoder.Token) rather than
// unmarshaling the whole document into a generic interface{} tree first.
type Bridge struct {
	limits Limits
}

// NewBridge constructs a Bridge with the given limits.
func NewBridge(limits Limits) *Bridge {
	return &Bridge{limits: limits}
}

// Decode reads one JSON value from r and converts it to a CValue
// matching t.
func (b *Bridge) Decode(r io.Reader, t CType) (CValue, error) {
	lr := &limitedReader{r: r, max: b.limits.MaxPayloadSize}
	dec := json.NewDecoder(lr)
	dec.UseNumber()
	v, err := b.decodeValue(dec, t, 0)
	if lr.max > 0 && lr.total > lr.max {
		return CValue{}, ErrPayloadTooLarge
	}
	if err != nil {
		return CValue{}, err
	}
	return v, nil
}

func (b *Bridge) decodeValue(dec *json.Decoder, t CType, depth int) (CValue, error) {
	if b.limits.MaxNestingDepth > 0 && depth > b.limits.MaxNestingDepth {
		return CValue{}, ErrNestingLimitExceeded
	}
	tok, err := dec.Token()
	if err != nil {
		return CValue{}, err
	}
	return b.decodeToken(dec, tok, t, depth)
}

func (b *Bridge) decodeToken(dec *json.Decoder, tok json.Token, t CType, depth int) (CValue, error) {
	switch tv := tok.(type) {
	case json.Delim:
		switch tv {
		case '{':
			return b.decodeObject(dec, t, depth+1)
		case '[':
			return b.decodeArray(dec, t, depth+1)
		default:
			return CValue{}, fmt.Errorf("unexpected delimiter %q", tv)
		}
	case string:
		return String(tv), nil
	case json.Number:
		if t.Kind == KindFloat {
			f, err := tv.Float64()
			if err != nil {
				return CValue{}, err
			}
			return Float(f), nil
		}
		i, err := tv.Int64()
		if err != nil {
			f, ferr := tv.Float64()
			if ferr != nil {
				return CValue{}, err
			}
			return Float(f), nil
		}
		return Int(i), nil
	case bool:
		return Bool(tv), nil
	case nil:
		return None(t), nil
	default:
		return CValue{}, fmt.Errorf("unsupported JSON token %T", tok)
	}
}

func (b *Bridge) decodeArray(dec *json.Decoder, t CType, depth int) (CValue, error) {
	elemType := CType{Kind: KindString}
	if t.Elem != nil {
		elemType = *t.Elem
	}
	var elements []CValue
	count := 0
	for dec.More() {
		if b.limits.MaxArrayElements > 0 && count >= b.limits.MaxArrayElements {
			return CValue{}, ErrArrayLimitExceeded
		}
		v, err := b.decodeValue(dec, elemType, depth)
		if err != nil {
			return CValue{}, err
		}
		elements = append(elements, v)
		count++
	}
	if _, err := dec.Token(); err != nil { // consume ']'
		return CValue{}, err
	}
	return List(elemType, elements...), nil
}

// decodeObject handles both Product (declared field schema) and Map
// (declared key/value types) targets. Unknown object fields against a
// Product schema are skipped (tolerant read).
func (b *Bridge) decodeObject(dec *json.Decoder, t CType, depth int) (CValue, error) {
	if t.Kind == KindUnion {
		return b.decodeUnion(dec, t, depth)
	}
	if t.Kind == KindProduct {
		byName := make(map[string]CType, len(t.Fields))
		for _, f := range t.Fields {
			byName[f.Name] = f.Type
		}
		fields := make([]ProductFieldValue, 0, len(t.Fields))
		seen := make(map[string]CValue, len(t.Fields))
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return CValue{}, err
			}
			key := keyTok.(string)
			fieldType, known := byName[key]
			if !known {
				if err := b.skipValue(dec, depth); err != nil {
					return CValue{}, err
				}
				continue
			}
			v, err := b.decodeValue(dec, fieldType, depth)
			if err != nil {
				return CValue{}, err
			}
			seen[key] = v
		}
		if _, err := dec.Token(); err != nil { // consume '}'
			return CValue{}, err
		}
		for _, f := range t.Fields {
			if v, ok := seen[f.Name]; ok {
				fields = append(fields, ProductFieldValue{Name: f.Name, Value: v})
			} else {
				fields = append(fields, ProductFieldValue{Name: f.Name, Value: Zero(f.Type)})
			}
		}
		return Product(t, fields...), nil
	}

	keyType, valType := CType{Kind: KindString}, CType{Kind: KindString}
	if t.Key != nil {
		keyType = *t.Key
	}
	if t.Value != nil {
		valType = *t.Value
	}
	var pairs []MapPair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return CValue{}, err
		}
		key := keyTok.(string)
		v, err := b.decodeValue(dec, valType, depth)
		if err != nil {
			return CValue{}, err
		}
		pairs = append(pairs, MapPair{Key: String(key), Value: v})
	}
	if _, err := dec.Token(); err != nil { // consume '}'
		return CValue{}, err
	}
	return Map(keyType, valType, pairs...), nil
}

// decodeUnion decodes the {tag, value} wire encoding: tag
// precedes value in the object's key order.
func (b *Bridge) decodeUnion(dec *json.Decoder, t CType, depth int) (CValue, error) {
	var tag int
	var haveTag bool
	var payload *CValue
	var variant CType

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return CValue{}, err
		}
		key := keyTok.(string)
		switch key {
		case "tag":
			tagTok, err := dec.Token()
			if err != nil {
				return CValue{}, err
			}
			n, ok := tagTok.(json.Number)
			if !ok {
				return CValue{}, fmt.Errorf("union tag must be a number, got %T", tagTok)
			}
			tagInt, err := n.Int64()
			if err != nil {
				return CValue{}, err
			}
			tag = int(tagInt)
			haveTag = true
			if tag < 0 || tag >= len(t.Variants) {
				return CValue{}, fmt.Errorf("union tag %d out of range for %d variants", tag, len(t.Variants))
			}
			variant = t.Variants[tag]
		case "value":
			if !haveTag {
				return CValue{}, fmt.Errorf("union value must follow tag")
			}
			v, err := b.decodeValue(dec, variant, depth)
			if err != nil {
				return CValue{}, err
			}
			payload = &v
		default:
			if err := b.skipValue(dec, depth); err != nil {
				return CValue{}, err
			}
		}
	}
	if _, err := dec.Token(); err != nil { // consume '}'
		return CValue{}, err
	}
	if !haveTag || payload == nil {
		return CValue{}, fmt.Errorf("union encoding missing tag or value")
	}
	return CValue{Kind: KindUnion, Tag: tag, Payload: payload, Variant: variant}, nil
}

// skipValue discards the next JSON value without materializing it into
// a CValue, used for unknown object fields.
func (b *Bridge) skipValue(dec *json.Decoder, depth int) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	if b.limits.MaxNestingDepth > 0 && depth+1 > b.limits.MaxNestingDepth {
		return ErrNestingLimitExceeded
	}
	if delim == '{' {
		for dec.More() {
			if _, err := dec.Token(); err != nil { // object key
				return err
			}
			if err := b.skipValue(dec, depth+1); err != nil {
				return err
			}
		}
	} else {
		for dec.More() {
			if err := b.skipValue(dec, depth+1); err != nil {
				return err
			}
		}
	}
	_, err = dec.Token() // consume closing delimiter
	return err
}
