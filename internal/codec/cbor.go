// Package codec encodes journal records with deterministic CBOR.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// logical event always produces identical bytes. That property is what
// lets the journal hash chain be recomputed on load.
package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Hash, Duration and Expiry serialize through MarshalText so that
	// Forever stays a distinct value on the wire.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodeEvent returns the kind and payload bytes of ev.
func EncodeEvent(ev model.Event) (model.EventKind, []byte, error) {
	b, err := Marshal(ev)
	if err != nil {
		return "", nil, fmt.Errorf("codec: encode %s: %w", ev.Kind(), err)
	}
	return ev.Kind(), b, nil
}

// DecodeEvent is the inverse of EncodeEvent. The returned event is a value,
// never a pointer, so type switches match the types the marketplace emits.
func DecodeEvent(kind model.EventKind, payload []byte) (model.Event, error) {
	ptr, err := model.NewEvent(kind)
	if err != nil {
		return nil, err
	}
	if err := Unmarshal(payload, ptr); err != nil {
		return nil, fmt.Errorf("codec: decode %s: %w", kind, err)
	}
	return reflect.ValueOf(ptr).Elem().Interface().(model.Event), nil
}
