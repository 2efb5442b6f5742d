package codec

import (
	"bytes"
	"encoding/gob"
)

// NewGOBCodec creates a new codec using Go's binary gob format
func NewGOBCodec[T any]() ICodec[T] {
	return &gobCodecImpl[T]{}
}

// gobCodecImpl implements the ICodec interface using gob encoding.
// Every value is encoded with its own encoder, so each record carries its type description.
type gobCodecImpl[T any] struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (g gobCodecImpl[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobCodecImpl[T]) Decode(b []byte) (T, error) {
	var v T
	dec := gob.NewDecoder(bytes.NewReader(b))
	err := dec.Decode(&v)
	return v, err
}

func (g gobCodecImpl[T]) Name() string {
	return NameGOB
}
