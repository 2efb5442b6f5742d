package codec

import (
	"fmt"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("codec")

// ICodec converts values of type T to the bytes stored by an engine and back.
type ICodec[T any] interface {
	// Encode serializes v. It returns the encoded bytes and an error if any
	Encode(v T) ([]byte, error)
	// Decode deserializes b into a new value of type T
	Decode(b []byte) (T, error)
	// Name returns the name the codec is selected by (see ByName)
	Name() string
}

// Codec names accepted by ByName
const (
	NameJSON = "json"
	NameGOB  = "gob"
	NameYAML = "yaml"
	NameRaw  = "raw"
)

// Names lists all codec names in the order they are shown to users
var Names = []string{NameJSON, NameGOB, NameYAML, NameRaw}

// ByName returns the codec called name for values of type T.
// The raw codec is only available for T = []byte and T = string.
func ByName[T any](name string) (ICodec[T], error) {
	switch name {
	case NameJSON:
		return NewJSONCodec[T](), nil
	case NameGOB:
		return NewGOBCodec[T](), nil
	case NameYAML:
		return NewYAMLCodec[T](), nil
	case NameRaw:
		var zero T
		switch any(zero).(type) {
		case []byte:
			return any(NewRawCodec()).(ICodec[T]), nil
		case string:
			return any(NewRawStringCodec()).(ICodec[T]), nil
		}
		return nil, fmt.Errorf("codec '%s' needs []byte or string values, not %T", name, zero)
	}
	log.Warningf("unknown codec '%s' requested", name)
	return nil, fmt.Errorf("unknown codec '%s' (available: %v)", name, Names)
}
