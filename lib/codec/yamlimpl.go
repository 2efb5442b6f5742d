package codec

import "gopkg.in/yaml.v3"

// NewYAMLCodec creates a new codec using yaml encoding (gopkg.in/yaml.v3)
func NewYAMLCodec[T any]() ICodec[T] {
	return &yamlCodecImpl[T]{}
}

// yamlCodecImpl implements the ICodec interface using yaml encoding.
// yaml has no null slice: a nil slice decodes as an empty one unless its field is tagged omitempty.
type yamlCodecImpl[T any] struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (y yamlCodecImpl[T]) Encode(v T) ([]byte, error) {
	return yaml.Marshal(v)
}

func (y yamlCodecImpl[T]) Decode(b []byte) (T, error) {
	var v T
	err := yaml.Unmarshal(b, &v)
	return v, err
}

func (y yamlCodecImpl[T]) Name() string {
	return NameYAML
}
