package codec

// NewRawCodec creates a codec that stores byte slices as they are
func NewRawCodec() ICodec[[]byte] {
	return rawCodecImpl{}
}

// rawCodecImpl implements the ICodec interface for []byte without any encoding.
// Encode and Decode copy, so callers may reuse their buffers.
type rawCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (r rawCodecImpl) Encode(v []byte) ([]byte, error) {
	return append(make([]byte, 0, len(v)), v...), nil
}

func (r rawCodecImpl) Decode(b []byte) ([]byte, error) {
	return append(make([]byte, 0, len(b)), b...), nil
}

func (r rawCodecImpl) Name() string {
	return NameRaw
}

// NewRawStringCodec creates a codec that stores strings as their bytes
func NewRawStringCodec() ICodec[string] {
	return rawStringCodecImpl{}
}

// rawStringCodecImpl implements the ICodec interface for string without any encoding
type rawStringCodecImpl struct {
}

func (r rawStringCodecImpl) Encode(v string) ([]byte, error) {
	return []byte(v), nil
}

func (r rawStringCodecImpl) Decode(b []byte) (string, error) {
	return string(b), nil
}

func (r rawStringCodecImpl) Name() string {
	return NameRaw
}
