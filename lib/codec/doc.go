// Package codec converts the values held by a key-value store to bytes and back.
//
// The store is generic over its value type, the engines only know byte slices.
// A codec sits in between:
//
//   - ICodec[T]: interface all codecs satisfy.
//
//   - jsonCodecImpl: encoding/json. Human readable, the default of the CLI.
//
//   - gobCodecImpl: encoding/gob. Keeps Go types exactly, but the encoded records are
//     only readable from Go.
//
//   - yamlCodecImpl: gopkg.in/yaml.v3. Handy when records are inspected by hand.
//
//   - rawCodecImpl, rawStringCodecImpl: []byte or string values stored unchanged.
//
// All codecs are stateless and safe for concurrent use.
//
// Usage:
//
//	c, err := codec.ByName[Settings]("json")
//	data, err := c.Encode(settings)
//	settings, err = c.Decode(data)
package codec
