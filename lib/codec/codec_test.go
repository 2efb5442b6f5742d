package codec

import (
	"reflect"
	"testing"
)

// yaml does not tell nil and empty slices apart, omitempty keeps a nil slice nil
type testRecord struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags,omitempty"`
	Count int      `yaml:"count"`
	Done  bool     `yaml:"done"`
}

// testCodecs is a map of codec name to factory function
var testCodecs = map[string]func() ICodec[testRecord]{
	"JSON": NewJSONCodec[testRecord],
	"GOB":  NewGOBCodec[testRecord],
	"YAML": NewYAMLCodec[testRecord],
}

func testRecords() []testRecord {
	return []testRecord{
		{Title: "only a title"},
		{Title: "draft", Tags: []string{"a", "b"}, Count: 3},
		{Title: "done", Tags: []string{"x"}, Count: -1, Done: true},
	}
}

// TestCodecRoundTrip tests that records can be encoded and decoded correctly
func TestCodecRoundTrip(t *testing.T) {
	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			c := factory()

			for i, rec := range testRecords() {
				data, err := c.Encode(rec)
				if err != nil {
					t.Errorf("Failed to encode record %d: %v", i, err)
					continue
				}

				result, err := c.Decode(data)
				if err != nil {
					t.Errorf("Failed to decode record %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(rec, result) {
					t.Errorf("Record %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v", i, rec, result)
				}
			}
		})
	}
}

func TestYAMLEmptySlices(t *testing.T) {
	type plain struct {
		Tags []string
	}
	c := NewYAMLCodec[plain]()

	data, err := c.Encode(plain{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	result, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	// without omitempty a nil slice comes back empty, both have no elements
	if len(result.Tags) != 0 {
		t.Errorf("Expected no tags, got %v", result.Tags)
	}

	rec, err := NewYAMLCodec[testRecord]().Decode([]byte("title: only a title\n"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if rec.Tags != nil {
		t.Errorf("Expected omitted tags to stay nil, got %#v", rec.Tags)
	}
}

func TestCodecDecodeGarbage(t *testing.T) {
	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			if _, err := factory().Decode([]byte("\x00\x01{not valid")); err == nil {
				t.Errorf("Expected an error when decoding garbage")
			}
		})
	}
}

func TestRawCodec(t *testing.T) {
	c := NewRawCodec()
	in := []byte("hello")

	data, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	in[0] = 'j'
	if string(data) != "hello" {
		t.Errorf("Encoded data must not share memory with the input, got %q", data)
	}

	out, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("Expected 'hello', got %q", out)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{NameJSON, NameGOB, NameYAML} {
		c, err := ByName[map[string]int](name)
		if err != nil {
			t.Errorf("ByName(%s) failed: %v", name, err)
			continue
		}
		if c.Name() != name {
			t.Errorf("Expected codec %s, got %s", name, c.Name())
		}
	}

	raw, err := ByName[[]byte](NameRaw)
	if err != nil {
		t.Fatalf("ByName(raw) failed: %v", err)
	}
	if raw.Name() != NameRaw {
		t.Errorf("Expected raw codec, got %s", raw.Name())
	}

	rawString, err := ByName[string](NameRaw)
	if err != nil {
		t.Fatalf("ByName(raw) for strings failed: %v", err)
	}
	data, _ := rawString.Encode("plain text")
	if string(data) != "plain text" {
		t.Errorf("Expected raw bytes of the string, got %q", data)
	}

	if _, err := ByName[int](NameRaw); err == nil {
		t.Errorf("Expected an error for the raw codec with int values")
	}
	if _, err := ByName[string]("xml"); err == nil {
		t.Errorf("Expected an error for an unknown codec")
	}
}
