package slide

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidSlides is returned when slide JSON does not match the slide schema.
var ErrInvalidSlides = errors.New("invalid slide data")

// SchemaJSON is the JSON schema of the slide wire format.
const SchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["html"],
    "properties": {
      "html": {"type": "string"}
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("slides.json", strings.NewReader(SchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("slides.json")
	})
	return schema, schemaErr
}

// MarshalSlides encodes slides in the `[{"html": ...}]` wire format.
func MarshalSlides(slides []Slide) ([]byte, error) {
	if slides == nil {
		slides = []Slide{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(slides); err != nil {
		return nil, errors.Wrap(err, "failed to encode slides")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalSlides decodes and validates slide JSON.
func UnmarshalSlides(data []byte) ([]Slide, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile slide schema")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to parse slide json"), ErrInvalidSlides)
	}

	if err := sch.Validate(raw); err != nil {
		return nil, errors.Mark(errors.Newf("%s", describe(err)), ErrInvalidSlides)
	}

	var slides []Slide
	if err := json.Unmarshal(data, &slides); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to decode slides"), ErrInvalidSlides)
	}
	return slides, nil
}

// describe flattens a schema validation error into "location: message" parts.
func describe(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}

	var parts []string
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if len(node.Causes) == 0 {
			location := node.InstanceLocation
			if location == "" {
				location = "/"
			}
			parts = append(parts, location+": "+strings.TrimSpace(node.Message))
			return
		}
		for _, cause := range node.Causes {
			walk(cause)
		}
	}
	walk(verr)
	return "invalid slide data: " + strings.Join(parts, "; ")
}
