package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://voxstruct.ai/schemas/"

var schemaFiles = map[string]string{
	TypeHello:     "hello.schema.json",
	TypeWelcome:   "welcome.schema.json",
	TypeEdit:      "edit.schema.json",
	TypeMine:      "mine.schema.json",
	TypeProbe:     "probe.schema.json",
	TypeAck:       "ack.schema.json",
	TypeChunkMesh: "chunk_mesh.schema.json",
}

// Validator checks raw messages against the embedded JSON schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	files, err := fs.Glob(schemaFS, "schemas/*.schema.json")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		b, err := schemaFS.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+path.Base(f), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", f, err)
		}
	}
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(schemaFiles))}
	for typ, name := range schemaFiles {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.schemas[typ] = s
	}
	return v, nil
}

// Validate decodes the message type and checks raw against its schema.
func (v *Validator) Validate(raw []byte) (BaseMessage, error) {
	base, err := DecodeBase(raw)
	if err != nil {
		return base, fmt.Errorf("bad json: %w", err)
	}
	s, ok := v.schemas[base.Type]
	if !ok {
		return base, fmt.Errorf("unknown message type %q", base.Type)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return base, fmt.Errorf("bad json: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return base, fmt.Errorf("%s: %w", base.Type, err)
	}
	return base, nil
}

// ValidateValue marshals msg and validates the result.
func (v *Validator) ValidateValue(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = v.Validate(b)
	return err
}
