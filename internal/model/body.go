package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FormField is one urlencoded field with its values in submission order.
type FormField struct {
	Name   string   `json:"name" yaml:"name" bson:"name"`
	Values []string `json:"values" yaml:"values" bson:"values"`
}

// FormData keeps form fields in the order they were captured. In JSON it
// uses the webRequest shape, an object of name to value list.
type FormData []FormField

// Add appends value to the named field, creating the field at the end when
// it is new.
func (f *FormData) Add(name, value string) {
	for i := range *f {
		if (*f)[i].Name == name {
			(*f)[i].Values = append((*f)[i].Values, value)
			return
		}
	}
	*f = append(*f, FormField{Name: name, Values: []string{value}})
}

// Get returns the values of the named field, or nil.
func (f FormData) Get(name string) []string {
	for _, field := range f {
		if field.Name == name {
			return field.Values
		}
	}
	return nil
}

func (f FormData) Clone() FormData {
	if f == nil {
		return nil
	}
	out := make(FormData, len(f))
	for i, field := range f {
		out[i] = FormField{Name: field.Name, Values: append([]string(nil), field.Values...)}
	}
	return out
}

func (f FormData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		values := field.Values
		if values == nil {
			values = []string{}
		}
		list, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(list)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON walks the object token by token so field order survives.
// Repeated keys are merged into the first occurrence.
func (f *FormData) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("form data: expected object, got %v", tok)
	}

	out := FormData{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("form data: unexpected key %v", tok)
		}
		var values []string
		if err := dec.Decode(&values); err != nil {
			return fmt.Errorf("form data field %q: %w", name, err)
		}
		if len(values) == 0 && out.Get(name) == nil {
			out = append(out, FormField{Name: name, Values: []string{}})
			continue
		}
		for _, v := range values {
			out.Add(name, v)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

// RawData holds raw body chunks. In JSON each chunk is {"bytes": base64},
// the webRequest UploadData shape.
type RawData [][]byte

type rawChunk struct {
	Bytes []byte `json:"bytes"`
}

func (r RawData) Clone() RawData {
	if r == nil {
		return nil
	}
	out := make(RawData, len(r))
	for i, chunk := range r {
		out[i] = append([]byte(nil), chunk...)
	}
	return out
}

func (r RawData) MarshalJSON() ([]byte, error) {
	chunks := make([]rawChunk, len(r))
	for i, chunk := range r {
		chunks[i] = rawChunk{Bytes: chunk}
	}
	return json.Marshal(chunks)
}

func (r *RawData) UnmarshalJSON(data []byte) error {
	var chunks []rawChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return err
	}
	if chunks == nil {
		*r = nil
		return nil
	}
	out := make(RawData, len(chunks))
	for i, chunk := range chunks {
		out[i] = chunk.Bytes
	}
	*r = out
	return nil
}
