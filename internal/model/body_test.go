package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFormDataJSONKeepsFieldOrder(t *testing.T) {
	t.Parallel()

	var form FormData
	if err := json.Unmarshal([]byte(`{"zeta":["1"],"alpha":["2","3"],"zeta":["4"],"empty":[]}`), &form); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := FormData{
		{Name: "zeta", Values: []string{"1", "4"}},
		{Name: "alpha", Values: []string{"2", "3"}},
		{Name: "empty", Values: []string{}},
	}
	if !reflect.DeepEqual(form, want) {
		t.Fatalf("form = %+v, want %+v", form, want)
	}

	out, err := json.Marshal(form)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"zeta":["1","4"],"alpha":["2","3"],"empty":[]}` {
		t.Errorf("json = %s", out)
	}
}

func TestFormDataRejectsNonObject(t *testing.T) {
	t.Parallel()

	tests := []string{`["a"]`, `{"a":"b"}`, `{"a":[1]}`}
	for _, in := range tests {
		var form FormData
		if err := json.Unmarshal([]byte(in), &form); err == nil {
			t.Errorf("Unmarshal(%s) accepted %+v", in, form)
		}
	}
}

func TestRequestBodyJSONShape(t *testing.T) {
	t.Parallel()

	body := RequestBody{RawChunks: RawData{[]byte(`{"a":1}`)}}
	out, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"raw":[{"bytes":"eyJhIjoxfQ=="}]}` {
		t.Fatalf("json = %s", out)
	}

	var back RequestBody
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(back.RawChunks) != 1 || string(back.RawChunks[0]) != `{"a":1}` || back.FormFields != nil {
		t.Errorf("body = %+v", back)
	}
}

func TestFormDataAddAndClone(t *testing.T) {
	t.Parallel()

	var form FormData
	form.Add("b", "1")
	form.Add("a", "2")
	form.Add("b", "3")
	if got := form.Get("b"); !reflect.DeepEqual(got, []string{"1", "3"}) || form[1].Name != "a" {
		t.Fatalf("form = %+v", form)
	}

	clone := form.Clone()
	clone[0].Values[0] = "x"
	if form.Get("b")[0] != "1" {
		t.Error("clone shares value slices")
	}
	if form.Get("missing") != nil {
		t.Error("Get on a missing field returned values")
	}
}
