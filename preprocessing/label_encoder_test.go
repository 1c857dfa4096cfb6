package preprocessing

import (
	"bytes"
	"encoding/gob"
	"reflect"
	"testing"

	"github.com/YuminosukeSato/farecast/pkg/errors"
)

func TestLabelEncoderSortedCodes(t *testing.T) {
	tests := []struct {
		name   string
		values []string
	}{
		{"sorted input", []string{"auto", "bike", "cab"}},
		{"shuffled with duplicates", []string{"cab", "bike", "cab", "auto", "bike"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewLabelEncoder()
			if err := e.Fit(tt.values); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if want := []string{"auto", "bike", "cab"}; !reflect.DeepEqual(e.Classes, want) {
				t.Errorf("Classes = %v, want %v", e.Classes, want)
			}
			for want, class := range []string{"auto", "bike", "cab"} {
				got, err := e.Transform(class)
				if err != nil || got != want {
					t.Errorf("Transform(%q) = %d, %v; want %d", class, got, err, want)
				}
				back, err := e.InverseTransform(got)
				if err != nil || back != class {
					t.Errorf("InverseTransform(%d) = %q, %v", got, back, err)
				}
			}
		})
	}
}

func TestLabelEncoderErrors(t *testing.T) {
	e := NewLabelEncoder()
	var nfe *errors.NotFittedError
	if _, err := e.Transform("cab"); !errors.As(err, &nfe) {
		t.Errorf("expected NotFittedError, got %v", err)
	}

	var ve *errors.ValueError
	if err := e.Fit(nil); !errors.As(err, &ve) {
		t.Errorf("expected ValueError for empty input, got %v", err)
	}

	if err := e.Fit([]string{"cab"}); err != nil {
		t.Fatal(err)
	}
	var uce *errors.UnknownCategoryError
	if _, err := e.Transform("rocket"); !errors.As(err, &uce) || uce.Value != "rocket" {
		t.Errorf("expected UnknownCategoryError, got %v", err)
	}
	var vae *errors.ValidationError
	if _, err := e.InverseTransform(5); !errors.As(err, &vae) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func fitTestRegistry(t *testing.T) *EncoderRegistry {
	t.Helper()
	reg, err := FitEncoderRegistry(map[string][]string{
		"transport_type":   {"cab", "bike", "auto", "cab"},
		"service_provider": {"yela", "obeer", "radipoo"},
	})
	if err != nil {
		t.Fatalf("FitEncoderRegistry: %v", err)
	}
	return reg
}

func TestEncoderRegistry(t *testing.T) {
	reg := fitTestRegistry(t)

	if got := reg.Fields(); !reflect.DeepEqual(got, []string{"service_provider", "transport_type"}) {
		t.Errorf("Fields = %v", got)
	}

	tests := []struct {
		field, value string
		want         int
	}{
		{"transport_type", "auto", 0},
		{"transport_type", "cab", 2},
		{"service_provider", "obeer", 0},
		{"service_provider", "yela", 2},
	}
	for _, tt := range tests {
		got, err := reg.Encode(tt.field, tt.value)
		if err != nil || got != tt.want {
			t.Errorf("Encode(%s, %s) = %d, %v; want %d", tt.field, tt.value, got, err, tt.want)
		}
	}

	var uce *errors.UnknownCategoryError
	if _, err := reg.Encode("transport_type", "helicopter"); !errors.As(err, &uce) {
		t.Fatalf("expected UnknownCategoryError, got %v", err)
	} else if uce.Field != "transport_type" || uce.Value != "helicopter" {
		t.Errorf("unexpected error fields: %+v", uce)
	}

	var ve *errors.ValidationError
	if _, err := reg.Encode("color", "red"); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for unknown field, got %v", err)
	}
}

func TestEncoderRegistryGobRebuildsIndex(t *testing.T) {
	reg := fitTestRegistry(t)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(reg); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got EncoderRegistry
	if err := gob.NewDecoder(&buf).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	code, err := got.Encode("service_provider", "radipoo")
	if err != nil || code != 1 {
		t.Errorf("Encode after decode = %d, %v; want 1", code, err)
	}
	if !reflect.DeepEqual(got.Classes("transport_type"), reg.Classes("transport_type")) {
		t.Error("classes differ after round trip")
	}
}
