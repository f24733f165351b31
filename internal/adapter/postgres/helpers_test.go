package postgres

import (
	"math"
	"testing"
)

func TestVectorLiteralRoundTrip(t *testing.T) {
	in := []float32{0.25, -1, 3.5, 0}
	out, err := parseVector(vectorLiteral(in))
	if err != nil {
		t.Fatalf("parseVector: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1e-6 {
			t.Errorf("element %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestParseVectorRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "1,2,3", "[1,2", "[a,b]"} {
		if _, err := parseVector(s); err == nil {
			t.Errorf("parseVector(%q): expected error", s)
		}
	}
}

func TestParseVectorEmpty(t *testing.T) {
	out, err := parseVector("[]")
	if err != nil {
		t.Fatalf("parseVector: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil for empty literal, got %v", out)
	}
}

func TestNullableVector(t *testing.T) {
	if nullableVector(nil) != nil {
		t.Error("nil embedding should map to SQL NULL")
	}
	if nullableVector([]float32{}) != nil {
		t.Error("empty embedding should map to SQL NULL")
	}
	if v, ok := nullableVector([]float32{1}).(string); !ok || v != "[1]" {
		t.Errorf("got %v, want \"[1]\"", v)
	}
}
