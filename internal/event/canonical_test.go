package event

import (
	"encoding/json"
	"testing"
)

func TestMarshalCanonical_SortedKeys(t *testing.T) {
	p := Payload{
		"zebra": "z",
		"apple": "a",
		"mango": "m",
	}

	data, err := MarshalCanonical(p)
	if err != nil {
		t.Fatalf("MarshalCanonical() failed: %v", err)
	}

	expected := `{"apple":"a","mango":"m","zebra":"z"}`
	if string(data) != expected {
		t.Errorf("canonical JSON = %q, want %q", data, expected)
	}
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	p := Payload{"memo": "yarn <60/2> & thread"}

	data, err := MarshalCanonical(p)
	if err != nil {
		t.Fatalf("MarshalCanonical() failed: %v", err)
	}

	expected := `{"memo":"yarn <60/2> & thread"}`
	if string(data) != expected {
		t.Errorf("canonical JSON = %q, want %q", data, expected)
	}
}

func TestMarshalCanonical_NestedAndNumbers(t *testing.T) {
	p := Payload{
		"attrs": map[string]any{
			"total_amount": 12500.50,
			"quantity":     float64(300),
		},
		"materials": []any{
			map[string]any{"code": "YARN-60", "qty": 120},
		},
	}

	data, err := MarshalCanonical(p)
	if err != nil {
		t.Fatalf("MarshalCanonical() failed: %v", err)
	}

	expected := `{"attrs":{"quantity":300,"total_amount":12500.5},"materials":[{"code":"YARN-60","qty":120}]}`
	if string(data) != expected {
		t.Errorf("canonical JSON = %q, want %q", data, expected)
	}
}

func TestMarshalCanonical_Stable(t *testing.T) {
	p := Payload{
		"entity_id":    "ord-1",
		"org_id":       "org-1",
		"prior_status": "draft",
		"new_status":   "confirmed",
	}

	first, err := MarshalCanonical(p)
	if err != nil {
		t.Fatalf("MarshalCanonical() failed: %v", err)
	}

	// Round-trip and re-marshal: bytes must not change.
	parsed, err := UnmarshalPayload(first)
	if err != nil {
		t.Fatalf("UnmarshalPayload() failed: %v", err)
	}
	second, err := MarshalCanonical(parsed)
	if err != nil {
		t.Fatalf("MarshalCanonical() round-trip failed: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("round-trip changed bytes: %q -> %q", first, second)
	}
}

func TestUnmarshalPayload_Empty(t *testing.T) {
	p, err := UnmarshalPayload(nil)
	if err != nil {
		t.Fatalf("UnmarshalPayload(nil) failed: %v", err)
	}
	if len(p) != 0 {
		t.Errorf("expected empty payload, got %v", p)
	}
}

func TestUnmarshalPayload_LargeInt(t *testing.T) {
	data := []byte(`{"seq":9007199254740993}`)

	p, err := UnmarshalPayload(data)
	if err != nil {
		t.Fatalf("UnmarshalPayload() failed: %v", err)
	}

	n, ok := p["seq"].(json.Number)
	if !ok {
		t.Fatalf("seq decoded as %T, want json.Number", p["seq"])
	}
	if n.String() != "9007199254740993" {
		t.Errorf("seq = %s, want 9007199254740993 (precision lost)", n)
	}
}
