package core

import (
	"errors"
	"testing"
)

func TestParseLeadingHints_KeyValueAndPassThrough(t *testing.T) {
	input := "--+ parallel: 5\n--+ model: gpt-x\n--+ threshold: 0.8\nSELECT * FROM t"

	annotation, statement, err := ParseLeadingHints(input)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if statement != "SELECT * FROM t" {
		t.Errorf("Expected statement 'SELECT * FROM t', got '%s'", statement)
	}

	value, ok, err := annotation.IntValue(HintParallel)
	if err != nil || !ok || value != 5 {
		t.Errorf("Expected parallel=5, got value=%d ok=%v err=%v", value, ok, err)
	}

	// Pass-through keys are retained verbatim, in order.
	pairs := annotation.Pairs()
	if len(pairs) != 3 {
		t.Fatalf("Expected 3 hints, got %d", len(pairs))
	}
	if pairs[1].Key != "model" || pairs[1].Value != "gpt-x" {
		t.Errorf("Expected pass-through hint model=gpt-x, got %s=%s", pairs[1].Key, pairs[1].Value)
	}
	if pairs[2].Key != "threshold" || pairs[2].Value != "0.8" {
		t.Errorf("Expected pass-through hint threshold=0.8, got %s=%s", pairs[2].Key, pairs[2].Value)
	}
}

func TestParseLeadingHints_PresenceOnly(t *testing.T) {
	annotation, statement, err := ParseLeadingHints("--+ parallel\nSELECT 1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !annotation.Has(HintParallel) {
		t.Errorf("Expected parallel hint to be present")
	}
	if value, ok, _ := annotation.IntValue(HintParallel); ok || value != 0 {
		t.Errorf("Expected presence-only hint to carry no value, got %d", value)
	}
	if statement != "SELECT 1" {
		t.Errorf("Expected statement 'SELECT 1', got '%s'", statement)
	}
}

func TestParseLeadingHints_NoHints(t *testing.T) {
	annotation, statement, err := ParseLeadingHints("SELECT * FROM t WHERE x = 1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if annotation.Len() != 0 {
		t.Errorf("Expected empty annotation, got %d hints", annotation.Len())
	}
	if statement != "SELECT * FROM t WHERE x = 1" {
		t.Errorf("Statement was modified: '%s'", statement)
	}
}

func TestParseLeadingHints_HintsStopAtStatement(t *testing.T) {
	// A comment line after the statement starts is part of the statement.
	input := "--+ parallel: 2\nSELECT *\n--+ not_a_hint: 1\nFROM t"
	annotation, statement, err := ParseLeadingHints(input)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if annotation.Len() != 1 {
		t.Errorf("Expected 1 hint, got %d", annotation.Len())
	}
	if statement != "SELECT *\n--+ not_a_hint: 1\nFROM t" {
		t.Errorf("Expected statement to keep embedded lines, got '%s'", statement)
	}
}

func TestParseLeadingHints_Malformed(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty value after colon", "--+ parallel:\nSELECT 1"},
		{"missing key", "--+ : 5\nSELECT 1"},
		{"bare marker", "--+\nSELECT 1"},
		{"non-integer parallel", "--+ parallel: many\nSELECT 1"},
		{"batch_size without value", "--+ batch_size\nSELECT 1"},
		{"key with spaces", "--+ some key: 1\nSELECT 1"},
		{"duplicate key", "--+ parallel: 2\n--+ parallel: 3\nSELECT 1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			annotation, statement, err := ParseLeadingHints(tc.input)
			var malformed *MalformedAnnotationError
			if !errors.As(err, &malformed) {
				t.Fatalf("Expected MalformedAnnotationError, got %v", err)
			}
			if annotation.Len() != 0 {
				t.Errorf("Expected empty annotation after malformed hint, got %d hints", annotation.Len())
			}
			if statement != "SELECT 1" {
				t.Errorf("Expected statement to survive malformed hints, got '%s'", statement)
			}
		})
	}
}

func TestParseLeadingHints_BlankLinesBeforeStatement(t *testing.T) {
	annotation, statement, err := ParseLeadingHints("\n--+ parallel: 3\n\nSELECT 1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if value, _, _ := annotation.IntValue(HintParallel); value != 3 {
		t.Errorf("Expected parallel=3, got %d", value)
	}
	if statement != "SELECT 1" {
		t.Errorf("Expected statement 'SELECT 1', got '%s'", statement)
	}
}
