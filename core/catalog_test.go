package core

import (
	"errors"
	"testing"
)

func TestNewOperatorCatalog_ConflictIsFatal(t *testing.T) {
	_, err := NewOperatorCatalog([]OperatorDescriptor{
		{Name: "means", Arity: ArityScalar, Form: FormInfix, Canonical: "matches"},
		{Name: "MEANS", Arity: ArityAggregate, Form: FormFunction},
	})

	var conflict *CatalogConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected CatalogConflictError, got %v", err)
	}
	if conflict.Operator != "MEANS" {
		t.Errorf("Expected conflicting operator MEANS, got %s", conflict.Operator)
	}
}

func TestNewOperatorCatalog_ScalarRequiresCanonical(t *testing.T) {
	_, err := NewOperatorCatalog([]OperatorDescriptor{
		{Name: "MEANS", Arity: ArityScalar, Form: FormInfix},
	})
	if err == nil {
		t.Errorf("Expected error for scalar operator without canonical form")
	}
}

func TestOperatorCatalog_LookupIsCaseInsensitive(t *testing.T) {
	catalog := DefaultCatalog()

	for _, name := range []string{"means", "MEANS", "Means"} {
		desc, ok := catalog.Lookup(name)
		if !ok {
			t.Fatalf("Expected lookup of %s to succeed", name)
		}
		if desc.Arity != ArityScalar {
			t.Errorf("Expected MEANS to be scalar, got %s", desc.Arity)
		}
		if desc.Canonical != "matches" {
			t.Errorf("Expected canonical form matches, got %s", desc.Canonical)
		}
	}

	if _, ok := catalog.Lookup("UPPER"); ok {
		t.Errorf("Expected UPPER to be absent from the catalog")
	}
}

func TestDefaultCatalog_Contents(t *testing.T) {
	catalog := DefaultCatalog()

	if catalog.Len() != 6 {
		t.Errorf("Expected 6 built-in operators, got %d", catalog.Len())
	}

	summarize, ok := catalog.Lookup("SUMMARIZE")
	if !ok {
		t.Fatal("Expected SUMMARIZE in the default catalog")
	}
	if summarize.Arity != ArityAggregate {
		t.Errorf("Expected SUMMARIZE to be aggregate, got %s", summarize.Arity)
	}

	descs := catalog.Descriptors()
	for i := 1; i < len(descs); i++ {
		if descs[i-1].Name >= descs[i].Name {
			t.Errorf("Expected descriptors sorted by name, got %s before %s", descs[i-1].Name, descs[i].Name)
		}
	}
}
