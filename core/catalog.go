package core

import (
	"fmt"
	"sort"
	"strings"
)

// OperatorArity classifies a semantic operator by how much of the result
// set it needs to see.
type OperatorArity int

const (
	// ArityScalar marks a per-row operator, safe to evaluate independently
	// inside any partition.
	ArityScalar OperatorArity = iota
	// ArityAggregate marks an operator that needs complete group
	// membership and therefore invalidates partitioned execution.
	ArityAggregate
)

// String returns the string representation of OperatorArity
func (a OperatorArity) String() string {
	switch a {
	case ArityScalar:
		return "scalar"
	case ArityAggregate:
		return "aggregate"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", a)
	}
}

// OperatorForm describes how an operator appears in query text.
type OperatorForm int

const (
	// FormInfix operators sit between operands, e.g. col MEANS 'x'.
	FormInfix OperatorForm = iota
	// FormFunction operators look like function calls, e.g. SUMMARIZE(col).
	FormFunction
)

// String returns the string representation of OperatorForm
func (f OperatorForm) String() string {
	switch f {
	case FormInfix:
		return "infix"
	case FormFunction:
		return "function"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", f)
	}
}

// OperatorDescriptor describes one semantic operator: its surface name,
// its arity, its syntactic form, and the canonical function the execution
// engine understands. Canonical is required for scalar operators because
// they are rewritten into executable form; aggregates are never rewritten.
type OperatorDescriptor struct {
	Name      string
	Arity     OperatorArity
	Form      OperatorForm
	Canonical string
}

// OperatorCatalog is the static classification table for semantic
// operators. It is built once at process start and read-only afterwards,
// so concurrent classification needs no locking.
type OperatorCatalog struct {
	ops map[string]OperatorDescriptor // keyed by uppercased name
}

// NewOperatorCatalog builds a catalog from descriptors. A name registered
// more than once is a construction error, reported as CatalogConflictError.
func NewOperatorCatalog(descriptors []OperatorDescriptor) (*OperatorCatalog, error) {
	ops := make(map[string]OperatorDescriptor, len(descriptors))
	for _, desc := range descriptors {
		name := strings.ToUpper(strings.TrimSpace(desc.Name))
		if name == "" {
			return nil, fmt.Errorf("operator descriptor with empty name")
		}
		if _, exists := ops[name]; exists {
			return nil, &CatalogConflictError{Operator: name}
		}
		if desc.Arity == ArityScalar && desc.Canonical == "" {
			return nil, fmt.Errorf("scalar operator %s has no canonical form", name)
		}
		desc.Name = name
		ops[name] = desc
	}
	return &OperatorCatalog{ops: ops}, nil
}

// Lookup returns the descriptor for an operator name, case-insensitively.
func (c *OperatorCatalog) Lookup(name string) (OperatorDescriptor, bool) {
	desc, ok := c.ops[strings.ToUpper(name)]
	return desc, ok
}

// Descriptors returns all registered descriptors sorted by name.
func (c *OperatorCatalog) Descriptors() []OperatorDescriptor {
	descs := make([]OperatorDescriptor, 0, len(c.ops))
	for _, desc := range c.ops {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

// Len returns the number of registered operators.
func (c *OperatorCatalog) Len() int {
	return len(c.ops)
}

// DefaultCatalog returns the built-in operator table. The set is fixed at
// compile time, so construction cannot conflict.
func DefaultCatalog() *OperatorCatalog {
	catalog, err := NewOperatorCatalog([]OperatorDescriptor{
		{Name: "MEANS", Arity: ArityScalar, Form: FormInfix, Canonical: "matches"},
		{Name: "SEM_FILTER", Arity: ArityScalar, Form: FormFunction, Canonical: "semantic_filter"},
		{Name: "SEM_MAP", Arity: ArityScalar, Form: FormFunction, Canonical: "semantic_map"},
		{Name: "SUMMARIZE", Arity: ArityAggregate, Form: FormFunction},
		{Name: "SEM_AGG", Arity: ArityAggregate, Form: FormFunction},
		{Name: "SEM_REDUCE", Arity: ArityAggregate, Form: FormFunction},
	})
	if err != nil {
		panic(err)
	}
	return catalog
}
