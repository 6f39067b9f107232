package core

import "fmt"

// MalformedAnnotationError reports a hint line that could not be parsed.
// It is recoverable: the orchestrator continues with an empty annotation
// and surfaces a warning instead of failing the statement.
type MalformedAnnotationError struct {
	Line   string // the offending hint line, marker included
	Reason string
}

func (e *MalformedAnnotationError) Error() string {
	return fmt.Sprintf("malformed annotation %q: %s", e.Line, e.Reason)
}

// NoPartitionKeyError reports that a statement verified safe to partition
// could not be given a usable partition key or branch shape. It is
// recoverable: the orchestrator downgrades to sequential execution.
type NoPartitionKeyError struct {
	Reason string
}

func (e *NoPartitionKeyError) Error() string {
	return fmt.Sprintf("no usable partition key: %s", e.Reason)
}

// UnsupportedShapeError reports a statement shape whose results would be
// corrupted by hash partitioning: grouping, deduplication, window frames,
// pagination offsets, and plain SQL aggregate calls all need the complete
// row set in one place. It is recoverable: the orchestrator downgrades to
// sequential execution.
type UnsupportedShapeError struct {
	Reason string
}

func (e *UnsupportedShapeError) Error() string {
	return fmt.Sprintf("statement cannot be partitioned: %s", e.Reason)
}

// CatalogConflictError reports an operator registered as both scalar and
// aggregate, or registered twice. Catalog construction happens once at
// process start, so this error is fatal to initialization.
type CatalogConflictError struct {
	Operator string
}

func (e *CatalogConflictError) Error() string {
	return fmt.Sprintf("operator catalog conflict: %s registered more than once", e.Operator)
}
