package core

import (
	"strconv"
	"strings"
)

// HintPrefix marks an execution-hint comment line. The marker is a SQL
// line comment, so engines that ever see the raw text still parse it.
const HintPrefix = "--+"

// Recognized hint keys. Anything else is retained verbatim and passed
// through to downstream consumers.
const (
	HintParallel     = "parallel"
	HintBatchSize    = "batch_size"
	HintPartitionKey = "partition_key"
)

// HintPair is one key/value hint. Value is empty for presence-only hints.
type HintPair struct {
	Key   string
	Value string
}

// Annotation is the ordered set of execution hints parsed from the
// comment lines preceding a statement. It is immutable after parse.
type Annotation struct {
	pairs []HintPair
	index map[string]int
}

// EmptyAnnotation returns an annotation with no hints.
func EmptyAnnotation() *Annotation {
	return &Annotation{index: make(map[string]int)}
}

// Has reports whether a hint key is present, value or not.
func (a *Annotation) Has(key string) bool {
	_, ok := a.index[key]
	return ok
}

// Get returns the raw value of a hint key. Presence-only hints return
// an empty string with ok true.
func (a *Annotation) Get(key string) (string, bool) {
	i, ok := a.index[key]
	if !ok {
		return "", false
	}
	return a.pairs[i].Value, true
}

// IntValue returns the integer value of a hint key. ok is false when the
// key is absent or present without a value.
func (a *Annotation) IntValue(key string) (value int, ok bool, err error) {
	raw, present := a.Get(key)
	if !present || raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Pairs returns all hints in their original order, pass-through keys
// included.
func (a *Annotation) Pairs() []HintPair {
	out := make([]HintPair, len(a.pairs))
	copy(out, a.pairs)
	return out
}

// Len returns the number of parsed hints.
func (a *Annotation) Len() int {
	return len(a.pairs)
}

// ParseLeadingHints splits an input into the hint annotation and the
// statement body that follows. Hint lines are consumed from the top until
// the first non-hint, non-blank line; everything from that line on is the
// statement. On a malformed hint line the returned annotation is empty
// and the statement body is still usable, so callers can degrade to
// sequential execution instead of failing.
func ParseLeadingHints(input string) (*Annotation, string, error) {
	ann := EmptyAnnotation()
	rest := input
	for len(rest) > 0 {
		line, remainder := nextLine(rest)
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			rest = remainder
			continue
		}
		if !strings.HasPrefix(trimmed, HintPrefix) {
			break
		}
		if err := ann.parseHintLine(trimmed); err != nil {
			return EmptyAnnotation(), strings.TrimSpace(remainderAfterHints(input)), err
		}
		rest = remainder
	}
	return ann, strings.TrimSpace(rest), nil
}

// remainderAfterHints returns the statement body of an input whose hint
// block may contain malformed lines: every leading line carrying the hint
// marker is dropped regardless of whether it parsed.
func remainderAfterHints(input string) string {
	rest := input
	for len(rest) > 0 {
		line, remainder := nextLine(rest)
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, HintPrefix) {
			rest = remainder
			continue
		}
		break
	}
	return rest
}

func nextLine(s string) (line, rest string) {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func (a *Annotation) parseHintLine(line string) error {
	body := strings.TrimSpace(strings.TrimPrefix(line, HintPrefix))
	if body == "" {
		return &MalformedAnnotationError{Line: line, Reason: "empty hint"}
	}

	key := body
	value := ""
	if i := strings.IndexByte(body, ':'); i >= 0 {
		key = strings.TrimSpace(body[:i])
		value = strings.TrimSpace(body[i+1:])
		if key == "" {
			return &MalformedAnnotationError{Line: line, Reason: "missing key before colon"}
		}
		if value == "" {
			return &MalformedAnnotationError{Line: line, Reason: "missing value after colon"}
		}
	}
	if strings.ContainsAny(key, " \t") {
		return &MalformedAnnotationError{Line: line, Reason: "hint key contains whitespace"}
	}
	key = strings.ToLower(key)

	// Recognized integer hints are validated eagerly; an unparsable value
	// makes the whole annotation malformed rather than surprising the
	// consumer later.
	switch key {
	case HintParallel:
		if value != "" {
			if _, err := strconv.Atoi(value); err != nil {
				return &MalformedAnnotationError{Line: line, Reason: "parallel value is not an integer"}
			}
		}
	case HintBatchSize:
		if value == "" {
			return &MalformedAnnotationError{Line: line, Reason: "batch_size requires a value"}
		}
		if _, err := strconv.Atoi(value); err != nil {
			return &MalformedAnnotationError{Line: line, Reason: "batch_size value is not an integer"}
		}
	}

	if _, exists := a.index[key]; exists {
		return &MalformedAnnotationError{Line: line, Reason: "duplicate hint key " + key}
	}
	a.index[key] = len(a.pairs)
	a.pairs = append(a.pairs, HintPair{Key: key, Value: value})
	return nil
}
