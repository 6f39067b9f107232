package core

import (
	"fmt"
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// VerdictReason explains a classification outcome.
type VerdictReason int

const (
	ReasonNoOperators VerdictReason = iota
	ReasonAllScalar
	ReasonHasAggregate
)

// String returns the string representation of VerdictReason
func (r VerdictReason) String() string {
	switch r {
	case ReasonNoOperators:
		return "no_operators"
	case ReasonAllScalar:
		return "all_scalar"
	case ReasonHasAggregate:
		return "has_aggregate"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", r)
	}
}

// ClassificationVerdict is the result of scanning one statement against
// the operator catalog.
type ClassificationVerdict struct {
	IsSafe            bool
	MatchedOperators  []string // catalog names, sorted
	Reason            VerdictReason
	AggregateOperator string // first aggregate encountered, set for ReasonHasAggregate
}

// SafetyClassifier decides whether a statement's semantic operators can
// be evaluated per-partition. It scans the typed token stream rather than
// raw text, so operator names inside string literals or comments can
// never match.
type SafetyClassifier struct {
	catalog *OperatorCatalog
}

// NewSafetyClassifier creates a classifier over a catalog.
func NewSafetyClassifier(catalog *OperatorCatalog) *SafetyClassifier {
	return &SafetyClassifier{catalog: catalog}
}

// Classify scans sql for catalog operators and applies the whole-query
// safety policy: any aggregate operator makes the statement unsafe to
// partition, no matter how many scalar operators co-occur.
func (sc *SafetyClassifier) Classify(sql string) (ClassificationVerdict, error) {
	result, err := pg_query.Scan(sql)
	if err != nil {
		return ClassificationVerdict{}, fmt.Errorf("failed to scan SQL: %w", err)
	}

	matched := make(map[string]struct{})
	verdict := ClassificationVerdict{}
	for _, tok := range result.Tokens {
		if !identLike(tok) {
			continue
		}
		name := strings.ToUpper(sql[tok.Start:tok.End])
		desc, ok := sc.catalog.Lookup(name)
		if !ok {
			continue
		}
		matched[desc.Name] = struct{}{}
		if desc.Arity == ArityAggregate && verdict.AggregateOperator == "" {
			verdict.AggregateOperator = desc.Name
		}
	}

	for name := range matched {
		verdict.MatchedOperators = append(verdict.MatchedOperators, name)
	}
	sort.Strings(verdict.MatchedOperators)

	switch {
	case len(matched) == 0:
		verdict.Reason = ReasonNoOperators
		verdict.IsSafe = true
	case verdict.AggregateOperator != "":
		verdict.Reason = ReasonHasAggregate
		verdict.IsSafe = false
	default:
		verdict.Reason = ReasonAllScalar
		verdict.IsSafe = true
	}
	return verdict, nil
}

// identLike reports whether a scan token can carry an operator name:
// a plain identifier or any keyword. Literals and comments are distinct
// token types and are excluded by construction.
func identLike(tok *pg_query.ScanToken) bool {
	return tok.Token == pg_query.Token_IDENT || tok.KeywordKind != pg_query.KeywordKind_NO_KEYWORD
}
