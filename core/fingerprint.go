package core

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// fingerprintSeed keeps fingerprints stable across processes and releases.
const fingerprintSeed = 0

// FingerprintEngine computes a structure-only hash of a statement: two
// queries differing only in literal values or formatting hash identically,
// while structural differences change the hash. Execution hints never
// participate; callers fingerprint the statement body alone.
type FingerprintEngine struct{}

// NewFingerprintEngine creates a fingerprint engine.
func NewFingerprintEngine() *FingerprintEngine {
	return &FingerprintEngine{}
}

// Fingerprint tokenizes sql, replaces every literal token with a fixed
// placeholder, collapses whitespace into single separators, and hashes
// the canonical token stream.
func (fe *FingerprintEngine) Fingerprint(sql string) (string, error) {
	canonical, err := fe.Canonicalize(sql)
	if err != nil {
		return "", err
	}
	sum := pg_query.HashXXH3_64([]byte(canonical), fingerprintSeed)
	return fmt.Sprintf("%016x", sum), nil
}

// Canonicalize returns the normalized token stream the fingerprint is
// computed over. Exposed for diagnostics and tests.
func (fe *FingerprintEngine) Canonicalize(sql string) (string, error) {
	result, err := pg_query.Scan(sql)
	if err != nil {
		return "", fmt.Errorf("failed to scan SQL: %w", err)
	}

	parts := make([]string, 0, len(result.Tokens))
	for _, tok := range result.Tokens {
		switch tok.Token {
		case pg_query.Token_SQL_COMMENT, pg_query.Token_C_COMMENT:
			// Comments carry no structure.
			continue
		case pg_query.Token_ICONST, pg_query.Token_FCONST, pg_query.Token_SCONST,
			pg_query.Token_BCONST, pg_query.Token_XCONST, pg_query.Token_USCONST:
			parts = append(parts, "?")
		default:
			parts = append(parts, strings.ToLower(sql[tok.Start:tok.End]))
		}
	}
	return strings.Join(parts, " "), nil
}
