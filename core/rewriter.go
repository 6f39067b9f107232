package core

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// RewriterConfig holds the tunable parts of the partitioned rewriter.
type RewriterConfig struct {
	DefaultKeyColumn string // partition key when no partition_key hint is given; default "id"
	HashFunction     string // engine hash function applied to the key; default "hash"
}

// RewriteRequest carries the inputs for one partitioned rewrite.
type RewriteRequest struct {
	SQL       string
	Workers   int
	KeyColumn string // explicit partition key from the partition_key hint, may be empty
	BatchSize int    // optional cap on rows considered before partitioning, 0 for none
}

// PartitionedRewriter turns a statement verified all-scalar into N
// disjoint branch queries combined with UNION ALL. It is a pure
// transformation: same request in, byte-identical text out.
type PartitionedRewriter struct {
	catalog *OperatorCatalog
	config  RewriterConfig
}

// NewPartitionedRewriter creates a rewriter over a catalog.
func NewPartitionedRewriter(catalog *OperatorCatalog, config RewriterConfig) *PartitionedRewriter {
	if config.DefaultKeyColumn == "" {
		config.DefaultKeyColumn = "id"
	}
	if config.HashFunction == "" {
		config.HashFunction = "hash"
	}
	return &PartitionedRewriter{catalog: catalog, config: config}
}

// Rewrite produces the final rewritten statement and the partition plan
// used. Workers <= 1 is a no-op returning the original text. Statement
// shapes without an unambiguous partition key fail closed with
// NoPartitionKeyError; the caller falls back to sequential execution.
func (pr *PartitionedRewriter) Rewrite(req RewriteRequest) (string, *PartitionPlan, error) {
	if req.Workers <= 1 {
		return req.SQL, &PartitionPlan{WorkerCount: 1}, nil
	}

	canonical, err := pr.canonicalizeOperators(req.SQL)
	if err != nil {
		return "", nil, err
	}

	parsed, err := pg_query.Parse(canonical)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse SQL: %w", err)
	}
	if len(parsed.Stmts) != 1 {
		return "", nil, &NoPartitionKeyError{Reason: "input is not a single statement"}
	}
	sel := parsed.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil {
		return "", nil, &NoPartitionKeyError{Reason: "statement is not a SELECT"}
	}

	if err := checkRowLocal(sel); err != nil {
		return "", nil, err
	}

	keyExpr, err := pr.resolvePartitionKey(sel, req.KeyColumn)
	if err != nil {
		return "", nil, err
	}

	if sel.LimitOffset != nil {
		return "", nil, &UnsupportedShapeError{Reason: "OFFSET skips rows of the whole result, not of a branch"}
	}
	limit, err := constantLimit(sel)
	if err != nil {
		return "", nil, err
	}
	effective := limit
	if req.BatchSize > 0 && (effective == 0 || req.BatchSize < effective) {
		effective = req.BatchSize
	}
	perBranch := 0
	if effective > 0 {
		perBranch = (effective + req.Workers - 1) / req.Workers
	}

	plan := &PartitionPlan{WorkerCount: req.Workers, KeyExpr: keyExpr}
	branches := make([]*pg_query.SelectStmt, 0, req.Workers)
	for i := 0; i < req.Workers; i++ {
		branch, predicate, err := pr.buildBranch(canonical, keyExpr, req.Workers, i, perBranch)
		if err != nil {
			return "", nil, err
		}
		branches = append(branches, branch)
		plan.Branches = append(plan.Branches, BranchQuery{Index: i, Predicate: predicate, Limit: perBranch})
	}

	// Combine branches left-deep with UNION ALL; each branch's row set is
	// already disjoint, so deduplication must not happen. The original
	// ORDER BY and LIMIT apply exactly once, on the union result.
	root := branches[0]
	for i := 1; i < len(branches); i++ {
		root = &pg_query.SelectStmt{
			Op:   pg_query.SetOperation_SETOP_UNION,
			All:  true,
			Larg: root,
			Rarg: branches[i],
		}
	}
	root.SortClause = sel.SortClause
	if sel.LimitCount != nil {
		root.LimitCount = sel.LimitCount
		root.LimitOption = sel.LimitOption
	}

	final := &pg_query.ParseResult{
		Version: parsed.Version,
		Stmts: []*pg_query.RawStmt{{
			Stmt: &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: root}},
		}},
	}
	out, err := pg_query.Deparse(final)
	if err != nil {
		return "", nil, fmt.Errorf("failed to deparse rewritten query: %w", err)
	}
	return out, plan, nil
}

// aggregateFunctions lists the built-in SQL aggregates. A call to any of
// these folds its whole input group into one row, so a statement using one
// cannot be split across partitions.
var aggregateFunctions = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"array_agg": true, "string_agg": true, "xmlagg": true,
	"json_agg": true, "jsonb_agg": true,
	"json_object_agg": true, "jsonb_object_agg": true,
	"bool_and": true, "bool_or": true, "every": true,
	"bit_and": true, "bit_or": true,
	"stddev": true, "stddev_pop": true, "stddev_samp": true,
	"variance": true, "var_pop": true, "var_samp": true,
	"percentile_cont": true, "percentile_disc": true, "mode": true,
}

// checkRowLocal verifies the statement computes each output row from a
// single input row. Grouping, deduplication, window frames, and SQL
// aggregate calls all consume complete groups, so splitting them across
// partitions would return wrong results instead of merely slower ones.
func checkRowLocal(sel *pg_query.SelectStmt) error {
	if len(sel.DistinctClause) > 0 {
		return &UnsupportedShapeError{Reason: "DISTINCT deduplicates across the whole result"}
	}
	if len(sel.GroupClause) > 0 {
		return &UnsupportedShapeError{Reason: "statement has a GROUP BY clause"}
	}
	if sel.HavingClause != nil {
		return &UnsupportedShapeError{Reason: "statement has a HAVING clause"}
	}
	if len(sel.WindowClause) > 0 {
		return &UnsupportedShapeError{Reason: "statement defines window frames"}
	}
	for _, target := range sel.TargetList {
		if name, found := findAggregateCall(target); found {
			return &UnsupportedShapeError{Reason: fmt.Sprintf("aggregate function %s needs its complete input group", name)}
		}
	}
	for _, sort := range sel.SortClause {
		if name, found := findAggregateCall(sort); found {
			return &UnsupportedShapeError{Reason: fmt.Sprintf("aggregate function %s needs its complete input group", name)}
		}
	}
	return nil
}

// findAggregateCall walks an expression subtree looking for an aggregate
// or window function call. Subqueries are not descended into: an aggregate
// inside a sublink is scoped to the sublink and evaluates identically on
// every branch.
func findAggregateCall(node *pg_query.Node) (string, bool) {
	if node == nil {
		return "", false
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_FuncCall:
		call := n.FuncCall
		name := ""
		if len(call.Funcname) > 0 {
			name = strings.ToLower(call.Funcname[len(call.Funcname)-1].GetString_().GetSval())
		}
		if call.AggStar || call.AggDistinct || call.AggWithinGroup ||
			call.AggFilter != nil || len(call.AggOrder) > 0 ||
			call.Over != nil || aggregateFunctions[name] {
			return name, true
		}
		return findAggregateCallIn(call.Args)
	case *pg_query.Node_ResTarget:
		return findAggregateCall(n.ResTarget.Val)
	case *pg_query.Node_SortBy:
		return findAggregateCall(n.SortBy.Node)
	case *pg_query.Node_AExpr:
		if name, found := findAggregateCall(n.AExpr.Lexpr); found {
			return name, found
		}
		return findAggregateCall(n.AExpr.Rexpr)
	case *pg_query.Node_BoolExpr:
		return findAggregateCallIn(n.BoolExpr.Args)
	case *pg_query.Node_TypeCast:
		return findAggregateCall(n.TypeCast.Arg)
	case *pg_query.Node_NullTest:
		return findAggregateCall(n.NullTest.Arg)
	case *pg_query.Node_CaseExpr:
		if name, found := findAggregateCall(n.CaseExpr.Arg); found {
			return name, found
		}
		if name, found := findAggregateCallIn(n.CaseExpr.Args); found {
			return name, found
		}
		return findAggregateCall(n.CaseExpr.Defresult)
	case *pg_query.Node_CaseWhen:
		if name, found := findAggregateCall(n.CaseWhen.Expr); found {
			return name, found
		}
		return findAggregateCall(n.CaseWhen.Result)
	case *pg_query.Node_CoalesceExpr:
		return findAggregateCallIn(n.CoalesceExpr.Args)
	case *pg_query.Node_MinMaxExpr:
		return findAggregateCallIn(n.MinMaxExpr.Args)
	}
	return "", false
}

func findAggregateCallIn(nodes []*pg_query.Node) (string, bool) {
	for _, node := range nodes {
		if name, found := findAggregateCall(node); found {
			return name, found
		}
	}
	return "", false
}

// resolvePartitionKey applies the fail-closed key policy: an explicit
// hint always wins; otherwise the configured default column is used, but
// only when the statement reads exactly one plain relation. Joins,
// subquery FROM items, CTEs, and set operations are refused rather than
// guessed at.
func (pr *PartitionedRewriter) resolvePartitionKey(sel *pg_query.SelectStmt, explicit string) (string, error) {
	if sel.Op != pg_query.SetOperation_SETOP_NONE {
		return "", &NoPartitionKeyError{Reason: "statement is a set operation"}
	}
	if sel.WithClause != nil {
		return "", &NoPartitionKeyError{Reason: "statement has a WITH clause"}
	}
	if len(sel.FromClause) == 0 {
		return "", &NoPartitionKeyError{Reason: "statement has no FROM clause"}
	}
	if len(sel.FromClause) > 1 {
		return "", &NoPartitionKeyError{Reason: "statement reads more than one FROM item"}
	}
	rangeVar := sel.FromClause[0].GetRangeVar()
	if rangeVar == nil {
		return "", &NoPartitionKeyError{Reason: "FROM item is not a plain relation"}
	}

	key := explicit
	if key == "" {
		key = pr.config.DefaultKeyColumn
	}
	if key == "" {
		return "", &NoPartitionKeyError{Reason: "no partition key configured"}
	}
	if rangeVar.Alias != nil && rangeVar.Alias.Aliasname != "" && !strings.Contains(key, ".") {
		key = rangeVar.Alias.Aliasname + "." + key
	}
	return key, nil
}

// buildBranch parses a fresh tree for branch i and applies the branch
// transformations: the partition predicate is AND-ed into WHERE, ORDER BY
// is removed (it is re-applied once on the union), and the distributed
// limit replaces the original one.
func (pr *PartitionedRewriter) buildBranch(canonical, keyExpr string, workers, index, perBranch int) (*pg_query.SelectStmt, string, error) {
	parsed, err := pg_query.Parse(canonical)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse SQL: %w", err)
	}
	sel := parsed.Stmts[0].Stmt.GetSelectStmt()

	predicate := fmt.Sprintf("mod(%s(%s), %d) = %d", pr.config.HashFunction, keyExpr, workers, index)
	predNode, err := parsePredicate(predicate)
	if err != nil {
		return nil, "", err
	}
	if sel.WhereClause != nil {
		sel.WhereClause = andNode(sel.WhereClause, predNode)
	} else {
		sel.WhereClause = predNode
	}

	sel.SortClause = nil
	if perBranch > 0 {
		limitNode, err := parseLimitCount(perBranch)
		if err != nil {
			return nil, "", err
		}
		sel.LimitCount = limitNode
		sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_COUNT
	} else {
		sel.LimitCount = nil
		sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_DEFAULT
	}
	return sel, predicate, nil
}

// canonicalizeOperators rewrites every catalog scalar operator occurrence
// into its canonical executable form at the token level, before parsing:
// infix operators become canonical(rhs, lhs) calls, function-form
// operators are renamed. Token offsets come from the scanner, so operator
// names inside string literals or comments are never touched.
func (pr *PartitionedRewriter) canonicalizeOperators(sql string) (string, error) {
	scan, err := pg_query.Scan(sql)
	if err != nil {
		return "", fmt.Errorf("failed to scan SQL: %w", err)
	}

	type span struct {
		start, end int
		text       string
	}
	var spans []span
	toks := scan.Tokens
	for idx := 0; idx < len(toks); idx++ {
		tok := toks[idx]
		if !identLike(tok) {
			continue
		}
		desc, ok := pr.catalog.Lookup(sql[tok.Start:tok.End])
		if !ok || desc.Arity != ArityScalar {
			continue
		}

		switch desc.Form {
		case FormFunction:
			if idx+1 >= len(toks) || toks[idx+1].Token != pg_query.Token_ASCII_40 {
				return "", fmt.Errorf("operator %s is not followed by an argument list", desc.Name)
			}
			spans = append(spans, span{int(tok.Start), int(tok.End), desc.Canonical})

		case FormInfix:
			lo := idx - 1
			if lo < 0 || !identLike(toks[lo]) {
				return "", fmt.Errorf("operator %s has no left operand", desc.Name)
			}
			// Walk back over a qualified identifier chain like a.b.c.
			start := lo
			for start-2 >= 0 && toks[start-1].Token == pg_query.Token_ASCII_46 && identLike(toks[start-2]) {
				start -= 2
			}
			ri := idx + 1
			if ri >= len(toks) || !operandLike(toks[ri]) {
				return "", fmt.Errorf("operator %s has no right operand", desc.Name)
			}
			rend := ri
			for rend+2 < len(toks) && toks[rend+1].Token == pg_query.Token_ASCII_46 && identLike(toks[rend+2]) {
				rend += 2
			}
			lhs := sql[toks[start].Start:toks[lo].End]
			rhs := sql[toks[ri].Start:toks[rend].End]
			spans = append(spans, span{
				start: int(toks[start].Start),
				end:   int(toks[rend].End),
				text:  fmt.Sprintf("%s(%s, %s)", desc.Canonical, rhs, lhs),
			})
			idx = rend
		}
	}

	out := sql
	for i := len(spans) - 1; i >= 0; i-- {
		out = out[:spans[i].start] + spans[i].text + out[spans[i].end:]
	}
	return out, nil
}

// operandLike reports whether a token can serve as an infix operand:
// an identifier, keyword, or literal.
func operandLike(tok *pg_query.ScanToken) bool {
	if identLike(tok) {
		return true
	}
	switch tok.Token {
	case pg_query.Token_ICONST, pg_query.Token_FCONST, pg_query.Token_SCONST,
		pg_query.Token_BCONST, pg_query.Token_XCONST, pg_query.Token_USCONST:
		return true
	}
	return false
}

// constantLimit extracts a constant integer LIMIT, 0 when absent.
// Parameterized or expression limits cannot be distributed across
// branches and fail closed.
func constantLimit(sel *pg_query.SelectStmt) (int, error) {
	if sel.LimitCount == nil {
		return 0, nil
	}
	aconst := sel.LimitCount.GetAConst()
	if aconst == nil || aconst.GetIval() == nil {
		return 0, &NoPartitionKeyError{Reason: "LIMIT is not a constant integer"}
	}
	return int(aconst.GetIval().Ival), nil
}

// parsePredicate builds the expression node for a WHERE conjunct by
// parsing it inside a minimal carrier statement.
func parsePredicate(predicate string) (*pg_query.Node, error) {
	parsed, err := pg_query.Parse("SELECT 1 WHERE " + predicate)
	if err != nil {
		return nil, fmt.Errorf("failed to build partition predicate: %w", err)
	}
	return parsed.Stmts[0].Stmt.GetSelectStmt().WhereClause, nil
}

// parseLimitCount builds the constant node for a branch LIMIT.
func parseLimitCount(n int) (*pg_query.Node, error) {
	parsed, err := pg_query.Parse(fmt.Sprintf("SELECT 1 LIMIT %d", n))
	if err != nil {
		return nil, fmt.Errorf("failed to build branch limit: %w", err)
	}
	return parsed.Stmts[0].Stmt.GetSelectStmt().LimitCount, nil
}

// andNode joins two boolean expressions with AND.
func andNode(left, right *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_BoolExpr{BoolExpr: &pg_query.BoolExpr{
		Boolop:   pg_query.BoolExprType_AND_EXPR,
		Args:     []*pg_query.Node{left, right},
		Location: -1,
	}}}
}
