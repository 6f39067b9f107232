package core

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"semsql/querylog"
)

// State identifies a stage of the rewrite pipeline.
type State int

const (
	StateReceived State = iota
	StateAnnotated
	StateClassified
	StateRewritten
	StatePassThrough
	StateFallback
	// StateMapReduceRewritten is reserved for the aggregate map-reduce
	// rewrite, which is not implemented.
	StateMapReduceRewritten
	StateEmitted
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateAnnotated:
		return "annotated"
	case StateClassified:
		return "classified"
	case StateRewritten:
		return "rewritten"
	case StatePassThrough:
		return "pass_through"
	case StateFallback:
		return "fallback"
	case StateMapReduceRewritten:
		return "map_reduce_rewritten"
	case StateEmitted:
		return "emitted"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Outcome is the terminal disposition of one statement.
type Outcome int

const (
	// OutcomePassThrough means the original text was emitted unmodified
	// because no rewrite was needed or requested.
	OutcomePassThrough Outcome = iota
	// OutcomeRewritten means a partitioned rewrite was emitted.
	OutcomeRewritten
	// OutcomeFallback means a rewrite was requested but refused; the
	// original text was emitted with a warning.
	OutcomeFallback
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomePassThrough:
		return "pass_through"
	case OutcomeRewritten:
		return "rewritten"
	case OutcomeFallback:
		return "fallback"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", o)
	}
}

// Result is what the orchestrator emits for one statement: the final
// query text for the execution engine plus the metadata destined for the
// analytics store.
type Result struct {
	SQL         string
	Fingerprint string
	Verdict     ClassificationVerdict
	Outcome     Outcome
	Workers     int
	Plan        *PartitionPlan
	Warnings    []string
	Annotation  *Annotation // pass-through hints included
	CacheHit    bool
}

// OrchestratorConfig wires the orchestrator's collaborators. Every field
// is optional.
type OrchestratorConfig struct {
	DefaultWorkers   int    // worker count for a bare parallel hint; 0 means host CPU count
	DefaultKeyColumn string // partition key column when no hint names one
	HashFunction     string // engine hash function for partition predicates
	Logger           *zap.Logger
	Metrics          *Metrics
	Cache            *RewriteCache
	Recorder         querylog.Store
	SessionID        string // attributed on every query log record
}

// Orchestrator composes the annotation parser, fingerprint engine, safety
// classifier, and partitioned rewriter. It never fails a statement: every
// per-query problem degrades to emitting the original text sequentially.
type Orchestrator struct {
	config      OrchestratorConfig
	catalog     *OperatorCatalog
	classifier  *SafetyClassifier
	fingerprint *FingerprintEngine
	rewriter    *PartitionedRewriter
	logger      *zap.Logger
}

// NewOrchestrator creates an orchestrator. A nil catalog selects the
// built-in one.
func NewOrchestrator(catalog *OperatorCatalog, config OrchestratorConfig) *Orchestrator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if config.DefaultWorkers <= 0 {
		config.DefaultWorkers = runtime.NumCPU()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		config:      config,
		catalog:     catalog,
		classifier:  NewSafetyClassifier(catalog),
		fingerprint: NewFingerprintEngine(),
		rewriter: NewPartitionedRewriter(catalog, RewriterConfig{
			DefaultKeyColumn: config.DefaultKeyColumn,
			HashFunction:     config.HashFunction,
		}),
		logger: logger,
	}
}

// Process runs one statement through the pipeline:
// Received -> Annotated -> Classified -> {Rewritten | PassThrough | Fallback} -> Emitted.
func (o *Orchestrator) Process(input string) *Result {
	start := time.Now()
	result := &Result{}

	// Received -> Annotated. A malformed annotation is local and
	// recoverable: continue with no hints.
	annotation, statement, err := ParseLeadingHints(input)
	if err != nil {
		var malformed *MalformedAnnotationError
		if errors.As(err, &malformed) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("ignoring malformed annotation (%s)", malformed.Reason))
			o.logger.Warn("malformed annotation, continuing without hints",
				zap.String("line", malformed.Line),
				zap.String("reason", malformed.Reason))
		}
	}
	result.Annotation = annotation

	// Annotated -> Classified. The fingerprint covers the statement body
	// only: hints are execution advice, not semantics.
	if fingerprint, err := o.fingerprint.Fingerprint(statement); err != nil {
		result.Warnings = append(result.Warnings, "fingerprint unavailable: "+err.Error())
	} else {
		result.Fingerprint = fingerprint
	}

	verdict, classifyErr := o.classifier.Classify(statement)
	result.Verdict = verdict

	outcome, workers, plan := o.decide(statement, annotation, verdict, classifyErr, result)
	result.Outcome = outcome
	result.Workers = workers
	result.Plan = plan

	o.emit(result, start)
	return result
}

// decide picks the terminal transition and, for the rewrite path, runs
// the rewriter. It fills result.SQL and result.Warnings.
func (o *Orchestrator) decide(statement string, annotation *Annotation, verdict ClassificationVerdict, classifyErr error, result *Result) (Outcome, int, *PartitionPlan) {
	result.SQL = statement

	if classifyErr != nil {
		result.Warnings = append(result.Warnings, "classification unavailable: "+classifyErr.Error())
		return OutcomePassThrough, 0, nil
	}
	if !annotation.Has(HintParallel) || verdict.Reason == ReasonNoOperators {
		return OutcomePassThrough, 0, nil
	}

	if verdict.Reason == ReasonHasAggregate {
		warning := fmt.Sprintf("aggregate operator %s cannot be partitioned; executing sequentially",
			verdict.AggregateOperator)
		result.Warnings = append(result.Warnings, warning)
		o.logger.Warn("unsafe operator, falling back to sequential execution",
			zap.String("operator", verdict.AggregateOperator))
		if o.config.Metrics != nil {
			o.config.Metrics.Fallbacks.WithLabelValues(FallbackReasonAggregate).Inc()
		}
		return OutcomeFallback, 0, nil
	}

	workers := o.resolveWorkers(annotation)
	if workers <= 1 {
		return OutcomePassThrough, workers, nil
	}
	batchSize, _, _ := annotation.IntValue(HintBatchSize)
	keyColumn, _ := annotation.Get(HintPartitionKey)

	if o.config.Cache != nil {
		if cached, ok := o.config.Cache.Get(statement, workers, batchSize, keyColumn); ok {
			result.SQL = cached.SQL
			result.CacheHit = true
			if o.config.Metrics != nil {
				o.config.Metrics.CacheHits.Inc()
			}
			return cached.Outcome, workers, cached.Plan
		}
		if o.config.Metrics != nil {
			o.config.Metrics.CacheMisses.Inc()
		}
	}

	rewritten, plan, err := o.rewriter.Rewrite(RewriteRequest{
		SQL:       statement,
		Workers:   workers,
		KeyColumn: keyColumn,
		BatchSize: batchSize,
	})
	if err != nil {
		var noKey *NoPartitionKeyError
		var badShape *UnsupportedShapeError
		reason := FallbackReasonRewriteError
		warning := "rewrite failed: " + err.Error() + "; executing sequentially"
		if errors.As(err, &noKey) {
			reason = FallbackReasonNoKey
			warning = fmt.Sprintf("no usable partition key (%s); executing sequentially", noKey.Reason)
		} else if errors.As(err, &badShape) {
			reason = FallbackReasonShape
			warning = fmt.Sprintf("statement shape cannot be partitioned (%s); executing sequentially", badShape.Reason)
		}
		result.Warnings = append(result.Warnings, warning)
		o.logger.Warn("rewrite refused, falling back to sequential execution",
			zap.Error(err),
			zap.Int("workers", workers))
		if o.config.Metrics != nil {
			o.config.Metrics.Fallbacks.WithLabelValues(reason).Inc()
		}
		return OutcomeFallback, workers, nil
	}

	result.SQL = rewritten
	if o.config.Metrics != nil {
		o.config.Metrics.Branches.Add(float64(len(plan.Branches)))
	}
	if o.config.Cache != nil {
		o.config.Cache.Put(statement, workers, batchSize, keyColumn, &CachedRewrite{
			SQL:     rewritten,
			Plan:    plan,
			Outcome: OutcomeRewritten,
		})
	}
	return OutcomeRewritten, workers, plan
}

// resolveWorkers maps the parallel hint to a worker count: an explicit
// value is used as-is (floored at 1), a bare hint means the configured
// default, which itself defaults to the host CPU count.
func (o *Orchestrator) resolveWorkers(annotation *Annotation) int {
	value, ok, err := annotation.IntValue(HintParallel)
	if err != nil || !ok {
		return o.config.DefaultWorkers
	}
	if value < 1 {
		return 1
	}
	return value
}

// emit finalizes the result: metrics, structured log, analytics record.
func (o *Orchestrator) emit(result *Result, start time.Time) {
	if o.config.Metrics != nil {
		o.config.Metrics.Queries.WithLabelValues(result.Outcome.String()).Inc()
	}

	branches := 0
	if result.Plan != nil {
		branches = len(result.Plan.Branches)
	}
	o.logger.Debug("statement emitted",
		zap.String("fingerprint", result.Fingerprint),
		zap.String("verdict", result.Verdict.Reason.String()),
		zap.String("outcome", result.Outcome.String()),
		zap.Int("branches", branches))

	if o.config.Recorder == nil {
		return
	}
	record := querylog.Record{
		ID:          uuid.New(),
		SessionID:   o.config.SessionID,
		Fingerprint: result.Fingerprint,
		Verdict:     result.Verdict.Reason.String(),
		Outcome:     result.Outcome.String(),
		Warnings:    result.Warnings,
		Workers:     result.Workers,
		Branches:    branches,
		CacheHit:    result.CacheHit,
		Elapsed:     time.Since(start),
		CreatedAt:   time.Now(),
	}
	if err := o.config.Recorder.Append(record); err != nil {
		o.logger.Warn("failed to append query log record", zap.Error(err))
	}
}
