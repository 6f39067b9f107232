package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfigYAML = `default_workers: 4
default_key_column: row_id
hash_function: hashtext
cache:
  enabled: true
  max_memory_mb: 8
  ttl: 1m
operators:
  - name: means
    arity: scalar
    form: infix
    canonical: matches
  - name: summarize
    arity: aggregate
    form: function
`

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "semsql.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(writeTestConfig(t, testConfigYAML))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.DefaultWorkers != 4 {
		t.Errorf("Expected default_workers 4, got %d", config.DefaultWorkers)
	}
	if config.DefaultKeyColumn != "row_id" {
		t.Errorf("Expected default_key_column row_id, got %s", config.DefaultKeyColumn)
	}
	if !config.Cache.Enabled || config.Cache.MaxMemoryMB != 8 {
		t.Errorf("Expected cache enabled with 8MB budget, got %+v", config.Cache)
	}
	if config.Cache.TTL.Minutes() != 1 {
		t.Errorf("Expected 1m TTL, got %v", config.Cache.TTL)
	}
	if len(config.Operators) != 2 {
		t.Errorf("Expected 2 operators, got %d", len(config.Operators))
	}
}

func TestConfig_BuildCatalog(t *testing.T) {
	config, err := LoadConfig(writeTestConfig(t, testConfigYAML))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	catalog, err := config.BuildCatalog()
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}
	if catalog.Len() != 2 {
		t.Errorf("Expected 2 operators, got %d", catalog.Len())
	}
	desc, ok := catalog.Lookup("SUMMARIZE")
	if !ok || desc.Arity != ArityAggregate {
		t.Errorf("Expected aggregate SUMMARIZE, got %+v (present=%v)", desc, ok)
	}
}

func TestConfig_BuildCatalog_UnknownArity(t *testing.T) {
	config := &Config{Operators: []OperatorConfig{{Name: "x", Arity: "rowwise"}}}
	if _, err := config.BuildCatalog(); err == nil {
		t.Errorf("Expected error for unknown arity")
	}
}

func TestConfig_EmptyOperatorsUseBuiltInCatalog(t *testing.T) {
	config := &Config{}
	catalog, err := config.BuildCatalog()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if catalog.Len() != DefaultCatalog().Len() {
		t.Errorf("Expected built-in catalog, got %d operators", catalog.Len())
	}
}

func TestConfig_BuildOrchestrator(t *testing.T) {
	config, err := LoadConfig(writeTestConfig(t, testConfigYAML))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	orchestrator, err := config.BuildOrchestrator(nil)
	if err != nil {
		t.Fatalf("Failed to build orchestrator: %v", err)
	}

	result := orchestrator.Process("--+ parallel\nSELECT * FROM t WHERE col MEANS 'x'")
	if result.Outcome != OutcomeRewritten {
		t.Fatalf("Expected rewritten outcome, got %s (warnings: %v)", result.Outcome, result.Warnings)
	}
	// Configured key column and hash function flow into the predicates.
	if !strings.Contains(result.SQL, "mod(hashtext(row_id), 4) = 0") {
		t.Errorf("Expected configured hash and key in %q", result.SQL)
	}
}
