package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"wbs-auc-reconciliation/internal/models"
	"wbs-auc-reconciliation/internal/reconciler"
	"wbs-auc-reconciliation/pkg/logger"
)

// Expected mirrors the files written by the generator
type Expected struct {
	Original           int `json:"original"`
	POs                int `json:"pos"`
	NonPOs             int `json:"non_pos"`
	ExcludedCS         int `json:"excluded_cs"`
	OffsetPairsRemoved int `json:"offset_pairs_removed"`
}

// TestResult is the outcome of validating one dataset
type TestResult struct {
	Dataset  string
	Passed   bool
	Duration time.Duration
	Got      models.Summary
	Issues   []string
}

// ScenarioValidator runs the reconciliation over generated datasets and
// compares the summaries with the expected ones
type ScenarioValidator struct {
	Dir     string
	service *reconciler.ReconciliationService
	status  string
}

func main() {
	var (
		dir     = flag.String("dir", "../generators/generated", "Directory with generated datasets")
		verbose = flag.Bool("verbose", false, "Log reconciliation details")
	)
	flag.Parse()

	logConfig := logger.DefaultConfig()
	if *verbose {
		logConfig.Level = logger.DebugLevel
	}
	if err := logger.Configure(logConfig); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	validator, err := NewScenarioValidator(*dir)
	if err != nil {
		log.Fatalf("Failed to create validator: %v", err)
	}

	results, err := validator.ValidateAll(context.Background())
	if err != nil {
		log.Fatalf("Validation failed: %v", err)
	}

	if !validator.PrintResults(results) {
		os.Exit(1)
	}
}

// NewScenarioValidator creates a validator with the default configuration
func NewScenarioValidator(dir string) (*ScenarioValidator, error) {
	service, err := reconciler.NewReconciliationService(reconciler.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return &ScenarioValidator{Dir: dir, service: service, status: service.GetConfiguration().StatusColumn}, nil
}

// ValidateAll validates every dataset that has an expectation file
func (sv *ScenarioValidator) ValidateAll(ctx context.Context) ([]TestResult, error) {
	expectations, err := filepath.Glob(filepath.Join(sv.Dir, "*_expected.json"))
	if err != nil {
		return nil, err
	}
	if len(expectations) == 0 {
		return nil, fmt.Errorf("no *_expected.json files in %s", sv.Dir)
	}
	sort.Strings(expectations)

	var results []TestResult
	for _, path := range expectations {
		expected, err := loadExpected(path)
		if err != nil {
			return nil, err
		}

		base := strings.TrimSuffix(path, "_expected.json")
		for _, ext := range []string{".csv", ".xlsx"} {
			if _, err := os.Stat(base + ext); err != nil {
				continue
			}
			results = append(results, sv.ValidateDataset(ctx, base+ext, expected))
		}
	}
	return results, nil
}

// ValidateDataset reconciles one file and checks the summary and the
// output tables against expected
func (sv *ScenarioValidator) ValidateDataset(ctx context.Context, path string, expected Expected) TestResult {
	result := TestResult{Dataset: filepath.Base(path)}
	start := time.Now()

	output, err := sv.service.Process(ctx, &reconciler.ReconciliationRequest{InputFile: path})
	result.Duration = time.Since(start)
	if err != nil {
		result.Issues = append(result.Issues, err.Error())
		return result
	}
	result.Got = output.Summary

	want := models.Summary{
		Original:           expected.Original,
		POs:                expected.POs,
		NonPOs:             expected.NonPOs,
		ExcludedCS:         expected.ExcludedCS,
		OffsetPairsRemoved: expected.OffsetPairsRemoved,
	}
	for i, item := range output.Summary.Items() {
		if wantItem := want.Items()[i]; item.Value != wantItem.Value {
			result.Issues = append(result.Issues,
				fmt.Sprintf("%s: got %d, want %d", item.Label, item.Value, wantItem.Value))
		}
	}

	if err := output.Summary.Validate(); err != nil {
		result.Issues = append(result.Issues, err.Error())
	}
	if output.Cleaned.Len() != output.Summary.Cleaned() {
		result.Issues = append(result.Issues,
			fmt.Sprintf("cleaned table has %d rows, summary says %d", output.Cleaned.Len(), output.Summary.Cleaned()))
	}
	if output.NonPO.Len() != output.Summary.NonPOs {
		result.Issues = append(result.Issues,
			fmt.Sprintf("Non-PO table has %d rows, summary says %d", output.NonPO.Len(), output.Summary.NonPOs))
	}

	statusIndex := output.NonPO.ColumnIndex(sv.status)
	for _, row := range output.NonPO.Rows {
		if statusIndex < 0 || statusIndex >= len(row.Values) || row.Values[statusIndex] != string(models.POStatusNonPO) {
			result.Issues = append(result.Issues, fmt.Sprintf("line %d in Non-PO table is not Non PO", row.Line))
			break
		}
	}

	result.Passed = len(result.Issues) == 0
	return result
}

// PrintResults prints a result table and reports whether all passed
func (sv *ScenarioValidator) PrintResults(results []TestResult) bool {
	table := tablewriter.NewTable(os.Stdout, tablewriter.WithHeaderAutoFormat(tw.Off))
	table.Header("Dataset", "Result", "Original", "POs", "Non POs", "CS", "Pairs", "Time")

	passed := 0
	for _, r := range results {
		status := "FAIL"
		if r.Passed {
			status = "PASS"
			passed++
		}
		if err := table.Append(r.Dataset, status,
			fmt.Sprint(r.Got.Original), fmt.Sprint(r.Got.POs), fmt.Sprint(r.Got.NonPOs),
			fmt.Sprint(r.Got.ExcludedCS), fmt.Sprint(r.Got.OffsetPairsRemoved),
			r.Duration.Round(time.Millisecond).String()); err != nil {
			log.Printf("Failed to add row for %s: %v", r.Dataset, err)
		}
	}
	if err := table.Render(); err != nil {
		log.Printf("Failed to render results: %v", err)
	}

	for _, r := range results {
		for _, issue := range r.Issues {
			fmt.Printf("  %s: %s\n", r.Dataset, issue)
		}
	}

	fmt.Printf("\n%d/%d datasets passed\n", passed, len(results))
	return passed == len(results)
}

func loadExpected(path string) (Expected, error) {
	var expected Expected
	data, err := os.ReadFile(path)
	if err != nil {
		return expected, err
	}
	if err := json.Unmarshal(data, &expected); err != nil {
		return expected, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return expected, nil
}
