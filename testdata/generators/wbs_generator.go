package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Header of a WBS-AUC line item export
var header = []string{
	"Purch.Doc.", "DocTyp", "WBS Element", "Purchase order text",
	"Offset. acct name", "ValCOArCur", "Posting Date",
}

var (
	docTypes  = []string{"KR", "SA", "WE", "RE", "AB"}
	texts     = []string{"Steel beams", "Consulting", "Cement", "Freight", "Cabling", "Scaffolding", "Survey"}
	offsets   = []string{"Acme Steel", "Smith & Co", "BuildMat", "Carrier Ltd", "AuC Settlement", "Grid Works"}
	badValues = []string{"abc", "", "n/a", "12,50", "--5", "125.00-"}
)

// Expected holds the summary a correct run must produce for a dataset
type Expected struct {
	Original           int `json:"original"`
	POs                int `json:"pos"`
	NonPOs             int `json:"non_pos"`
	ExcludedCS         int `json:"excluded_cs"`
	OffsetPairsRemoved int `json:"offset_pairs_removed"`
}

// ScenarioGenerator creates WBS-AUC datasets whose summary is known by
// construction
type ScenarioGenerator struct {
	Seed      int64
	OutputDir string
	Format    string

	rng  *rand.Rand
	rows [][]string
	exp  Expected
	wbs  int
	date time.Time
}

func main() {
	var (
		outputDir = flag.String("output-dir", "generated", "Output directory for generated files")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
		scenario  = flag.String("scenario", "all", "Scenario to generate: all, basic, offsets, cs, anomalies, performance")
		format    = flag.String("format", "both", "File format: csv, xlsx, both")
		rows      = flag.Int("rows", 50000, "Approximate row count of the performance scenario")
	)
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	generator := &ScenarioGenerator{
		Seed:      *seed,
		OutputDir: *outputDir,
		Format:    *format,
	}

	scenarios := map[string]func(){
		"basic":       generator.GenerateBasicScenario,
		"offsets":     generator.GenerateOffsetScenario,
		"cs":          generator.GenerateExclusionScenario,
		"anomalies":   generator.GenerateAnomalyScenario,
		"performance": func() { generator.GeneratePerformanceScenario(*rows) },
	}

	if *scenario == "all" {
		for _, name := range []string{"basic", "offsets", "cs", "anomalies", "performance"} {
			scenarios[name]()
		}
	} else if fn, ok := scenarios[*scenario]; ok {
		fn()
	} else {
		log.Fatalf("Unknown scenario: %s", *scenario)
	}

	fmt.Printf("Generated scenarios in %s\n", *outputDir)
	fmt.Printf("Seed used: %d\n", *seed)
}

// GenerateBasicScenario mixes every row kind in small numbers
func (sg *ScenarioGenerator) GenerateBasicScenario() {
	fmt.Println("Generating basic scenario...")
	sg.reset()

	sg.addUnique(20, true)
	sg.addUnique(20, false)
	sg.addOffsetGroup(1, 1, true)
	sg.addOffsetGroup(2, 1, false)
	sg.addOffsetGroup(1, 3, true)
	sg.addExcluded(5)

	sg.write("basic")
}

// GenerateOffsetScenario stresses the pairwise cancellation with uneven
// groups and repeated amounts across different keys
func (sg *ScenarioGenerator) GenerateOffsetScenario() {
	fmt.Println("Generating offset scenario...")
	sg.reset()

	for i := 0; i < 40; i++ {
		sg.addOffsetGroup(sg.rng.Intn(5), sg.rng.Intn(5), sg.rng.Intn(2) == 0)
	}
	// Same amount on different WBS elements never cancels
	for i := 0; i < 10; i++ {
		sg.addOffsetGroup(1, 0, true)
		sg.addOffsetGroup(0, 1, true)
	}
	sg.shuffle()

	sg.write("offsets")
}

// GenerateExclusionScenario places excluded rows next to rows they would
// otherwise cancel
func (sg *ScenarioGenerator) GenerateExclusionScenario() {
	fmt.Println("Generating CS exclusion scenario...")
	sg.reset()

	for i := 0; i < 15; i++ {
		wbs, text, offset := sg.nextKey()
		amount := sg.amount()
		po := i%2 == 0

		sg.addRow(po, "CS", wbs, text, offset, amount.Neg().StringFixed(2))
		sg.exp.ExcludedCS++
		sg.addRow(po, sg.docType(), wbs, text, offset, amount.StringFixed(2))
		sg.countCleaned(po, 1)
	}
	// Doc types are matched after trimming only
	for i := 0; i < 5; i++ {
		wbs, text, offset := sg.nextKey()
		sg.addRow(false, "cs", wbs, text, offset, sg.amount().StringFixed(2))
		sg.countCleaned(false, 1)
	}

	sg.write("cs_exclusion")
}

// GenerateAnomalyScenario covers amounts that never cancel and blank key
// components
func (sg *ScenarioGenerator) GenerateAnomalyScenario() {
	fmt.Println("Generating anomaly scenario...")
	sg.reset()

	// Unparseable amounts stay in the output
	for i := 0; i < len(badValues)*2; i++ {
		wbs, text, offset := sg.nextKey()
		po := i%3 == 0
		sg.addRow(po, sg.docType(), wbs, text, offset, badValues[i%len(badValues)])
		sg.countCleaned(po, 1)
	}

	// Zero amounts have no sign
	for i := 0; i < 6; i++ {
		wbs, text, offset := sg.nextKey()
		sg.addRow(false, sg.docType(), wbs, text, offset, "0.00")
		sg.addRow(false, sg.docType(), wbs, text, offset, "-0.00")
		sg.countCleaned(false, 2)
	}

	// Padded amounts and blank text still pair
	for i := 0; i < 6; i++ {
		wbs, _, offset := sg.nextKey()
		amount := sg.amount()
		sg.addRow(true, sg.docType(), wbs, "", offset, " "+amount.StringFixed(2)+" ")
		sg.addRow(true, sg.docType(), wbs, "", offset, amount.Neg().StringFixed(2))
		sg.exp.OffsetPairsRemoved++
	}

	// Padded text is a different key part, so these never pair
	for i := 0; i < 4; i++ {
		wbs, text, offset := sg.nextKey()
		amount := sg.amount()
		sg.addRow(false, sg.docType(), wbs, text, offset, amount.StringFixed(2))
		sg.addRow(false, sg.docType(), wbs+" ", text, offset, amount.Neg().StringFixed(2))
		sg.countCleaned(false, 2)
	}

	// Scale differences do not matter for the key
	for i := 0; i < 4; i++ {
		wbs, text, offset := sg.nextKey()
		amount := sg.amount()
		sg.addRow(false, sg.docType(), wbs, text, offset, amount.StringFixed(2))
		sg.addRow(false, sg.docType(), wbs, text, offset, amount.Neg().StringFixed(4))
		sg.exp.OffsetPairsRemoved++
	}

	sg.write("anomalies")
}

// GeneratePerformanceScenario creates a large dataset for timing runs
func (sg *ScenarioGenerator) GeneratePerformanceScenario(rows int) {
	fmt.Printf("Generating performance scenario with about %d rows...\n", rows)
	sg.reset()

	for len(sg.rows) < rows {
		switch sg.rng.Intn(4) {
		case 0:
			sg.addOffsetGroup(1+sg.rng.Intn(3), 1+sg.rng.Intn(3), sg.rng.Intn(2) == 0)
		case 1:
			sg.addExcluded(1)
		default:
			sg.addUnique(1, sg.rng.Intn(2) == 0)
		}
	}
	sg.shuffle()

	sg.write("performance")
}

func (sg *ScenarioGenerator) reset() {
	sg.rng = rand.New(rand.NewSource(sg.Seed))
	sg.rows = nil
	sg.exp = Expected{}
	sg.date = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (sg *ScenarioGenerator) addUnique(n int, po bool) {
	for i := 0; i < n; i++ {
		wbs, text, offset := sg.nextKey()
		amount := sg.amount()
		if sg.rng.Intn(2) == 0 {
			amount = amount.Neg()
		}
		sg.addRow(po, sg.docType(), wbs, text, offset, amount.StringFixed(2))
		sg.countCleaned(po, 1)
	}
}

// addOffsetGroup adds positives and negatives sharing one offset key
func (sg *ScenarioGenerator) addOffsetGroup(positives, negatives int, po bool) {
	wbs, text, offset := sg.nextKey()
	amount := sg.amount()

	for i := 0; i < positives; i++ {
		sg.addRow(po, sg.docType(), wbs, text, offset, amount.StringFixed(2))
	}
	for i := 0; i < negatives; i++ {
		sg.addRow(po, sg.docType(), wbs, text, offset, amount.Neg().StringFixed(2))
	}

	pairs := positives
	if negatives < pairs {
		pairs = negatives
	}
	sg.exp.OffsetPairsRemoved += pairs
	sg.countCleaned(po, positives+negatives-2*pairs)
}

func (sg *ScenarioGenerator) addExcluded(n int) {
	for i := 0; i < n; i++ {
		wbs, text, offset := sg.nextKey()
		sg.addRow(sg.rng.Intn(2) == 0, "CS", wbs, text, offset, sg.amount().Neg().StringFixed(2))
		sg.exp.ExcludedCS++
	}
}

func (sg *ScenarioGenerator) addRow(po bool, docType, wbs, text, offset, amount string) {
	purchaseDoc := ""
	if po {
		purchaseDoc = fmt.Sprintf("45%08d", sg.rng.Intn(100000000))
	}
	sg.date = sg.date.Add(time.Duration(sg.rng.Intn(36)) * time.Hour)
	sg.rows = append(sg.rows, []string{
		purchaseDoc, docType, wbs, text, offset, amount, sg.date.Format("02.01.2006"),
	})
	sg.exp.Original++
}

func (sg *ScenarioGenerator) countCleaned(po bool, n int) {
	if po {
		sg.exp.POs += n
	} else {
		sg.exp.NonPOs += n
	}
}

// nextKey returns key components no other group uses
func (sg *ScenarioGenerator) nextKey() (string, string, string) {
	sg.wbs++
	wbs := fmt.Sprintf("P-%04d-%02d", sg.wbs/100, sg.wbs%100)
	return wbs, texts[sg.rng.Intn(len(texts))], offsets[sg.rng.Intn(len(offsets))]
}

func (sg *ScenarioGenerator) amount() decimal.Decimal {
	return decimal.New(int64(100+sg.rng.Intn(5000000)), -2)
}

func (sg *ScenarioGenerator) docType() string {
	return docTypes[sg.rng.Intn(len(docTypes))]
}

func (sg *ScenarioGenerator) shuffle() {
	sg.rng.Shuffle(len(sg.rows), func(i, j int) {
		sg.rows[i], sg.rows[j] = sg.rows[j], sg.rows[i]
	})
}

func (sg *ScenarioGenerator) write(name string) {
	if sg.Format == "csv" || sg.Format == "both" {
		if err := sg.writeCSV(name + ".csv"); err != nil {
			log.Fatalf("Failed to write %s.csv: %v", name, err)
		}
	}
	if sg.Format == "xlsx" || sg.Format == "both" {
		if err := sg.writeXLSX(name + ".xlsx"); err != nil {
			log.Fatalf("Failed to write %s.xlsx: %v", name, err)
		}
	}
	if err := sg.writeExpected(name + "_expected.json"); err != nil {
		log.Fatalf("Failed to write expectations for %s: %v", name, err)
	}

	fmt.Printf("  %s: %d rows, %d pairs, %d excluded\n",
		name, sg.exp.Original, sg.exp.OffsetPairsRemoved, sg.exp.ExcludedCS)
}

func (sg *ScenarioGenerator) writeCSV(filename string) error {
	file, err := os.Create(filepath.Join(sg.OutputDir, filename))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(sg.rows); err != nil {
		return err
	}
	return writer.Error()
}

func (sg *ScenarioGenerator) writeXLSX(filename string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range sg.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, value := range row {
			values[j] = value
		}
		// Amounts go in as numbers, like a real export
		if amount, err := decimal.NewFromString(strings.TrimSpace(row[5])); err == nil {
			values[5] = amount.InexactFloat64()
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	return f.SaveAs(filepath.Join(sg.OutputDir, filename))
}

func (sg *ScenarioGenerator) writeExpected(filename string) error {
	data, err := json.MarshalIndent(sg.exp, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(sg.OutputDir, filename), data, 0644)
}
