// Package export stores extracted rows as temp files during a run and
// consolidates them into the final document when the agent finalizes.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Format of the consolidated output document.
type Format string

const (
	FormatExcel Format = "xlsx"
	FormatText  Format = "txt"
)

var excelKeywords = []string{
	"excel", "xlsx", "spreadsheet", "table", "tabla", "hoja de cálculo",
}

var textKeywords = []string{
	"txt", "text file", "report", "plain text", "informe", "resumen",
}

// DetectFormat picks the output format from the goal text. Excel wins when
// both families of keywords appear; text requires an explicit request.
func DetectFormat(goal string) Format {
	g := strings.ToLower(goal)
	for _, kw := range excelKeywords {
		if strings.Contains(g, kw) {
			return FormatExcel
		}
	}
	for _, kw := range textKeywords {
		if strings.Contains(g, kw) {
			return FormatText
		}
	}
	return FormatExcel
}

// Store accumulates extracted rows in per-batch temp files under the run's
// directory. Batches survive process hiccups between extraction and
// consolidation.
type Store struct {
	runID     string
	tempDir   string
	outputDir string
	batch     int
	logger    zerolog.Logger
}

func NewStore(outputDir string, logger zerolog.Logger) (*Store, error) {
	runID := uuid.NewString()
	tempDir := filepath.Join(os.TempDir(), "web-agent", runID)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Store{
		runID:     runID,
		tempDir:   tempDir,
		outputDir: outputDir,
		logger:    logger.With().Str("component", "export").Str("run_id", runID).Logger(),
	}, nil
}

func (s *Store) RunID() string { return s.runID }

// AppendRows writes one batch of rows as a JSON temp file.
func (s *Store) AppendRows(ctx context.Context, rows []map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	s.batch++
	path := filepath.Join(s.tempDir, fmt.Sprintf("batch_%04d.json", s.batch))
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	s.logger.Info().Int("rows", len(rows)).Str("file", path).Msg("extraction batch stored")
	return nil
}

// Consolidate merges every stored batch into one document in the output
// directory and removes the temp files. Returns the document path.
func (s *Store) Consolidate(ctx context.Context, goal string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rows, err := s.readBatches()
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("nothing extracted in run %s", s.runID)
	}

	stamp := time.Now().Format("20060102_150405")
	var path string
	switch DetectFormat(goal) {
	case FormatText:
		path = filepath.Join(s.outputDir, fmt.Sprintf("extraction_%s.txt", stamp))
		err = writeTextReport(path, goal, rows)
	default:
		path = filepath.Join(s.outputDir, fmt.Sprintf("extraction_%s.xlsx", stamp))
		err = writeWorkbook(path, rows)
	}
	if err != nil {
		return "", err
	}
	if rmErr := os.RemoveAll(s.tempDir); rmErr != nil {
		s.logger.Warn().Err(rmErr).Msg("temp dir cleanup failed")
	}
	s.logger.Info().Int("rows", len(rows)).Str("file", path).Msg("output consolidated")
	return path, nil
}

func (s *Store) readBatches() ([]map[string]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.tempDir, "batch_*.json"))
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	sort.Strings(matches)

	var rows []map[string]string
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable batch")
			continue
		}
		var batch []map[string]string
		if err := json.Unmarshal(data, &batch); err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("skipping corrupt batch")
			continue
		}
		rows = append(rows, batch...)
	}
	return rows, nil
}

// columns returns the union of row keys in a stable order, common columns
// first.
func columns(rows []map[string]string) []string {
	preferred := []string{"title", "text", "link", "url"}
	seen := make(map[string]bool)
	var cols []string
	for _, p := range preferred {
		for _, r := range rows {
			if _, ok := r[p]; ok {
				cols = append(cols, p)
				seen[p] = true
				break
			}
		}
	}
	var extra []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

func writeWorkbook(path string, rows []map[string]string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Extracted"
	f.SetSheetName("Sheet1", sheet)

	cols := columns(rows)
	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, headerLabel(col)); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for r, row := range rows {
		for c, col := range cols {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, row[col]); err != nil {
				return fmt.Errorf("write cell: %w", err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func headerLabel(col string) string {
	if col == "" {
		return col
	}
	return strings.ToUpper(col[:1]) + col[1:]
}

func writeTextReport(path, goal string, rows []map[string]string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Extraction report\nGoal: %s\nRows: %d\nGenerated: %s\n\n",
		goal, len(rows), time.Now().Format(time.RFC3339))
	cols := columns(rows)
	for i, row := range rows {
		fmt.Fprintf(&b, "--- %d ---\n", i+1)
		for _, col := range cols {
			if v := row[col]; v != "" {
				fmt.Fprintf(&b, "%s: %s\n", col, v)
			}
		}
		b.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
