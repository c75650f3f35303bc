package replay

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/okian/cadence/internal/domain/model"
)

// ErrMissingColumn is returned when a log lacks a required header.
var ErrMissingColumn = errors.New("missing column")

var requiredColumns = []string{colUser, colVerb, colMood, colTense, colPerson, colCorrect}

// Load reads an attempt log by file extension: .xlsx, .csv or .json.
// Rows that fail to parse are skipped and reported in rowErrors.
func Load(path, sheet string) (attempts []model.AttemptEvent, rowErrors []string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return loadExcel(path, sheet)
	case ".csv":
		return loadCSV(path)
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open JSON file: %w", err)
		}
		defer f.Close()
		attempts, err := ReadJSON(f)
		return attempts, nil, err
	}
	return nil, nil, fmt.Errorf("unsupported attempt log %q", path)
}

func loadExcel(path, sheet string) ([]model.AttemptEvent, []string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return ReadRows(rows)
}

func loadCSV(path string) ([]model.AttemptEvent, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("error reading CSV: %w", err)
	}
	return ReadRows(rows)
}

// ReadJSON decodes a JSON array of attempts.
func ReadJSON(r io.Reader) ([]model.AttemptEvent, error) {
	var attempts []model.AttemptEvent
	if err := json.NewDecoder(r).Decode(&attempts); err != nil {
		return nil, fmt.Errorf("failed to decode attempts: %w", err)
	}
	return attempts, nil
}

// ReadRows parses tabular rows whose first row is the header.
func ReadRows(rows [][]string) ([]model.AttemptEvent, []string, error) {
	if len(rows) == 0 {
		return nil, nil, nil
	}
	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	attempts := make([]model.AttemptEvent, 0, len(rows)-1)
	var rowErrors []string
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		a, err := parseRow(row, idx)
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("Row %d: %v", i+2, err))
			continue
		}
		attempts = append(attempts, a)
	}
	return attempts, rowErrors, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseRow(row []string, idx map[string]int) (model.AttemptEvent, error) {
	cell := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	a := model.AttemptEvent{
		ID:     cell(colID),
		UserID: cell(colUser),
		Item: model.Item{
			Verb:   cell(colVerb),
			Mood:   cell(colMood),
			Tense:  cell(colTense),
			Person: cell(colPerson),
		},
	}
	if a.UserID == "" {
		return a, errors.New("empty user_id")
	}
	if a.Item.Verb == "" {
		return a, errors.New("empty verb")
	}

	correct, err := parseBool(cell(colCorrect))
	if err != nil {
		return a, fmt.Errorf("correct: %w", err)
	}
	a.Correct = correct

	if v := cell(colResponseTimeMs); v != "" {
		if a.ResponseTimeMs, err = strconv.ParseFloat(v, 64); err != nil {
			return a, fmt.Errorf("response_time_ms: %w", err)
		}
	}
	if v := cell(colHints); v != "" {
		if a.HintsUsed, err = strconv.Atoi(v); err != nil {
			return a, fmt.Errorf("hints_used: %w", err)
		}
	}
	if v := cell(colTimestamp); v != "" {
		if a.Timestamp, err = time.Parse(time.RFC3339, v); err != nil {
			return a, fmt.Errorf("timestamp: %w", err)
		}
	}
	if v := cell(colConfidence); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return a, fmt.Errorf("confidence: %w", err)
		}
		a.SelfReportedConfidence = &c
	}
	if v := cell(colErrorTypes); v != "" {
		a.ErrorTypes = strings.Split(v, ";")
	}
	return a, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return strconv.ParseBool(s)
}

// SortChronological orders attempts by timestamp, keeping the log order of
// equal timestamps.
func SortChronological(attempts []model.AttemptEvent) {
	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].Timestamp.Before(attempts[j].Timestamp)
	})
}

// WriteXLSX writes attempts as a spreadsheet Load can read back.
func WriteXLSX(path, sheet string, attempts []model.AttemptEvent) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := excelize.NewFile()
	defer f.Close()

	if sheet != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, sheet); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, a := range attempts {
		conf := ""
		if a.SelfReportedConfidence != nil {
			conf = strconv.FormatFloat(*a.SelfReportedConfidence, 'f', -1, 64)
		}
		ts := ""
		if !a.Timestamp.IsZero() {
			ts = a.Timestamp.UTC().Format(time.RFC3339)
		}
		row := []interface{}{
			a.ID, a.UserID, a.Item.Verb, a.Item.Mood, a.Item.Tense, a.Item.Person,
			strconv.FormatBool(a.Correct),
			strconv.FormatFloat(a.ResponseTimeMs, 'f', -1, 64),
			strconv.Itoa(a.HintsUsed),
			ts, conf, strings.Join(a.ErrorTypes, ";"),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), directoryPermission); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return f.SaveAs(path)
}
