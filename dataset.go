package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// ErrMissingColumn is returned when the dataset header lacks a required column
var ErrMissingColumn = errors.New("dataset is missing a required column")

var requiredColumns = []string{ColumnURL, ColumnRawURL, ColumnApplicationName}

// Dataset is the parsed input CSV
type Dataset struct {
	Columns []string
	Records []URLRecord
}

// ReadDataset loads the input CSV. A header row is required.
func ReadDataset(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading dataset header: %w", err)
	}
	header = trimBOM(header)

	for _, column := range requiredColumns {
		if !slices.Contains(header, column) {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, column)
		}
	}

	dataset := &Dataset{Columns: header}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading dataset row: %w", err)
		}
		dataset.Records = append(dataset.Records, newURLRecord(header, row))
	}

	return dataset, nil
}

func newURLRecord(header, row []string) URLRecord {
	fields := make(map[string]string, len(header))
	for i, column := range header {
		if i < len(row) {
			fields[column] = row[i]
		} else {
			fields[column] = ""
		}
	}
	return URLRecord{
		URL:             fields[ColumnURL],
		RawURL:          fields[ColumnRawURL],
		ApplicationName: fields[ColumnApplicationName],
		Fields:          fields,
	}
}

func trimBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header
}

// LoadProcessed returns the URLs already present in the result log. A
// missing log means nothing has been processed yet.
func LoadProcessed(path string) (map[string]struct{}, error) {
	processed := make(map[string]struct{})

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return processed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening result log: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return processed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading result log header: %w", err)
	}

	urlIndex := slices.Index(trimBOM(header), ColumnURL)
	if urlIndex == -1 {
		return nil, fmt.Errorf("result log %s has no %s column", path, ColumnURL)
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading result log row: %w", err)
		}
		if urlIndex < len(row) {
			processed[row[urlIndex]] = struct{}{}
		}
	}

	return processed, nil
}

// Filter selects which dataset rows are labeled
type Filter struct {
	// Applications restricts rows to these application names when non-empty
	Applications []string
	// URLContains must appear in the url when Applications is set
	URLContains string
	// RequireRawURL drops rows with a blank raw_url
	RequireRawURL bool
}

// PendingRecords applies the filter and drops processed URLs, keeping the
// original relative order
func PendingRecords(records []URLRecord, processed map[string]struct{}, filter Filter) []URLRecord {
	pending := make([]URLRecord, 0, len(records))
	for _, rec := range records {
		if len(filter.Applications) > 0 {
			if !slices.Contains(filter.Applications, rec.ApplicationName) ||
				!strings.Contains(rec.URL, filter.URLContains) {
				continue
			}
		}
		if filter.RequireRawURL && strings.TrimSpace(rec.RawURL) == "" {
			continue
		}
		if _, done := processed[rec.URL]; done {
			continue
		}
		pending = append(pending, rec)
	}
	return pending
}

// ResultLog appends result records to a CSV file. The file is opened and
// closed on every append; one writer per file is assumed.
type ResultLog struct {
	path    string
	columns []string
	dropped []string
}

// OpenResultLog prepares the log for appending. An existing non-empty log
// keeps its header; otherwise the file is created with the dataset columns
// plus the result columns.
func OpenResultLog(path string, datasetColumns []string) (*ResultLog, error) {
	columns, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	if columns != nil {
		return &ResultLog{path: path, columns: columns, dropped: missingColumns(datasetColumns, columns)}, nil
	}

	columns = make([]string, 0, len(datasetColumns)+len(resultColumns))
	for _, column := range datasetColumns {
		if !slices.Contains(resultColumns, column) {
			columns = append(columns, column)
		}
	}
	columns = append(columns, resultColumns...)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating result log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(columns); err != nil {
		return nil, fmt.Errorf("writing result log header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("writing result log header: %w", err)
	}

	return &ResultLog{path: path, columns: columns}, nil
}

// readHeader returns nil columns when the file is missing or empty
func readHeader(path string) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening result log: %w", err)
	}
	defer file.Close()

	header, err := csv.NewReader(file).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading result log header: %w", err)
	}
	return trimBOM(header), nil
}

// Columns returns the header order used for appended rows
func (l *ResultLog) Columns() []string {
	return l.columns
}

// Dropped returns the dataset columns missing from an existing log's header.
// Their values are not written.
func (l *ResultLog) Dropped() []string {
	return l.dropped
}

func missingColumns(datasetColumns, header []string) []string {
	var missing []string
	for _, column := range datasetColumns {
		if !slices.Contains(header, column) {
			missing = append(missing, column)
		}
	}
	return missing
}

// Append writes one result record
func (l *ResultLog) Append(rec ResultRecord) error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening result log for append: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(rec.Row(l.columns)); err != nil {
		file.Close()
		return fmt.Errorf("writing result row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return fmt.Errorf("writing result row: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("closing result log: %w", err)
	}
	return nil
}
