package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// readCSV reads a delimited file with a header row into rows keyed by column name
func readCSV(r io.Reader, delimiter rune) ([]models.Row, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("file has no header row")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows []models.Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		row := make(models.Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readCSVFile(path string, delimiter rune) ([]models.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSV(f, delimiter)
}

// rowSource loads rows from a file when one is given, otherwise from the record store
type rowSource struct {
	app       *app
	delimiter rune
}

func (s rowSource) load(ctx context.Context, dataset, file string) ([]models.Row, error) {
	if file != "" {
		return readCSVFile(file, s.delimiter)
	}
	if dataset == "" {
		return nil, fmt.Errorf("either a dataset or a file is required")
	}
	store, err := s.app.rowStore()
	if err != nil {
		return nil, err
	}
	return store.List(ctx, dataset)
}

func parseDelimiter(value string) (rune, error) {
	switch value {
	case "", ",":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	}
	runes := []rune(value)
	if len(runes) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", value)
	}
	return runes[0], nil
}
