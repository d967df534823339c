package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spec-kit/ticket-importer/internal/domain"
)

// Input and output column names.
const (
	ColumnTicketName    = "ticket_name"
	ColumnTicketContent = "ticket_content"
	ColumnTaskContent   = "task_content"
	ColumnUserActors    = "user_actors"
	ColumnGroupActors   = "group_actors"
	ColumnStatus        = "status"

	TicketFieldPrefix = "ticket."
	TaskFieldPrefix   = "task."
)

// Separator is the cell delimiter of input and output files.
const Separator = ';'

var requiredColumns = []string{ColumnTicketName, ColumnTicketContent, ColumnTaskContent}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParsedRow is a data row and, when the row itself is invalid, the reason.
// An invalid row is still carried to the output so row counts are preserved.
type ParsedRow struct {
	Record domain.TicketRecord
	Err    error
}

// Table is a fully parsed input file.
type Table struct {
	Header []string
	Rows   []ParsedRow
}

// ReadFile opens path and parses it with ReadRecords.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	defer f.Close()

	table, err := ReadRecords(f)
	if err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) && inputErr.Path == "" {
			inputErr.Path = path
		}
		return nil, err
	}
	return table, nil
}

// ReadRecords parses a ';' separated file. Structural problems (no header,
// missing required columns, broken quoting) fail the whole file; a row with
// an empty required cell or a non-numeric status only fails that row.
func ReadRecords(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.Comma = Separator
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &InputError{Err: errors.New("empty file")}
	}
	if err != nil {
		return nil, &InputError{Line: 1, Err: err}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	index, err := indexColumns(header)
	if err != nil {
		return nil, &InputError{Line: 1, Err: err}
	}

	table := &Table{Header: header}
	for row := 1; ; row++ {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &InputError{Err: err}
		}
		if len(cells) > len(header) {
			line, _ := reader.FieldPos(0)
			return nil, &InputError{Line: line, Err: fmt.Errorf("%d cells for %d columns", len(cells), len(header))}
		}
		for len(cells) < len(header) {
			cells = append(cells, "")
		}
		table.Rows = append(table.Rows, buildRow(row, header, index, cells))
	}
	return table, nil
}

func indexColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if name == "" {
			return nil, fmt.Errorf("column %d has no name", i+1)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		index[name] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func buildRow(row int, header []string, index map[string]int, cells []string) ParsedRow {
	cell := func(name string) string {
		if i, ok := index[name]; ok {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}

	rec := domain.TicketRecord{
		Row:         row,
		Name:        cell(ColumnTicketName),
		Content:     cell(ColumnTicketContent),
		TaskContent: cell(ColumnTaskContent),
		UserActors:  cell(ColumnUserActors),
		GroupActors: cell(ColumnGroupActors),
		Cells:       cells,
	}
	for i, name := range header {
		value := strings.TrimSpace(cells[i])
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(name, TicketFieldPrefix) && len(name) > len(TicketFieldPrefix):
			rec.TicketFields = append(rec.TicketFields, domain.ParseField(strings.TrimPrefix(name, TicketFieldPrefix), value))
		case strings.HasPrefix(name, TaskFieldPrefix) && len(name) > len(TaskFieldPrefix):
			rec.TaskFields = append(rec.TaskFields, domain.ParseField(strings.TrimPrefix(name, TaskFieldPrefix), value))
		}
	}

	for _, name := range requiredColumns {
		if cell(name) == "" {
			return ParsedRow{Record: rec, Err: &RowError{Column: name, Reason: "value is required"}}
		}
	}
	if raw := cell(ColumnStatus); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil || status <= 0 {
			return ParsedRow{Record: rec, Err: &RowError{Column: ColumnStatus, Reason: fmt.Sprintf("invalid status %q", raw)}}
		}
		rec.Status = &status
	}
	return ParsedRow{Record: rec}
}
