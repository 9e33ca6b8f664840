package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
)

// Formatter interface for formatting output
type Formatter interface {
	Format(data any) (string, error)
}

// JSONFormatter implements the Formatter interface for JSON output
type JSONFormatter struct {
	Indent bool
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Format formats data as JSON
func (f *JSONFormatter) Format(data any) (string, error) {
	var (
		out []byte
		err error
	)
	if f.Indent {
		out, err = json.MarshalIndent(data, "", "  ")
	} else {
		out, err = json.Marshal(data)
	}
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Row is one line of a table.
type Row []string

// Tabular is implemented by values that render as a table.
type Tabular interface {
	Header() Row
	Rows() []Row
}

// TableFormatter renders Tabular values as aligned columns.
type TableFormatter struct{}

func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

func (f *TableFormatter) Format(data any) (string, error) {
	t, ok := data.(Tabular)
	if !ok {
		return "", fmt.Errorf("cannot render %T as a table", data)
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.Header(), "\t"))
	for _, r := range t.Rows() {
		fmt.Fprintln(w, strings.Join(r, "\t"))
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// New picks the JSON formatter when asJSON is set, the table formatter otherwise.
func New(asJSON bool) Formatter {
	if asJSON {
		return &JSONFormatter{Indent: true}
	}
	return NewTableFormatter()
}
