package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Output formats accepted by NewFormatter.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// DefaultMaxColumnWidth bounds table cells; longer values are truncated.
const DefaultMaxColumnWidth = 48

var headerStyle = lipgloss.NewStyle().Bold(true)

// Formatter handles output formatting
type Formatter struct {
	writer   io.Writer
	format   string
	maxWidth int
}

// NewFormatter creates a new formatter. An unknown format is an error.
func NewFormatter(writer io.Writer, format string) (*Formatter, error) {
	switch format {
	case "", FormatTable:
		format = FormatTable
	case FormatJSON:
	default:
		return nil, fmt.Errorf("unknown output format %q (want %q or %q)", format, FormatTable, FormatJSON)
	}
	return &Formatter{
		writer:   writer,
		format:   format,
		maxWidth: DefaultMaxColumnWidth,
	}, nil
}

// FormatDefinitions writes job definitions
func (f *Formatter) FormatDefinitions(defs []DefinitionDTO) error {
	if f.format == FormatJSON {
		return f.FormatJSON(defs)
	}
	rows := make([][]string, 0, len(defs))
	for _, d := range defs {
		params := d.Parameters
		if params == "" {
			params = "-"
		}
		rows = append(rows, []string{d.ID, d.Name, params, joinOrDash(d.Labels)})
	}
	return f.table([]string{"ID", "NAME", "PARAMETERS", "LABELS"}, rows)
}

// FormatInstances writes job instances
func (f *Formatter) FormatInstances(instances []InstanceDTO) error {
	if f.format == FormatJSON {
		return f.FormatJSON(instances)
	}
	rows := make([][]string, 0, len(instances))
	for _, i := range instances {
		input := i.InputQueue
		if input == "" {
			input = "-"
		}
		group := i.Group
		if group == "" {
			group = "-"
		}
		rows = append(rows, []string{
			i.ID, i.DefinitionID, group, i.Mode, strconv.Itoa(i.Replicas), input, joinOrDash(i.OutputQueues),
		})
	}
	return f.table([]string{"ID", "DEFINITION", "GROUP", "MODE", "REPLICAS", "INPUT", "OUTPUTS"}, rows)
}

// FormatObjects writes registry entries
func (f *Formatter) FormatObjects(objects []ObjectDTO) error {
	if f.format == FormatJSON {
		return f.FormatJSON(objects)
	}
	rows := make([][]string, 0, len(objects))
	for _, o := range objects {
		value := o.Value
		if value == "" {
			value = "-"
		}
		rows = append(rows, []string{o.Path, o.Type, value})
	}
	return f.table([]string{"PATH", "TYPE", "VALUE"}, rows)
}

// FormatJSON writes v as indented JSON
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// table writes left-aligned columns separated by two spaces. Widths are
// measured in terminal cells so wide runes line up.
func (f *Formatter) table(headers []string, rows [][]string) error {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for r, row := range rows {
		for i, cell := range row {
			cell = runewidth.Truncate(cell, f.maxWidth, "…")
			rows[r][i] = cell
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(headerStyle.Render(pad(h, widths[i], i == len(headers)-1)))
		if i < len(headers)-1 {
			b.WriteString("  ")
		}
	}
	b.WriteByte('\n')
	for _, row := range rows {
		for i, cell := range row {
			b.WriteString(pad(cell, widths[i], i == len(row)-1))
			if i < len(row)-1 {
				b.WriteString("  ")
			}
		}
		b.WriteByte('\n')
	}

	_, err := io.WriteString(f.writer, b.String())
	return err
}

func pad(s string, width int, last bool) string {
	if last {
		return s
	}
	return runewidth.FillRight(s, width)
}
