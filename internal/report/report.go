// Package report renders lists of contacts for people: aligned text,
// Markdown and HTML tables, YAML, and spreadsheets.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/w9en/qsolog/internal/qso"
)

// Format selects a rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatYAML     Format = "yaml"
	FormatXLSX     Format = "xlsx"
)

// ParseFormat accepts a format name, case-insensitively. "md" is an alias
// for markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatMarkdown, FormatHTML, FormatYAML, FormatXLSX:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Columns are the headings of the recent-contacts view.
var Columns = []string{"QSO", "Call", "Name", "Date", "Time", "Band", "Freq", "Mode", "Report", "Grid", "State", "Country"}

func row(r *qso.Record) []string {
	return []string{
		strconv.FormatInt(r.ID, 10), r.Callsign, r.Name, r.Date, r.Time, r.Band,
		r.Freq, r.Mode, r.Report, r.Grid, r.State, r.Country,
	}
}

// Render writes records to w in format f.
func Render(w io.Writer, f Format, records []*qso.Record) error {
	switch f {
	case FormatText:
		return Text(w, records)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(records))
		return err
	case FormatHTML:
		return HTML(w, records)
	case FormatYAML:
		return YAML(w, records)
	case FormatXLSX:
		return XLSX(w, records)
	}
	return fmt.Errorf("unknown report format %q", f)
}

// Text writes an aligned plain-text table.
func Text(w io.Writer, records []*qso.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(Columns, "\t"))
	for _, r := range records {
		fmt.Fprintln(tw, strings.Join(row(r), "\t"))
	}
	return tw.Flush()
}

// Markdown returns a GitHub-flavoured Markdown table.
func Markdown(records []*qso.Record) string {
	var b strings.Builder
	writeMarkdownRow(&b, Columns)
	seps := make([]string, len(Columns))
	for i := range seps {
		seps[i] = "---"
	}
	writeMarkdownRow(&b, seps)
	for _, r := range records {
		writeMarkdownRow(&b, row(r))
	}
	return b.String()
}

func writeMarkdownRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(escapeCell(c))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", " ")

func escapeCell(s string) string {
	return cellEscaper.Replace(s)
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML writes the Markdown table converted to an HTML fragment.
func HTML(w io.Writer, records []*qso.Record) error {
	return markdown.Convert([]byte(Markdown(records)), w)
}

// MarkdownToHTML converts arbitrary Markdown, such as a contact's remarks,
// to an HTML fragment. Raw HTML in the input is not passed through.
func MarkdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// YAML writes records as a YAML sequence keyed by lower-cased column name.
func YAML(w io.Writer, records []*qso.Record) error {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		m := map[string]any{"id": r.ID}
		for i, name := range Columns[1:] {
			if v := row(r)[i+1]; v != "" {
				m[strings.ToLower(name)] = v
			}
		}
		out = append(out, m)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

const sheetName = "Logbook"

// XLSX writes a spreadsheet with one row per contact.
func XLSX(w io.Writer, records []*qso.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Columns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		cells := row(r)
		values := make([]any, len(cells))
		values[0] = r.ID
		for j := 1; j < len(cells); j++ {
			values[j] = cells[j]
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write spreadsheet: %w", err)
	}
	return nil
}
