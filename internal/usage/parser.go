package usage

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"

	"github.com/jgoulah/gasforecast/pkg/models"
)

// ParseError means a payload could not be converted into samples after all
// fallback strategies. Columns carries the header names actually seen so a
// renamed upstream column is diagnosable from the error alone.
type ParseError struct {
	Message string
	Columns []string
}

func (e *ParseError) Error() string {
	if len(e.Columns) > 0 {
		return fmt.Sprintf("%s (columns found: %s)", e.Message, strings.Join(e.Columns, ", "))
	}
	return e.Message
}

// File signatures used for format sniffing.
var (
	xlsxSignature = []byte{0x50, 0x4B, 0x03, 0x04}                         // ZIP container
	xlsSignature  = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1} // OLE2 compound file
)

// Parse converts a verified raw download into daily usage samples, ordered by
// date. The portal has served three formats for the same file over time: a
// contemporary xlsx workbook, the legacy binary xls workbook, and an HTML
// table mislabeled as a spreadsheet. All three are tried before giving up.
func Parse(content []byte) ([]models.UsageSample, error) {
	// Downloads intermittently carry leading blank bytes that defeat
	// signature sniffing.
	content = bytes.TrimSpace(content)
	if len(content) == 0 {
		return nil, &ParseError{Message: "empty payload"}
	}

	var header []string
	var rows [][]string
	var err error

	switch {
	case bytes.HasPrefix(content, xlsxSignature):
		header, rows, err = readXLSX(content)
	case bytes.HasPrefix(content, xlsSignature):
		header, rows, err = readXLS(content)
	default:
		header, rows, err = readHTMLTable(content)
	}
	if err != nil {
		return nil, err
	}

	return buildSamples(header, rows)
}

// readXLSX reads the first sheet of a contemporary workbook.
func readXLSX(content []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, nil, &ParseError{Message: fmt.Sprintf("opening xlsx workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, &ParseError{Message: "xlsx workbook has no sheets"}
	}

	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, &ParseError{Message: fmt.Sprintf("reading xlsx rows: %v", err)}
	}
	if len(all) < 2 {
		return nil, nil, &ParseError{Message: "xlsx sheet has no data rows"}
	}

	return all[0], all[1:], nil
}

// readXLS reads the first sheet of a legacy BIFF workbook.
func readXLS(content []byte) ([]string, [][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(content), "utf-8")
	if err != nil {
		return nil, nil, &ParseError{Message: fmt.Sprintf("opening xls workbook: %v", err)}
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, nil, &ParseError{Message: "xls workbook has no sheets"}
	}
	if sheet.MaxRow < 1 {
		return nil, nil, &ParseError{Message: "xls sheet has no data rows"}
	}

	readRow := func(idx int) []string {
		row := sheet.Row(idx)
		if row == nil {
			return nil
		}
		cells := make([]string, 0, row.LastCol()+1)
		for col := 0; col <= row.LastCol(); col++ {
			cells = append(cells, row.Col(col))
		}
		return cells
	}

	header := readRow(0)
	var rows [][]string
	for i := 1; i <= int(sheet.MaxRow); i++ {
		if row := readRow(i); row != nil {
			rows = append(rows, row)
		}
	}

	return header, rows, nil
}

// readHTMLTable parses the first table in an HTML document, the fallback for
// downloads that are real data wrapped in markup.
func readHTMLTable(content []byte) ([]string, [][]string, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, nil, &ParseError{Message: fmt.Sprintf("parsing HTML payload: %v", err)}
	}

	table := findElement(doc, "table")
	if table == nil {
		return nil, nil, &ParseError{Message: "no tables found in HTML payload"}
	}

	var all [][]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, strings.TrimSpace(nodeText(c)))
				}
			}
			if len(cells) > 0 {
				all = append(all, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)

	if len(all) < 2 {
		return nil, nil, &ParseError{Message: "HTML table has no data rows"}
	}
	return all[0], all[1:], nil
}

// columnIndexes locates columns by case-insensitive substring match so a
// renamed header ("Consumption (CCF)") still resolves.
type columnIndexes struct {
	usage, date, avgTemp, highTemp, lowTemp int
}

func findColumns(header []string) columnIndexes {
	idx := columnIndexes{usage: -1, date: -1, avgTemp: -1, highTemp: -1, lowTemp: -1}
	for i, col := range header {
		lower := strings.ToLower(strings.TrimSpace(col))
		switch {
		case strings.Contains(lower, "consumption"):
			idx.usage = i
		case strings.Contains(lower, "date"):
			if idx.date == -1 {
				idx.date = i
			}
		case strings.Contains(lower, "avg") && strings.Contains(lower, "temp"):
			idx.avgTemp = i
		case (strings.Contains(lower, "high") || strings.Contains(lower, "max")) && strings.Contains(lower, "temp"):
			idx.highTemp = i
		case (strings.Contains(lower, "low") || strings.Contains(lower, "min")) && strings.Contains(lower, "temp"):
			idx.lowTemp = i
		}
	}
	return idx
}

// buildSamples converts header + rows into samples. Rows whose usage cell
// cannot be coerced to a number are skipped, not fatal.
func buildSamples(header []string, rows [][]string) ([]models.UsageSample, error) {
	idx := findColumns(header)
	if idx.usage == -1 || idx.date == -1 {
		return nil, &ParseError{
			Message: "could not locate consumption and date columns",
			Columns: header,
		}
	}

	var samples []models.UsageSample
	for _, row := range rows {
		if len(row) <= idx.usage || len(row) <= idx.date {
			continue
		}

		date, err := parseDate(row[idx.date])
		if err != nil {
			continue
		}

		raw, err := parseNumber(row[idx.usage])
		if err != nil {
			continue
		}

		sample := models.UsageSample{Date: date, UsageCCF: raw}
		if raw < 0 {
			sample.UsageCCF = 0
			sample.Anomaly = true
		}

		if idx.avgTemp != -1 && len(row) > idx.avgTemp {
			if v, err := parseNumber(row[idx.avgTemp]); err == nil {
				sample.AvgTempF = v
			}
		}
		if idx.highTemp != -1 && len(row) > idx.highTemp {
			if v, err := parseNumber(row[idx.highTemp]); err == nil {
				sample.MaxTempF = v
			}
		}
		if idx.lowTemp != -1 && len(row) > idx.lowTemp {
			if v, err := parseNumber(row[idx.lowTemp]); err == nil {
				sample.MinTempF = v
			}
		}
		if idx.avgTemp == -1 && idx.highTemp != -1 && idx.lowTemp != -1 {
			sample.AvgTempF = (sample.MaxTempF + sample.MinTempF) / 2
		}

		samples = append(samples, sample)
	}

	if len(samples) == 0 {
		return nil, &ParseError{Message: "no parseable data rows", Columns: header}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Date.Before(samples[j].Date) })
	return samples, nil
}

var dateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
	"01-02-2006",
	"Jan 2, 2006",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date: %q", s)
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, fmt.Errorf("empty cell")
	}
	return strconv.ParseFloat(s, 64)
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}
