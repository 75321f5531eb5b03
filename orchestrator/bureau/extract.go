// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package bureau

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// SupportedExtensions are the document types a DocumentProducer reads.
var SupportedExtensions = []string{".docx", ".xlsx", ".txt"}

// ExtractText returns the plain text of a document, chosen by the key's extension.
func ExtractText(key string, data []byte) (string, error) {
	switch strings.ToLower(path.Ext(key)) {
	case ".txt":
		return string(data), nil
	case ".docx":
		return docxText(data)
	case ".xlsx":
		return xlsxText(data)
	default:
		return "", fmt.Errorf("unsupported file type for %q", key)
	}
}

func openZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

// docxText returns the non-blank paragraphs of word/document.xml, one per line.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	body, err := openZipFile(zr, "word/document.xml")
	if err != nil {
		return "", fmt.Errorf("failed to read docx: %w", err)
	}

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse docx: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				current.Reset()
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if p := strings.TrimSpace(current.String()); p != "" {
					paragraphs = append(paragraphs, p)
				}
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return strings.Join(paragraphs, "\n"), nil
}

// xlsxText renders every worksheet row as one line of space separated cells.
func xlsxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open xlsx: %w", err)
	}

	var shared []string
	if raw, err := openZipFile(zr, "xl/sharedStrings.xml"); err == nil {
		if shared, err = sharedStrings(raw); err != nil {
			return "", err
		}
	}

	var sheets []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/sheet") && strings.HasSuffix(f.Name, ".xml") {
			sheets = append(sheets, f.Name)
		}
	}
	if len(sheets) == 0 {
		return "", fmt.Errorf("xlsx has no worksheets")
	}
	sort.Strings(sheets)

	var lines []string
	for _, name := range sheets {
		raw, err := openZipFile(zr, name)
		if err != nil {
			return "", err
		}
		rows, err := sheetRows(raw, shared)
		if err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", name, err)
		}
		lines = append(lines, rows...)
	}
	return strings.Join(lines, "\n"), nil
}

func sharedStrings(raw []byte) ([]string, error) {
	var (
		out     []string
		current strings.Builder
		inText  bool
	)
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse shared strings: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				current.Reset()
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "si":
				out = append(out, current.String())
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
}

func sheetRows(raw []byte, shared []string) ([]string, error) {
	var (
		rows     []string
		cells    []string
		cellType string
		value    strings.Builder
		inValue  bool
	)
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "row":
				cells = cells[:0]
			case "c":
				cellType = ""
				value.Reset()
				for _, a := range t.Attr {
					if a.Name.Local == "t" {
						cellType = a.Value
					}
				}
			case "v", "t":
				inValue = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "v", "t":
				inValue = false
			case "c":
				v := strings.TrimSpace(value.String())
				if cellType == "s" {
					if i, err := strconv.Atoi(v); err == nil && i >= 0 && i < len(shared) {
						v = shared[i]
					}
				}
				if v != "" {
					cells = append(cells, v)
				}
			case "row":
				if len(cells) > 0 {
					rows = append(rows, strings.Join(cells, " "))
				}
			}
		case xml.CharData:
			if inValue {
				value.Write(t)
			}
		}
	}
}

// Fields are the company facts read from document text. Nil means not found.
type Fields struct {
	CompanyName     string
	Industry        string
	AnnualRevenue   *float64
	Employees       *int
	YearsInBusiness *int

	RevenueGrowth *float64
	ProfitMargin  *float64
	DebtToEquity  *float64

	// Remaining holds the lines no field matched.
	Remaining string
}

var (
	amountPattern  = regexp.MustCompile(`[:\s]\s*\$?([\d.,]+)`)
	integerPattern = regexp.MustCompile(`[:\s]\s*([\d,]+)`)
	yearsPattern   = regexp.MustCompile(`[:\s]\s*(\d+)`)
	ratioPattern   = regexp.MustCompile(`[:\s]\s*([\d.]+)`)
)

func matchFloat(re *regexp.Regexp, line string) *float64 {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

func matchInt(re *regexp.Regexp, line string) *int {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return &v
}

func afterColon(line string) string {
	_, v, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// ExtractFields scans text line by line for company facts and key metrics.
// Debt to equity and profit margin are derived from raw statement values when
// the text does not state them.
func ExtractFields(text string) Fields {
	var (
		f                                       Fields
		revenue, netIncome, liabilities, equity *float64
		remaining                               []string
	)

	for _, line := range strings.Split(text, "\n") {
		clean := strings.TrimSpace(line)
		lower := strings.ToLower(clean)

		switch {
		case strings.Contains(lower, "company name"):
			f.CompanyName = afterColon(clean)
		case strings.Contains(lower, "industry"):
			f.Industry = afterColon(clean)
		case strings.Contains(lower, "annual revenue"):
			f.AnnualRevenue = matchFloat(amountPattern, clean)
		case strings.Contains(lower, "employees"):
			f.Employees = matchInt(integerPattern, clean)
		case strings.Contains(lower, "years in business"):
			f.YearsInBusiness = matchInt(yearsPattern, clean)
		case strings.Contains(lower, "revenue growth"):
			f.RevenueGrowth = matchFloat(ratioPattern, clean)
		case strings.Contains(lower, "profit margin"):
			f.ProfitMargin = matchFloat(ratioPattern, clean)
		case strings.Contains(lower, "debt to equity"):
			f.DebtToEquity = matchFloat(ratioPattern, clean)
		case strings.Contains(lower, "revenue"):
			revenue = matchFloat(amountPattern, clean)
		case strings.Contains(lower, "net income"):
			netIncome = matchFloat(amountPattern, clean)
		case strings.Contains(lower, "total assets"):
			// consumed so the line is not treated as narrative
		case strings.Contains(lower, "total liabilities"):
			liabilities = matchFloat(amountPattern, clean)
		case strings.Contains(lower, "equity"):
			equity = matchFloat(amountPattern, clean)
		default:
			if clean != "" {
				remaining = append(remaining, clean)
			}
		}
	}
	if f.DebtToEquity == nil && nonZero(liabilities) && nonZero(equity) {
		v := round2(*liabilities / *equity)
		f.DebtToEquity = &v
	}
	if f.ProfitMargin == nil && nonZero(netIncome) && nonZero(revenue) {
		v := round2(*netIncome / *revenue * 100)
		f.ProfitMargin = &v
	}
	f.Remaining = strings.Join(remaining, "\n")
	return f
}

func nonZero(v *float64) bool { return v != nil && *v != 0 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Merge fills fields missing from f with the values from other.
func (f Fields) Merge(other Fields) Fields {
	if f.CompanyName == "" {
		f.CompanyName = other.CompanyName
	}
	if f.Industry == "" {
		f.Industry = other.Industry
	}
	if f.AnnualRevenue == nil {
		f.AnnualRevenue = other.AnnualRevenue
	}
	if f.Employees == nil {
		f.Employees = other.Employees
	}
	if f.YearsInBusiness == nil {
		f.YearsInBusiness = other.YearsInBusiness
	}
	if f.RevenueGrowth == nil {
		f.RevenueGrowth = other.RevenueGrowth
	}
	if f.ProfitMargin == nil {
		f.ProfitMargin = other.ProfitMargin
	}
	if f.DebtToEquity == nil {
		f.DebtToEquity = other.DebtToEquity
	}
	return f
}

// Data returns the fields in the bureau extractedData layout.
func (f Fields) Data() map[string]interface{} {
	return map[string]interface{}{
		"company_name":      nullable(f.CompanyName),
		"industry":          nullable(f.Industry),
		"annual_revenue":    ptrValue(f.AnnualRevenue),
		"employees":         ptrValue(f.Employees),
		"years_in_business": ptrValue(f.YearsInBusiness),
		"key_financial_metrics": map[string]interface{}{
			"revenue_growth": ptrValue(f.RevenueGrowth),
			"profit_margin":  ptrValue(f.ProfitMargin),
			"debt_to_equity": ptrValue(f.DebtToEquity),
		},
	}
}

func ptrValue[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
