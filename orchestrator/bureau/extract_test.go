// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package bureau

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractText_Docx(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Company Name: Contoso</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Revenue: </w:t></w:r><w:r><w:t>$1,200,000</w:t></w:r></w:p>
<w:p><w:r><w:t>   </w:t></w:r></w:p>
<w:p><w:r><w:t>Steady growth.</w:t></w:r></w:p>
</w:body></w:document>`
	data := zipArchive(t, map[string]string{"word/document.xml": doc})

	text, err := ExtractText("uploads/Report.DOCX", data)

	require.NoError(t, err)
	assert.Equal(t, "Company Name: Contoso\nRevenue: $1,200,000\nSteady growth.", text)
}

func TestExtractText_Xlsx(t *testing.T) {
	shared := `<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<si><t>Metric</t></si><si><t>Value</t></si><si><r><t>Total </t></r><r><t>Liabilities</t></r></si></sst>`
	sheet := `<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>
<row r="2"><c r="A2" t="s"><v>2</v></c><c r="B2"><v>5000</v></c></row>
<row r="3"><c r="A3" t="inlineStr"><is><t>Equity</t></is></c><c r="B3"><v>2500</v></c></row>
</sheetData></worksheet>`
	data := zipArchive(t, map[string]string{
		"xl/sharedStrings.xml":     shared,
		"xl/worksheets/sheet1.xml": sheet,
	})

	text, err := ExtractText("bs.xlsx", data)

	require.NoError(t, err)
	assert.Equal(t, "Metric Value\nTotal Liabilities 5000\nEquity 2500", text)
}

func TestExtractText_Errors(t *testing.T) {
	_, err := ExtractText("scan.pdf", []byte("%PDF"))
	assert.Error(t, err)

	_, err = ExtractText("bad.docx", []byte("not a zip"))
	assert.Error(t, err)

	_, err = ExtractText("empty.xlsx", zipArchive(t, map[string]string{"xl/workbook.xml": "<workbook/>"}))
	assert.Error(t, err)
}

func TestExtractText_Txt(t *testing.T) {
	text, err := ExtractText("notes.txt", []byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", text)
}

func TestExtractFields(t *testing.T) {
	text := `Company Name: Contoso Ltd
Industry: Technology
Annual Revenue: $1,500,000
Employees: 1,200
Years in Business: 15
Revenue Growth: 12.5%
Net Income: 150,000
Total Assets: 9,000,000
Total Liabilities: 3,000,000
Equity: 2,000,000
The company expanded into two markets.`

	f := ExtractFields(text)

	assert.Equal(t, "Contoso Ltd", f.CompanyName)
	assert.Equal(t, "Technology", f.Industry)
	require.NotNil(t, f.AnnualRevenue)
	assert.Equal(t, 1500000.0, *f.AnnualRevenue)
	require.NotNil(t, f.Employees)
	assert.Equal(t, 1200, *f.Employees)
	require.NotNil(t, f.YearsInBusiness)
	assert.Equal(t, 15, *f.YearsInBusiness)
	require.NotNil(t, f.RevenueGrowth)
	assert.Equal(t, 12.5, *f.RevenueGrowth)
	require.NotNil(t, f.DebtToEquity)
	assert.Equal(t, 1.5, *f.DebtToEquity)
	assert.Nil(t, f.ProfitMargin, "no revenue line, so no derived margin")
	assert.Equal(t, "The company expanded into two markets.", f.Remaining)
}

func TestExtractFields_DerivedProfitMargin(t *testing.T) {
	f := ExtractFields("Revenue: 2,000\nNet Income: 300\nDebt to Equity: 0.8")

	require.NotNil(t, f.ProfitMargin)
	assert.Equal(t, 15.0, *f.ProfitMargin)
	require.NotNil(t, f.DebtToEquity)
	assert.Equal(t, 0.8, *f.DebtToEquity)
}

func TestExtractFields_ZeroEquity(t *testing.T) {
	f := ExtractFields("Total Liabilities: 100\nEquity: 0")
	assert.Nil(t, f.DebtToEquity)
}

func TestFieldsMergeAndData(t *testing.T) {
	a := ExtractFields("Company Name: A\nEmployees: 10")
	b := ExtractFields("Company Name: B\nIndustry: Finance\nEmployees: 20")

	m := a.Merge(b)
	data := m.Data()

	assert.Equal(t, "A", data["company_name"])
	assert.Equal(t, "Finance", data["industry"])
	assert.Equal(t, 10, data["employees"])
	assert.Nil(t, data["annual_revenue"])
	metrics := data["key_financial_metrics"].(map[string]interface{})
	assert.Nil(t, metrics["profit_margin"])
}
