// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package scoring

import (
	"regexp"
	"strconv"
	"strings"
)

// Features are the model inputs read from a financial summary.
// Monetary values are in currency units.
type Features struct {
	Revenue          float64
	NetIncome        float64
	TotalAssets      float64
	TotalLiabilities float64
	Equity           float64
	Industry         string
	Country          string
}

var numberPattern = regexp.MustCompile(`(?i)([-+]?\d*\.?\d+)\s*(billion|bn|b|million|mn|m|thousand|k)?\b`)

// ExtractFeatures reads labelled "Field: value" lines from summary. Missing
// amounts are zero and missing text fields are "Unknown".
func ExtractFeatures(summary string) Features {
	return Features{
		Revenue:          extractAmount("Revenue", summary),
		NetIncome:        extractAmount("Net Income", summary),
		TotalAssets:      extractAmount("Total Assets", summary),
		TotalLiabilities: extractAmount("Total Liabilities", summary),
		Equity:           extractAmount("Equity", summary),
		Industry:         extractText("Industry", summary),
		Country:          extractText("Country", summary),
	}
}

func fieldValue(field, text string) (string, bool) {
	re := regexp.MustCompile(`(?im)(?:^|[^a-z])` + regexp.QuoteMeta(field) + `\s*:\s*(.+)$`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func extractAmount(field, text string) float64 {
	raw, ok := fieldValue(field, text)
	if !ok {
		return 0
	}
	m := numberPattern.FindStringSubmatch(strings.ReplaceAll(raw, ",", ""))
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "billion", "bn", "b":
		v *= 1e9
	case "million", "mn", "m":
		v *= 1e6
	case "thousand", "k":
		v *= 1e3
	}
	return v
}

func extractText(field, text string) string {
	v, ok := fieldValue(field, text)
	if !ok || v == "" {
		return "Unknown"
	}
	return v
}

// Normalized buckets industry and country into the categories the risk model was fitted on.
func (f Features) Normalized() Features {
	out := f
	industry := strings.ToLower(f.Industry)
	switch {
	case strings.Contains(industry, "tech"):
		out.Industry = "Tech"
	case strings.Contains(industry, "financ"):
		out.Industry = "Finance"
	default:
		out.Industry = "Other"
	}

	country := strings.ToLower(f.Country)
	switch {
	case strings.Contains(country, "india"):
		out.Country = "India"
	case country == "us" || country == "usa" || strings.Contains(country, "united states"):
		out.Country = "US"
	case strings.Contains(country, "germany"):
		out.Country = "Germany"
	default:
		out.Country = "Other"
	}
	return out
}

// Map returns the features keyed the way prompts and logs present them.
func (f Features) Map() map[string]interface{} {
	return map[string]interface{}{
		"Revenue":           f.Revenue,
		"Net_Income":        f.NetIncome,
		"Total_Assets":      f.TotalAssets,
		"Total_Liabilities": f.TotalLiabilities,
		"Equity":            f.Equity,
		"Industry_Sector":   f.Industry,
		"Country":           f.Country,
	}
}

// Vector returns the model input: amounts in billions plus one-hot categoricals.
func (f Features) Vector() map[string]float64 {
	v := map[string]float64{
		"revenue":           f.Revenue / 1e9,
		"net_income":        f.NetIncome / 1e9,
		"total_assets":      f.TotalAssets / 1e9,
		"total_liabilities": f.TotalLiabilities / 1e9,
		"equity":            f.Equity / 1e9,
	}
	v["industry_sector_"+f.Industry] = 1
	v["country_"+f.Country] = 1
	return v
}

// PrettifyFeature turns a model feature key into a display label.
func PrettifyFeature(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
