// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package bureau

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"creditlens/platform/connectors/base"
	"creditlens/platform/orchestrator/reasoning"
	"creditlens/platform/orchestrator/tools"
	"creditlens/platform/shared/logger"
)

const documentPrompt = `You are a bureau analyst preparing a financial summary for credit and fraud review.
Summarize the document below. Start with one line per figure, exactly in this form:
Revenue: <amount>
Net Income: <amount>
Total Assets: <amount>
Total Liabilities: <amount>
Equity: <amount>
Country: <country>
Industry: <industry>
Write amounts with a B or M suffix for billions or millions, and Unknown when a figure is absent.
Then write a short narrative on financial health, risks and notable trends.
%s
Document (%s):
%s`

const metaPrompt = `You are a financial meta-summarizer.
You will receive multiple structured financial summaries, each from a different document for the same company.
Integrate them into one summary: combine key metrics, note significant increases, decreases or unusual changes,
and state conflicting or missing values clearly.
Keep the figure lines (Revenue, Net Income, Total Assets, Total Liabilities, Equity, Country, Industry) first,
followed by a concise narrative on overall financial health, risks and noteworthy trends.
Do not concatenate the summaries.

%s`

// maxDocumentChars bounds the document text sent in one prompt.
const maxDocumentChars = 24000

// DocumentOptions configure a DocumentProducer.
type DocumentOptions struct {
	// Prefix restricts the documents considered.
	Prefix string
	// SummaryKey receives the final summary; "" means DefaultSummaryKey.
	SummaryKey string
	// MaxDocuments is how many of the newest documents are summarized; <= 0 means 1.
	MaxDocuments int
	Poll         reasoning.PollConfig
}

// DocumentProducer builds the bureau summary from the newest uploaded documents
// and persists it for later single-tool runs.
type DocumentProducer struct {
	store     base.DocumentStore
	completer reasoning.Completer
	meta      *MetaSummarizer
	opts      DocumentOptions
	log       *logger.Logger
}

var _ Producer = (*DocumentProducer)(nil)

// NewDocumentProducer creates a DocumentProducer.
func NewDocumentProducer(store base.DocumentStore, c reasoning.Completer, opts DocumentOptions) *DocumentProducer {
	if opts.SummaryKey == "" {
		opts.SummaryKey = DefaultSummaryKey
	}
	if opts.MaxDocuments <= 0 {
		opts.MaxDocuments = 1
	}
	if opts.Poll.Attempts <= 0 {
		opts.Poll = reasoning.DefaultPollConfig()
	}
	return &DocumentProducer{
		store:     store,
		completer: c,
		meta:      NewMetaSummarizer(c, opts.Poll),
		opts:      opts,
		log:       logger.New("bureau"),
	}
}

// Produce summarizes the newest documents. Failures become a failed bureau result.
func (p *DocumentProducer) Produce(ctx context.Context) tools.ToolResult {
	return tools.Guard(tools.Bureau, func(ctx context.Context, _ string) (tools.ToolResult, error) {
		return p.produce(ctx)
	}).Run(ctx, "")
}

func (p *DocumentProducer) produce(ctx context.Context) (tools.ToolResult, error) {
	start := time.Now()
	docs, err := p.selectDocuments(ctx)
	if err != nil {
		return tools.ToolResult{}, err
	}

	var (
		fields    Fields
		summaries []DocumentSummary
		sources   []string
	)
	for i, doc := range docs {
		data, err := p.store.Get(ctx, doc.Key)
		if err != nil {
			return tools.ToolResult{}, fmt.Errorf("blob read error for %s: %w", doc.Key, err)
		}
		text, err := ExtractText(doc.Key, data)
		if err != nil {
			return tools.ToolResult{}, err
		}
		extracted := ExtractFields(text)
		if i == 0 {
			fields = extracted
		} else {
			fields = fields.Merge(extracted)
		}

		summary, err := p.summarize(ctx, doc.Key, text, extracted)
		if err != nil {
			return tools.ToolResult{}, err
		}
		summaries = append(summaries, DocumentSummary{Source: doc.Key, Text: summary})
		sources = append(sources, doc.Key)
	}

	final, err := p.meta.Summarize(ctx, summaries)
	if err != nil {
		return tools.ToolResult{}, err
	}
	if err := p.store.Put(ctx, p.opts.SummaryKey, []byte(final), "text/plain; charset=utf-8"); err != nil {
		return tools.ToolResult{}, fmt.Errorf("failed to persist summary: %w", err)
	}

	p.log.InfoWithDuration("", "Bureau summary produced", time.Since(start), map[string]interface{}{
		"documents":   sources,
		"summary_key": p.opts.SummaryKey,
	})

	data := fields.Data()
	data["source_documents"] = sources
	return tools.Complete(tools.Bureau, data, tools.ResolveSummary(final), bureauConfidence), nil
}

// selectDocuments returns the newest supported documents, skipping persisted summaries.
func (p *DocumentProducer) selectDocuments(ctx context.Context) ([]base.ObjectInfo, error) {
	objects, err := p.store.List(ctx, p.opts.Prefix)
	if err != nil {
		return nil, fmt.Errorf("blob read error: %w", err)
	}

	var documents []base.ObjectInfo
	for _, obj := range objects {
		if obj.Key == p.opts.SummaryKey || strings.HasSuffix(obj.Key, "_summary.txt") {
			continue
		}
		documents = append(documents, obj)
	}
	newest := base.Newest(documents, p.opts.MaxDocuments, SupportedExtensions...)
	if len(newest) == 0 {
		return nil, fmt.Errorf("no documents found in %s", p.store.Name())
	}
	return newest, nil
}

func (p *DocumentProducer) summarize(ctx context.Context, key, text string, fields Fields) (string, error) {
	if runes := []rune(text); len(runes) > maxDocumentChars {
		text = string(runes[:maxDocumentChars])
	}
	prompt := fmt.Sprintf(documentPrompt, fieldHints(fields), path.Base(key), text)

	summary, ok, err := reasoning.PollText(ctx, p.opts.Poll, p.completer, reasoning.Request{
		Prompt:      prompt,
		MaxTokens:   1000,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no summary produced for %s: %w", key, reasoning.ErrNoResponse)
	}
	return summary, nil
}

// fieldHints lists the facts already read from the document.
func fieldHints(f Fields) string {
	var b strings.Builder
	add := func(label string, v interface{}) {
		if v == nil {
			return
		}
		if b.Len() == 0 {
			b.WriteString("Facts already read from the document:\n")
		}
		fmt.Fprintf(&b, "- %s: %v\n", label, v)
	}
	add("Company name", nullable(f.CompanyName))
	add("Industry", nullable(f.Industry))
	add("Annual revenue", ptrValue(f.AnnualRevenue))
	add("Employees", ptrValue(f.Employees))
	add("Years in business", ptrValue(f.YearsInBusiness))
	add("Revenue growth", ptrValue(f.RevenueGrowth))
	add("Profit margin", ptrValue(f.ProfitMargin))
	add("Debt to equity", ptrValue(f.DebtToEquity))
	return b.String()
}

// DocumentSummary is the summary of one source document.
type DocumentSummary struct {
	Source string
	Text   string
}

// MetaSummarizer merges per-document summaries into one narrative.
type MetaSummarizer struct {
	completer reasoning.Completer
	poll      reasoning.PollConfig
}

// NewMetaSummarizer creates a MetaSummarizer.
func NewMetaSummarizer(c reasoning.Completer, poll reasoning.PollConfig) *MetaSummarizer {
	return &MetaSummarizer{completer: c, poll: poll}
}

// Summarize returns a single summary. One input is returned unchanged.
func (m *MetaSummarizer) Summarize(ctx context.Context, summaries []DocumentSummary) (string, error) {
	switch len(summaries) {
	case 0:
		return "", errors.New("no summaries to merge")
	case 1:
		return summaries[0].Text, nil
	}

	parts := make([]string, 0, len(summaries))
	for _, s := range summaries {
		parts = append(parts, fmt.Sprintf("--- Summary from %s ---\n%s", s.Source, s.Text))
	}

	merged, ok, err := reasoning.PollText(ctx, m.poll, m.completer, reasoning.Request{
		Prompt:      fmt.Sprintf(metaPrompt, strings.Join(parts, "\n\n")),
		MaxTokens:   1500,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("meta summary failed: %w", reasoning.ErrNoResponse)
	}
	return merged, nil
}
