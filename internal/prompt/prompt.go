package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/duckmesh/querychat/internal/warehouse"
)

const (
	DefaultDialect    = "BigQuery"
	DefaultSampleRows = 5
)

var QueryTemplate = Template{
	Name: "query",
	Body: `Act as a SQL query writer for {{dialect}}.
We have the following schema:
project_id = "{{project_id}}"
dataset_id = "{{dataset_id}}"
{{schema}}
User question: {{question}}
Write only the executable query.`,
	Fields: []Field{
		{Name: "dialect", Trusted: true},
		{Name: "project_id", Trusted: true},
		{Name: "dataset_id", Trusted: true},
		// Column and table names come from the warehouse.
		{Name: "schema", Trusted: false},
		{Name: "question", Trusted: false},
	},
}

var SummaryTemplate = Template{
	Name: "summary",
	Body: `Act as a data analyst.
Summarize the following query result in plain language.

User question: {{question}}
Top rows:
{{sample}}`,
	Fields: []Field{
		{Name: "question", Trusted: false},
		{Name: "sample", Trusted: false},
	},
}

// Builder renders prompts for a specific SQL dialect.
type Builder struct {
	Dialect string
}

func (b Builder) QueryPrompt(projectID, datasetID, schemaText, question string) string {
	dialect := b.Dialect
	if dialect == "" {
		dialect = DefaultDialect
	}
	return QueryTemplate.Render(map[string]string{
		"dialect":    dialect,
		"project_id": projectID,
		"dataset_id": datasetID,
		"schema":     schemaText,
		"question":   question,
	})
}

func (b Builder) SummaryPrompt(question, sampleRowsText string) string {
	return SummaryTemplate.Render(map[string]string{
		"question": question,
		"sample":   sampleRowsText,
	})
}

func BuildQueryPrompt(projectID, datasetID, schemaText, question string) string {
	return Builder{}.QueryPrompt(projectID, datasetID, schemaText, question)
}

func BuildSummaryPrompt(question, sampleRowsText string) string {
	return Builder{}.SummaryPrompt(question, sampleRowsText)
}

// RenderSample renders the first n rows of result as a markdown table.
func RenderSample(result warehouse.Result, n int) string {
	if n <= 0 {
		n = DefaultSampleRows
	}
	sample := result.Head(n)

	var b strings.Builder
	b.WriteString("|")
	for _, column := range sample.Columns {
		b.WriteString(" " + markdownCell(column) + " |")
	}
	b.WriteString("\n|")
	for range sample.Columns {
		b.WriteString(" --- |")
	}
	for _, row := range sample.Rows {
		b.WriteString("\n|")
		for _, value := range row {
			b.WriteString(" " + markdownCell(FormatValue(value)) + " |")
		}
	}
	return b.String()
}

// FormatValue renders a warehouse value for display.
func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339)
	case float32:
		return fmt.Sprintf("%g", typed)
	case float64:
		return fmt.Sprintf("%g", typed)
	default:
		return fmt.Sprint(typed)
	}
}

func markdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", `\|`)
	value = strings.ReplaceAll(value, "\r\n", " ")
	return strings.ReplaceAll(value, "\n", " ")
}
