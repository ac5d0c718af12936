// Package chart turns a query result into a horizontal text bar chart.
package chart

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/duckmesh/querychat/internal/prompt"
	"github.com/duckmesh/querychat/internal/warehouse"
)

const MaxBars = 50

var keywords = []string{"graph", "chart", "bar", "plot", "visual"}

// Wants reports whether the question asks for a chart. Matching is a
// case-insensitive substring test, so "barely" matches too.
func Wants(question string) bool {
	lowered := strings.ToLower(question)
	for _, keyword := range keywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

type RenderError struct {
	Reason string
}

func (e *RenderError) Error() string {
	return "chart cannot be rendered for this data: " + e.Reason
}

type Bar struct {
	LabelColumn string    `json:"label_column"`
	ValueColumn string    `json:"value_column"`
	Labels      []string  `json:"labels"`
	Values      []float64 `json:"values"`
}

// Build plots the first numeric column against the first other column, or
// against the row number when there is none. NaN and infinite values plot as
// zero.
func Build(result warehouse.Result) (Bar, error) {
	if result.Empty() {
		return Bar{}, &RenderError{Reason: "result has no rows"}
	}
	valueIndex := -1
	for i := range result.Columns {
		if columnIsNumeric(result, i) {
			valueIndex = i
			break
		}
	}
	if valueIndex < 0 {
		return Bar{}, &RenderError{Reason: "result has no numeric column"}
	}
	labelIndex := -1
	for i := range result.Columns {
		if i != valueIndex {
			labelIndex = i
			break
		}
	}

	rows := result.Rows
	if len(rows) > MaxBars {
		rows = rows[:MaxBars]
	}
	bar := Bar{
		ValueColumn: result.Columns[valueIndex],
		Labels:      make([]string, 0, len(rows)),
		Values:      make([]float64, 0, len(rows)),
	}
	if labelIndex >= 0 {
		bar.LabelColumn = result.Columns[labelIndex]
	}
	for i, row := range rows {
		value, _ := numeric(row[valueIndex])
		if math.IsNaN(value) || math.IsInf(value, 0) {
			value = 0
		}
		label := strconv.Itoa(i + 1)
		if labelIndex >= 0 {
			label = prompt.FormatValue(row[labelIndex])
		}
		bar.Labels = append(bar.Labels, label)
		bar.Values = append(bar.Values, value)
	}
	return bar, nil
}

// Render draws one line per bar, scaled so the longest line fits width.
func (b Bar) Render(width int) string {
	labelWidth := 0
	valueTexts := make([]string, len(b.Values))
	valueWidth := 0
	maxValue := 0.0
	for i, label := range b.Labels {
		labelWidth = max(labelWidth, utf8.RuneCountInString(label))
		valueTexts[i] = strconv.FormatFloat(b.Values[i], 'g', -1, 64)
		valueWidth = max(valueWidth, len(valueTexts[i]))
		maxValue = math.Max(maxValue, b.Values[i])
	}
	barWidth := width - labelWidth - valueWidth - 3
	if barWidth < 1 {
		barWidth = 1
	}

	var out strings.Builder
	for i, label := range b.Labels {
		length := 0
		if maxValue > 0 && b.Values[i] > 0 {
			length = int(math.Round(b.Values[i] / maxValue * float64(barWidth)))
		}
		padding := strings.Repeat(" ", labelWidth-utf8.RuneCountInString(label))
		fmt.Fprintf(&out, "%s%s │%s %s\n", label, padding, strings.Repeat("█", length), valueTexts[i])
	}
	return out.String()
}

func columnIsNumeric(result warehouse.Result, index int) bool {
	seen := false
	for _, row := range result.Rows {
		if index >= len(row) || row[index] == nil {
			continue
		}
		if _, ok := numeric(row[index]); !ok {
			return false
		}
		seen = true
	}
	return seen
}

func numeric(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case *big.Rat:
		f, _ := typed.Float64()
		return f, true
	case *big.Int:
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
