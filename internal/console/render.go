// Package console is the interactive terminal front end: a prompt loop over a
// chat session with lipgloss rendering of answers, results and charts.
package console

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/duckmesh/querychat/internal/chart"
	"github.com/duckmesh/querychat/internal/chat"
	"github.com/duckmesh/querychat/internal/conversation"
	"github.com/duckmesh/querychat/internal/history"
	"github.com/duckmesh/querychat/internal/prompt"
	"github.com/duckmesh/querychat/internal/schema"
	"github.com/duckmesh/querychat/internal/warehouse"
)

const (
	DefaultWidth       = 80
	DefaultDisplayRows = 20
)

type styles struct {
	title     lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	sqlPanel  lipgloss.Style
	chart     lipgloss.Style
	warning   lipgloss.Style
	err       lipgloss.Style
	muted     lipgloss.Style
	header    lipgloss.Style
	cell      lipgloss.Style
	border    lipgloss.Style
}

// Renderer writes styled output. Colors are chosen from the writer's
// terminal profile, so plain buffers receive unstyled text.
type Renderer struct {
	out         io.Writer
	width       int
	displayRows int
	s           styles
}

func NewRenderer(out io.Writer, width, displayRows int) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	if displayRows <= 0 {
		displayRows = DefaultDisplayRows
	}
	r := lipgloss.NewRenderer(out)
	return &Renderer{
		out:         out,
		width:       width,
		displayRows: displayRows,
		s: styles{
			title: r.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#7C3AED")).
				MarginBottom(1),
			user: r.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#3B82F6")),
			assistant: r.NewStyle().
				Foreground(lipgloss.Color("#10B981")).
				Width(width),
			sqlPanel: r.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#8B5CF6")).
				Padding(0, 1),
			chart: r.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#F59E0B")).
				Padding(0, 1),
			warning: r.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
			err: r.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#EF4444")),
			muted:  r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
			header: r.NewStyle().Bold(true).Padding(0, 1),
			cell:   r.NewStyle().Padding(0, 1),
			border: r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		},
	}
}

func (r *Renderer) Welcome(session *chat.Session) {
	r.println(r.s.title.Render("querychat"))
	r.println(r.s.muted.Render(fmt.Sprintf("project %s | dataset %s | session %s", session.ProjectID, session.Dataset(), session.ID)))
	r.println(r.s.muted.Render("Ask a question, or :help for commands."))
	r.println("")
}

func (r *Renderer) Help() {
	r.println(strings.Join([]string{
		":dataset   choose another dataset and reload its schema",
		":schema    show the schema used for prompts",
		":sql       show the SQL behind the latest answer",
		":history   replay the conversation",
		":log       list recorded queries for this session",
		":help      show this help",
		":quit      leave",
	}, "\n"))
}

// Exchange prints the answer turn of a completed exchange, its result table
// and the chart when one was built.
func (r *Renderer) Exchange(exchange chat.Exchange) {
	r.Turn(exchange.Answer)
	if exchange.Chart != nil {
		r.Chart(*exchange.Chart)
	}
	if exchange.ChartWarning != "" {
		r.println(r.s.warning.Render("chart: " + exchange.ChartWarning))
	}
	r.println("")
}

func (r *Renderer) Turn(turn conversation.Turn) {
	switch turn.Role {
	case conversation.RoleUser:
		r.println(r.s.user.Render("> " + turn.Content))
	default:
		r.println(r.s.assistant.Render(turn.Content))
		if turn.Results != nil && !turn.Results.Empty() {
			r.Table(*turn.Results)
		}
	}
}

func (r *Renderer) Transcript(turns []conversation.Turn) {
	if len(turns) == 0 {
		r.println(r.s.muted.Render("No questions asked yet."))
		return
	}
	for _, turn := range turns {
		r.Turn(turn)
	}
	r.println("")
}

func (r *Renderer) Table(result warehouse.Result) {
	shown := result.Head(r.displayRows)
	rows := make([][]string, 0, len(shown.Rows))
	for _, row := range shown.Rows {
		cells := make([]string, len(result.Columns))
		for i := range cells {
			if i < len(row) {
				cells[i] = prompt.FormatValue(row[i])
			}
		}
		rows = append(rows, cells)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.s.border).
		Headers(result.Columns...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.s.header
			}
			return r.s.cell
		})
	r.println(t.String())

	if hidden := len(result.Rows) - len(shown.Rows); hidden > 0 {
		r.println(r.s.muted.Render(fmt.Sprintf("%d more rows not shown", hidden)))
	}
	if result.Truncated {
		r.println(r.s.muted.Render("result was truncated by the row limit"))
	}
}

func (r *Renderer) Chart(bar chart.Bar) {
	label := bar.LabelColumn
	if label == "" {
		label = "row"
	}
	body := fmt.Sprintf("%s by %s\n%s", bar.ValueColumn, label, bar.Render(r.width-4))
	r.println(r.s.chart.Render(body))
}

func (r *Renderer) SQL(sql string) {
	r.println(r.s.sqlPanel.Render(sql))
}

func (r *Renderer) Schema(snapshot schema.Snapshot) {
	r.println(r.s.title.Render("Dataset " + snapshot.Dataset))
	text := strings.TrimRight(snapshot.Text(), "\n")
	if text == "" {
		r.println(r.s.muted.Render("No tables found."))
		return
	}
	r.println(text)
	if len(snapshot.Failures) > 0 {
		r.println(r.s.warning.Render(fmt.Sprintf("%d table schemas could not be loaded", len(snapshot.Failures))))
	}
}

func (r *Renderer) History(entries []history.Entry) {
	if len(entries) == 0 {
		r.println(r.s.muted.Render("No recorded queries."))
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.CreatedAt.Format("2006-01-02 15:04:05"),
			entry.Dataset,
			entry.Question,
			fmt.Sprintf("%d", entry.RowCount),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.s.border).
		Headers("when", "dataset", "question", "rows").
		Rows(rows...)
	r.println(t.String())
}

func (r *Renderer) Info(message string) {
	r.println(r.s.muted.Render(message))
}

// Error prints a failed turn. The SQL that was attempted is shown when the
// failure happened after generation.
func (r *Renderer) Error(err error) {
	var turnErr *chat.TurnError
	if errors.As(err, &turnErr) {
		r.println(r.s.err.Render(fmt.Sprintf("Error during %s: %v", turnErr.Stage, turnErr.Err)))
		if turnErr.SQL != "" {
			r.SQL(turnErr.SQL)
		}
		r.println("")
		return
	}
	r.println(r.s.err.Render("Error: " + err.Error()))
	r.println("")
}

func (r *Renderer) println(text string) {
	_, _ = fmt.Fprintln(r.out, text)
}
