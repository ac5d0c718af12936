// Package chat runs question turns: prompt, generate, sanitize, execute,
// summarize, record.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/duckmesh/querychat/internal/chart"
	"github.com/duckmesh/querychat/internal/conversation"
	"github.com/duckmesh/querychat/internal/history"
	"github.com/duckmesh/querychat/internal/llm"
	"github.com/duckmesh/querychat/internal/observability"
	"github.com/duckmesh/querychat/internal/prompt"
	"github.com/duckmesh/querychat/internal/schema"
	"github.com/duckmesh/querychat/internal/sqltext"
	"github.com/duckmesh/querychat/internal/warehouse"
)

const (
	DefaultNoResultsMessage = "No results found."
	historyRecordTimeout    = 5 * time.Second
)

type Config struct {
	Dialect          string
	SampleRows       int
	NoResultsMessage string
	ReadOnly         bool
}

// Exchange is the outcome of a successful turn. Question and Answer are the
// two turns appended to the transcript.
type Exchange struct {
	SessionID    string            `json:"session_id"`
	Dataset      string            `json:"dataset"`
	Question     conversation.Turn `json:"question"`
	Answer       conversation.Turn `json:"answer"`
	Chart        *chart.Bar        `json:"chart,omitempty"`
	ChartWarning string            `json:"chart_warning,omitempty"`
}

type Service struct {
	cfg       Config
	warehouse warehouse.Warehouse
	loader    *schema.Loader
	generator llm.Generator
	prompts   prompt.Builder
	history   history.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithHistory(recorder history.Recorder) Option {
	return func(s *Service) { s.history = recorder }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg Config, w warehouse.Warehouse, generator llm.Generator, opts ...Option) *Service {
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = prompt.DefaultSampleRows
	}
	if cfg.NoResultsMessage == "" {
		cfg.NoResultsMessage = DefaultNoResultsMessage
	}
	s := &Service{
		cfg:       cfg,
		warehouse: w,
		generator: generator,
		prompts:   prompt.Builder{Dialect: cfg.Dialect},
		logger:    observability.DiscardLogger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loader = schema.NewLoader(w, s.logger)
	return s
}

// Ask runs one question through the pipeline. On failure the returned error
// is a *TurnError and the transcript is unchanged.
func (s *Service) Ask(ctx context.Context, session *Session, question string) (Exchange, error) {
	if strings.TrimSpace(question) == "" {
		return Exchange{}, ErrEmptyQuestion
	}
	session.turnMu.Lock()
	defer session.turnMu.Unlock()

	logger := observability.LoggerWithTrace(ctx, s.logger).With(
		slog.String("session_id", session.ID),
		slog.String("dataset", session.Dataset()),
	)

	exchange, err := s.runTurn(ctx, session, question)
	if err != nil {
		var turnErr *TurnError
		if errors.As(err, &turnErr) {
			observability.ObserveTurn(string(turnErr.Stage))
			logger.Warn("turn failed", slog.String("stage", string(turnErr.Stage)), slog.Any("error", turnErr.Err))
		}
		return Exchange{}, err
	}
	observability.ObserveTurn("")
	logger.Info("turn completed",
		slog.Int("rows", len(exchange.Answer.Results.Rows)),
		slog.Duration("query_duration", exchange.Answer.Results.Duration),
	)

	s.record(ctx, logger, session, exchange)
	return exchange, nil
}

func (s *Service) runTurn(ctx context.Context, session *Session, question string) (Exchange, error) {
	dataset := session.Dataset()
	snapshot, err := s.ensureSnapshot(ctx, session)
	if err != nil {
		return Exchange{}, &TurnError{Stage: StageSchema, Err: err}
	}

	queryPrompt := s.prompts.QueryPrompt(session.ProjectID, dataset, snapshot.Text(), question)
	raw, err := s.generate(ctx, "query", queryPrompt)
	if err != nil {
		return Exchange{}, &TurnError{Stage: StageGenerate, Err: err}
	}

	sql := sqltext.Clean(raw)
	if s.cfg.ReadOnly {
		if err := sqltext.ReadOnly(sqltext.Dialect(s.cfg.Dialect), sql); err != nil {
			return Exchange{}, &TurnError{Stage: StagePolicy, SQL: sql, Err: err}
		}
	}

	start := time.Now()
	result, err := s.warehouse.Query(ctx, warehouse.Request{Dataset: dataset, SQL: sql})
	observability.ObserveQuery(time.Since(start), err)
	if err != nil {
		return Exchange{}, &TurnError{Stage: StageExecute, SQL: sql, Err: err}
	}

	answer := s.cfg.NoResultsMessage
	if !result.Empty() {
		summaryPrompt := s.prompts.SummaryPrompt(question, prompt.RenderSample(result, s.cfg.SampleRows))
		answer, err = s.generate(ctx, "summary", summaryPrompt)
		if err != nil {
			return Exchange{}, &TurnError{Stage: StageSummarize, SQL: sql, Err: err}
		}
	}

	now := s.now()
	exchange := Exchange{
		SessionID: session.ID,
		Dataset:   dataset,
		Question:  conversation.Turn{Role: conversation.RoleUser, Content: question, CreatedAt: now},
		Answer: conversation.Turn{
			Role:      conversation.RoleAssistant,
			Content:   answer,
			Results:   &result,
			SQL:       sql,
			CreatedAt: now,
		},
	}
	session.Conversation().Append(exchange.Question, exchange.Answer)

	if chart.Wants(question) {
		bar, err := chart.Build(result)
		if err != nil {
			exchange.ChartWarning = err.Error()
		} else {
			exchange.Chart = &bar
		}
	}
	return exchange, nil
}

// SelectDataset switches the session's dataset. A change drops the cached
// snapshot and loads the new one; selecting the current dataset is a no-op.
func (s *Service) SelectDataset(ctx context.Context, session *Session, dataset string) (schema.Snapshot, error) {
	session.turnMu.Lock()
	defer session.turnMu.Unlock()

	if session.selectDataset(dataset) {
		observability.LoggerWithTrace(ctx, s.logger).Info("dataset selected",
			slog.String("session_id", session.ID),
			slog.String("dataset", dataset),
		)
	}
	return s.ensureSnapshot(ctx, session)
}

// Snapshot returns the session's schema snapshot, loading it if needed.
func (s *Service) Snapshot(ctx context.Context, session *Session) (schema.Snapshot, error) {
	session.turnMu.Lock()
	defer session.turnMu.Unlock()
	return s.ensureSnapshot(ctx, session)
}

func (s *Service) ensureSnapshot(ctx context.Context, session *Session) (schema.Snapshot, error) {
	if snapshot, ok := session.Snapshot(); ok {
		return snapshot, nil
	}
	snapshot, err := s.loader.Load(ctx, session.Dataset())
	if err != nil {
		return schema.Snapshot{}, err
	}
	session.setSnapshot(snapshot)
	return snapshot, nil
}

func (s *Service) generate(ctx context.Context, purpose, text string) (string, error) {
	if s.generator == nil {
		return "", fmt.Errorf("llm generator is not configured")
	}
	start := time.Now()
	out, err := s.generator.Generate(ctx, text)
	observability.ObserveLLMRequest(purpose, time.Since(start), err)
	return out, err
}

func (s *Service) record(ctx context.Context, logger *slog.Logger, session *Session, exchange Exchange) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyRecordTimeout)
	defer cancel()

	result := exchange.Answer.Results
	_, err := s.history.Record(ctx, history.Entry{
		SessionID:  session.ID,
		Dataset:    exchange.Dataset,
		Question:   exchange.Question.Content,
		SQL:        exchange.Answer.SQL,
		RowCount:   len(result.Rows),
		Truncated:  result.Truncated,
		DurationMS: result.Duration.Milliseconds(),
	})
	if err != nil {
		logger.Warn("record query history failed", slog.Any("error", err))
	}
}
