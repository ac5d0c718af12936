package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/duckmesh/querychat/internal/chat"
	"github.com/duckmesh/querychat/internal/sqltext"
)

type questionRequest struct {
	Question string `json:"question"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	if !requireChat(deps, w, r) {
		return
	}
	var req questionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	exchange, err := deps.Chat.Ask(r.Context(), session, req.Question)
	if err != nil {
		writeTurnError(w, r, session, err)
		return
	}
	writeJSON(w, http.StatusOK, exchange)
}

func writeTurnError(w http.ResponseWriter, r *http.Request, session *chat.Session, err error) {
	if errors.Is(err, chat.ErrEmptyQuestion) {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	var turnErr *chat.TurnError
	if !errors.As(err, &turnErr) {
		writeError(r.Context(), w, http.StatusInternalServerError, "TURN_FAILED", "question could not be answered", true, map[string]any{"details": err.Error()})
		return
	}

	extra := map[string]any{
		"session_id": session.ID,
		"dataset":    session.Dataset(),
		"stage":      string(turnErr.Stage),
		"details":    turnErr.Err.Error(),
	}
	if turnErr.SQL != "" {
		extra["sql"] = turnErr.SQL
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(r.Context(), w, http.StatusGatewayTimeout, "TURN_TIMEOUT", "question timed out", true, extra)
		return
	}

	switch turnErr.Stage {
	case chat.StageSchema:
		writeError(r.Context(), w, http.StatusBadGateway, "SCHEMA_LOAD_FAILED", "failed to load dataset schema", true, extra)
	case chat.StageGenerate:
		writeError(r.Context(), w, http.StatusBadGateway, "LLM_GENERATION_FAILED", "failed to generate a query", true, extra)
	case chat.StagePolicy:
		message := "generated query was rejected"
		if errors.Is(err, sqltext.ErrNotReadOnly) {
			message = sqltext.ErrNotReadOnly.Error()
		}
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "SQL_NOT_ALLOWED", message, false, extra)
	case chat.StageExecute:
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "QUERY_EXECUTION_FAILED", "generated query failed to execute", false, extra)
	case chat.StageSummarize:
		writeError(r.Context(), w, http.StatusBadGateway, "SUMMARY_FAILED", "failed to summarize query result", true, extra)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "TURN_FAILED", "question could not be answered", true, extra)
	}
}
