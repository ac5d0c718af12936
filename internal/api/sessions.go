package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/duckmesh/querychat/internal/chat"
	"github.com/duckmesh/querychat/internal/config"
	"github.com/duckmesh/querychat/internal/history"
	"github.com/duckmesh/querychat/internal/schema"
)

const maxHistoryLimit = 1000

type createSessionRequest struct {
	Dataset string `json:"dataset"`
}

type selectDatasetRequest struct {
	Dataset string `json:"dataset"`
}

type sessionView struct {
	SessionID    string    `json:"session_id"`
	ProjectID    string    `json:"project_id"`
	Dataset      string    `json:"dataset"`
	CreatedAt    time.Time `json:"created_at"`
	TurnCount    int       `json:"turn_count"`
	SchemaLoaded bool      `json:"schema_loaded"`
}

type schemaFailureView struct {
	Table string `json:"table"`
	Error string `json:"error"`
}

type schemaView struct {
	SessionID string              `json:"session_id"`
	Dataset   string              `json:"dataset"`
	Text      string              `json:"text"`
	Tables    []schema.Table      `json:"tables"`
	Failures  []schemaFailureView `json:"failures"`
}

func newSessionView(session *chat.Session) sessionView {
	_, loaded := session.Snapshot()
	return sessionView{
		SessionID:    session.ID,
		ProjectID:    session.ProjectID,
		Dataset:      session.Dataset(),
		CreatedAt:    session.CreatedAt,
		TurnCount:    session.Conversation().Len(),
		SchemaLoaded: loaded,
	}
}

func newSchemaView(session *chat.Session, snapshot schema.Snapshot) schemaView {
	failures := make([]schemaFailureView, 0, len(snapshot.Failures))
	for _, failure := range snapshot.Failures {
		failures = append(failures, schemaFailureView{Table: failure.Table, Error: failure.Err.Error()})
	}
	tables := snapshot.Tables
	if tables == nil {
		tables = []schema.Table{}
	}
	return schemaView{
		SessionID: session.ID,
		Dataset:   snapshot.Dataset,
		Text:      snapshot.Text(),
		Tables:    tables,
		Failures:  failures,
	}
}

func handleListDatasets(cfg config.Config, deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	datasets := cfg.Warehouse.Datasets
	defaultDataset := cfg.Warehouse.DefaultDataset
	if deps.Sessions != nil {
		datasets = deps.Sessions.Datasets()
		defaultDataset = deps.Sessions.DefaultDataset()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id":      cfg.Warehouse.ProjectID,
		"datasets":        datasets,
		"default_dataset": defaultDataset,
	})
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session manager is not configured", false, nil)
		return
	}
	var req createSessionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid session request body", false, map[string]any{"details": err.Error()})
		return
	}
	session, err := deps.Sessions.Create(strings.TrimSpace(req.Dataset))
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionView(session))
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(session))
}

func handleEndSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	if err := deps.Sessions.End(session.ID); err != nil {
		writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleSelectDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	if !requireChat(deps, w, r) {
		return
	}
	var req selectDatasetRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid dataset request body", false, map[string]any{"details": err.Error()})
		return
	}
	dataset := strings.TrimSpace(req.Dataset)
	if err := deps.Sessions.ValidateDataset(dataset); err != nil {
		writeSessionError(w, r, err)
		return
	}
	snapshot, err := deps.Chat.SelectDataset(r.Context(), session, dataset)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "SCHEMA_LOAD_FAILED", "dataset selected but its schema could not be loaded", true, map[string]any{
			"dataset": dataset,
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": newSessionView(session),
		"schema":  newSchemaView(session, snapshot),
	})
}

func handleGetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	if !requireChat(deps, w, r) {
		return
	}
	snapshot, err := deps.Chat.Snapshot(r.Context(), session)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "SCHEMA_LOAD_FAILED", "failed to load dataset schema", true, map[string]any{
			"dataset": session.Dataset(),
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, newSchemaView(session, snapshot))
}

func handleListTurns(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"turns":      session.Conversation().All(),
	})
}

func handleLastSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	sql, found := session.Conversation().LastSQL()
	if !found {
		writeError(r.Context(), w, http.StatusNotFound, "NO_SQL", "session has no executed query yet", false, map[string]any{"session_id": session.ID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": session.ID, "sql": sql})
}

func handleListHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "query history is not enabled", false, nil)
		return
	}
	filter := history.ListFilter{
		SessionID: strings.TrimSpace(r.URL.Query().Get("session_id")),
		Dataset:   strings.TrimSpace(r.URL.Query().Get("dataset")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxHistoryLimit {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 1000", false, map[string]any{"limit": raw})
			return
		}
		filter.Limit = limit
	}
	entries, err := deps.History.List(r.Context(), filter)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_ERROR", "failed to list query history", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func lookupSession(deps Dependencies, w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session manager is not configured", false, nil)
		return nil, false
	}
	session, err := deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, r, err)
		return nil, false
	}
	return session, true
}

func requireChat(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat service is not configured", false, nil)
		return false
	}
	return true
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"session_id": r.PathValue("id")})
	case errors.Is(err, chat.ErrUnknownDataset):
		writeError(r.Context(), w, http.StatusBadRequest, "UNKNOWN_DATASET", err.Error(), false, nil)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_ERROR", err.Error(), true, nil)
	}
}

func decodeJSON(r *http.Request, target any, allowEmpty bool) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
