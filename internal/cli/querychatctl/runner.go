// Package querychatctl is a thin HTTP client for the querychat API. Every
// command maps to one request; JSON responses are pretty printed.
package querychatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:8080"
	defaultTimeout = 2 * time.Minute
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type call struct {
	method string
	path   string
	query  url.Values
	body   any
}

type invocation struct {
	args  []string
	limit int
}

func (in invocation) arg(i int) string {
	if i < len(in.args) {
		return strings.TrimSpace(in.args[i])
	}
	return ""
}

func (in invocation) session(command string) (string, error) {
	id := in.arg(0)
	if id == "" {
		return "", fmt.Errorf("%s requires a session id", command)
	}
	return "/v1/sessions/" + url.PathEscape(id), nil
}

type command struct {
	name  string
	usage string
	build func(invocation) (call, error)
}

func get(path string) func(invocation) (call, error) {
	return func(invocation) (call, error) { return call{method: http.MethodGet, path: path}, nil }
}

// sessionCall builds a request against /v1/sessions/{id}<suffix>.
func sessionCall(name, method, suffix string) func(invocation) (call, error) {
	return func(in invocation) (call, error) {
		base, err := in.session(name)
		if err != nil {
			return call{}, err
		}
		return call{method: method, path: base + suffix}, nil
	}
}

var commands = []command{
	{name: "health", usage: "health", build: get("/v1/health")},
	{name: "ready", usage: "ready", build: get("/v1/ready")},
	{name: "datasets", usage: "datasets", build: get("/v1/datasets")},
	{name: "new-session", usage: "new-session [dataset]", build: func(in invocation) (call, error) {
		body := map[string]string{}
		if dataset := in.arg(0); dataset != "" {
			body["dataset"] = dataset
		}
		return call{method: http.MethodPost, path: "/v1/sessions", body: body}, nil
	}},
	{name: "session", usage: "session <id>", build: sessionCall("session", http.MethodGet, "")},
	{name: "end-session", usage: "end-session <id>", build: sessionCall("end-session", http.MethodDelete, "")},
	{name: "use", usage: "use <id> <dataset>", build: func(in invocation) (call, error) {
		base, err := in.session("use")
		if err != nil {
			return call{}, err
		}
		dataset := in.arg(1)
		if dataset == "" {
			return call{}, errors.New("use requires a dataset")
		}
		return call{method: http.MethodPut, path: base + "/dataset", body: map[string]string{"dataset": dataset}}, nil
	}},
	{name: "schema", usage: "schema <id>", build: sessionCall("schema", http.MethodGet, "/schema")},
	{name: "ask", usage: "ask <id> <question...>", build: func(in invocation) (call, error) {
		base, err := in.session("ask")
		if err != nil {
			return call{}, err
		}
		question := strings.TrimSpace(strings.Join(in.args[1:], " "))
		if question == "" {
			return call{}, errors.New("ask requires a question")
		}
		return call{method: http.MethodPost, path: base + "/questions", body: map[string]string{"question": question}}, nil
	}},
	{name: "turns", usage: "turns <id>", build: sessionCall("turns", http.MethodGet, "/turns")},
	{name: "sql", usage: "sql <id>", build: sessionCall("sql", http.MethodGet, "/sql")},
	{name: "history", usage: "history [session-id]", build: func(in invocation) (call, error) {
		query := url.Values{}
		if id := in.arg(0); id != "" {
			query.Set("session_id", id)
		}
		if in.limit > 0 {
			query.Set("limit", strconv.Itoa(in.limit))
		}
		return call{method: http.MethodGet, path: "/v1/history", query: query}, nil
	}},
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := writerOrDiscard(defaults.Stdout)
	stderr := writerOrDiscard(defaults.Stderr)

	flags := flag.NewFlagSet("querychatctl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	baseURL := flags.String("base-url", strings.TrimSpace(defaults.BaseURL), "querychat API base URL")
	timeout := flags.Duration("timeout", defaults.Timeout, "HTTP timeout (e.g. 90s)")
	limit := flags.Int("limit", 0, "row limit for the history command")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		writeUsage(stderr)
		return 2
	}

	c, err := resolve(flags.Arg(0), invocation{args: flags.Args()[1:], limit: *limit})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		if *timeout <= 0 {
			*timeout = defaultTimeout
		}
		client = &http.Client{Timeout: *timeout}
	}
	base := *baseURL
	if base == "" {
		base = defaultBaseURL
	}

	status, body, err := send(ctx, client, strings.TrimRight(base, "/"), c)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if status >= http.StatusBadRequest {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", status, describeError(body))
		return 1
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return 0
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, body, "", "  "); err != nil {
		_, _ = fmt.Fprintln(stdout, string(body))
		return 0
	}
	_, _ = fmt.Fprintln(stdout, indented.String())
	return 0
}

func resolve(name string, in invocation) (call, error) {
	name = strings.TrimSpace(name)
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd.build(in)
		}
	}
	return call{}, fmt.Errorf("unknown command %q", name)
}

func send(ctx context.Context, client *http.Client, base string, c call) (int, []byte, error) {
	endpoint := base + c.path
	if len(c.query) > 0 {
		endpoint += "?" + c.query.Encode()
	}
	var payload io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, endpoint, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// describeError renders the API error envelope on one line and falls back to
// the raw body for anything else.
func describeError(body []byte) string {
	var envelope struct {
		Code    string `json:"error_code"`
		Message string `json:"message"`
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Code == "" {
		return strings.TrimSpace(string(body))
	}
	line := envelope.Code
	if envelope.Message != "" {
		line += ": " + envelope.Message
	}
	if envelope.TraceID != "" {
		line += " (trace " + envelope.TraceID + ")"
	}
	return line
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: querychatctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "commands:")
	for _, cmd := range commands {
		_, _ = fmt.Fprintf(w, "  %s\n", cmd.usage)
	}
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
