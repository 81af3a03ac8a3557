package askbictl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   any
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("askbictl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "askbi API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Minute), "HTTP timeout (e.g. 30s)")
	model := fs.String("model", "", "LookML model for explore commands")
	explore := fs.String("explore", "", "explore name for explore commands")
	feedback := fs.String("feedback", "none", "feedback verdict: up|down|none")
	result := fs.String("result", "", "explore URL or query id the feedback refers to")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	req, err := buildRequest(command, rest, *model, *explore, *feedback, *result)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, *apiKey, req.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildRequest(command string, args []string, model, explore, feedback, result string) (request, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	needExplore := func() error {
		if strings.TrimSpace(model) == "" || strings.TrimSpace(explore) == "" {
			return fmt.Errorf("%s requires -model and -explore", command)
		}
		return nil
	}

	switch command {
	case "health":
		return request{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return request{method: http.MethodGet, path: "/v1/ready"}, nil
	case "fields":
		if err := needExplore(); err != nil {
			return request{}, err
		}
		return request{method: http.MethodGet, path: "/v1/explores/" + url.PathEscape(model) + "/" + url.PathEscape(explore) + "/fields"}, nil
	case "translate":
		if err := needExplore(); err != nil {
			return request{}, err
		}
		if question == "" {
			return request{}, fmt.Errorf("translate requires a question")
		}
		return request{method: http.MethodPost, path: "/v1/explore/translate", body: map[string]string{
			"model": model, "explore": explore, "question": question,
		}}, nil
	case "answer":
		if len(args) < 2 {
			return request{}, fmt.Errorf("answer requires a query id and a question")
		}
		return request{method: http.MethodPost, path: "/v1/explore/answer", body: map[string]string{
			"query_id": args[0], "question": strings.Join(args[1:], " "),
		}}, nil
	case "feedback":
		if err := needExplore(); err != nil {
			return request{}, err
		}
		if question == "" {
			return request{}, fmt.Errorf("feedback requires the question it refers to")
		}
		return request{method: http.MethodPost, path: "/v1/explore/feedback", body: map[string]string{
			"model": model, "explore": explore, "question": question, "result": result, "feedback": feedback,
		}}, nil
	case "prompts":
		path := "/v1/explore/prompts"
		if model != "" && explore != "" {
			path += "?" + url.Values{"model": {model}, "explore": {explore}}.Encode()
		}
		return request{method: http.MethodGet, path: path}, nil
	case "dashboards":
		return request{method: http.MethodGet, path: "/v1/dashboards"}, nil
	case "summarize":
		if len(args) < 2 {
			return request{}, fmt.Errorf("summarize requires a dashboard id and a question")
		}
		return request{method: http.MethodPost, path: "/v1/dashboards/" + url.PathEscape(args[0]) + "/summarize", body: map[string]string{
			"question": strings.Join(args[1:], " "),
		}}, nil
	default:
		return request{}, fmt.Errorf("unknown command %q", command)
	}
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: askbictl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                          GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                           GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  fields                          GET /v1/explores/{model}/{explore}/fields")
	_, _ = fmt.Fprintln(w, "  translate <question>            POST /v1/explore/translate")
	_, _ = fmt.Fprintln(w, "  answer <query-id> <question>    POST /v1/explore/answer")
	_, _ = fmt.Fprintln(w, "  feedback <question>             POST /v1/explore/feedback")
	_, _ = fmt.Fprintln(w, "  prompts                         GET /v1/explore/prompts")
	_, _ = fmt.Fprintln(w, "  dashboards                      GET /v1/dashboards")
	_, _ = fmt.Fprintln(w, "  summarize <id> <question>       POST /v1/dashboards/{id}/summarize")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
