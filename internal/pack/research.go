package pack

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/clawinfra/taskclaw/internal/sandbox"
)

const researchSystemPrompt = `You are a research specialist. You gather, synthesise, and document information inside a sandboxed workspace.

You have these tools: read_file, write_file, list_files%s, and finish_task.

Rules:
- Write your findings into workspace files as you go; deliverables must exist as files.
- When the task is complete, call finish_task with: summary (your findings in a few sentences), deliverables (workspace-relative paths of the documents you produced), and sources (URLs or references consulted, may be empty).
- finish_task is rejected when summary or deliverables is empty.`

const fetchTimeout = 30 * time.Second

// ResearchPack gathers and documents information. Web tools are present
// only when the task allows network use, so an offline model can never
// even attempt them.
type ResearchPack struct {
	*basePack
	httpClient *http.Client
	searchURL  string
}

// BuildResearchPack constructs the pack. networkAllowed=false omits
// web_search and fetch_url from the tool definitions entirely.
func BuildResearchPack(workspacePath string, networkAllowed bool, logger *slog.Logger) *ResearchPack {
	policy := sandbox.NewPolicy(workspacePath, networkAllowed)

	webTools := ""
	if networkAllowed {
		webTools = ", web_search, fetch_url"
	}
	base := newBasePack(
		"research",
		fmt.Sprintf(researchSystemPrompt, webTools),
		[]string{"summary", "deliverables", "sources"},
		policy,
		logger,
	)
	p := &ResearchPack{
		basePack:   base,
		httpClient: &http.Client{Timeout: fetchTimeout},
	}

	p.registerFileTools()
	if networkAllowed {
		p.register(webSearchToolDef(), p.webSearch)
		p.register(fetchURLToolDef(), p.fetchURL)
	}
	p.register(MakeFinishToolDef(
		"Finish the task. Call this exactly once, after writing your deliverables to workspace files.",
		map[string]any{
			"summary":      map[string]any{"type": "string", "description": "Findings in a few sentences."},
			"deliverables": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Workspace-relative paths of produced documents."},
			"sources":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "URLs or references consulted."},
		},
		[]string{"summary", "deliverables", "sources"},
	), nil)

	return p
}

// SetSearchEndpoint points web_search at a SearxNG-compatible JSON
// endpoint. Unset, the tool reports a structured error.
func (p *ResearchPack) SetSearchEndpoint(endpoint string) { p.searchURL = endpoint }

func webSearchToolDef() map[string]any {
	return MakeToolDef("web_search",
		"Search the web and return result titles, URLs, and snippets.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":       map[string]any{"type": "string", "description": "Search query."},
				"max_results": map[string]any{"type": "integer", "description": "Result count hint, echoed back with the raw search response; results are not trimmed to it (default 5)."},
			},
			"required": []string{"query"},
		})
}

func fetchURLToolDef() map[string]any {
	return MakeToolDef("fetch_url",
		"Fetch a URL and return its body as text (truncated).",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "Absolute http(s) URL."},
			},
			"required": []string{"url"},
		})
}

func (p *ResearchPack) webSearch(ctx context.Context, args map[string]any) (map[string]any, error) {
	if p.searchURL == "" {
		return toolError(fmt.Errorf("web_search is not configured; set a search endpoint or use fetch_url with a known URL")), nil
	}
	query, _ := args["query"].(string)
	maxResults := 5
	if v, ok := args["max_results"].(float64); ok && v > 0 {
		maxResults = int(v)
	}

	endpoint := fmt.Sprintf("%s?q=%s&format=json", p.searchURL, url.QueryEscape(query))
	body, err := p.get(ctx, endpoint)
	if err != nil {
		return toolError(err), nil
	}
	return map[string]any{"results": firstNChars(body, p.policy.MaxOutputChars), "max_results": maxResults}, nil
}

func (p *ResearchPack) fetchURL(ctx context.Context, args map[string]any) (map[string]any, error) {
	raw, _ := args["url"].(string)
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return toolError(fmt.Errorf("url must be absolute http(s), got %q", raw)), nil
	}
	body, err := p.get(ctx, raw)
	if err != nil {
		return toolError(err), nil
	}
	return map[string]any{"url": raw, "content": firstNChars(body, p.policy.MaxOutputChars)}, nil
}

func (p *ResearchPack) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}
	limit := int64(sandbox.DefaultMaxOutputChars) * 4
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// ValidateFinishPayload enforces the research quality gate: a non-empty
// summary and at least one deliverable.
func (p *ResearchPack) ValidateFinishPayload(args map[string]any) string {
	if s, present := args["summary"]; present {
		str, ok := s.(string)
		if !ok || str == "" {
			return "finish_task rejected: summary must be a non-empty string describing your findings."
		}
	}
	if d, present := args["deliverables"]; present {
		items, ok := d.([]any)
		if !ok || len(items) == 0 {
			return "finish_task rejected: deliverables must list at least one workspace file you produced. Write your findings to a file first."
		}
	}
	return ""
}

func firstNChars(s string, n int) string {
	if n <= 0 {
		n = sandbox.DefaultMaxOutputChars
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("\n... [truncated %d chars]", len(s)-n)
}
