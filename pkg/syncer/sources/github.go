// Package sources provides the source-specific composers for the sync
// framework: a source-control host (GitHub issues and pull requests) and a
// generic issue tracker. Each source owns its native pagination and its
// payload decoding; everything else lives in the framework.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/engram-ai/engram-go/pkg/syncer"
)

// GitHubConfig contains configuration for creating a GitHub source.
type GitHubConfig struct {
	// Owner and Repo identify the repository to mirror.
	Owner string
	Repo  string

	// Token is the API token; empty means unauthenticated requests.
	Token string

	// GroupID is the tenant composed documents belong to.
	GroupID string

	// BaseURL overrides the API endpoint (GitHub Enterprise). Empty selects
	// https://api.github.com.
	BaseURL string

	// PageSize is the per-page item count. Zero selects 50.
	PageSize int

	// HTTPClient overrides the HTTP client, mainly for tests.
	HTTPClient *http.Client
}

// GitHubSource mirrors a repository's issues and pull requests.
//
// Pagination is cursor-token based: the cursor is the updated_at timestamp of
// the last processed item, and each page asks for items updated since it, in
// ascending update order. Replaying a cursor refetches at most the items that
// share that timestamp, which the pipeline's deterministic ids absorb.
type GitHubSource struct {
	cfg    GitHubConfig
	client *http.Client
}

// NewGitHubSource creates a GitHub source.
func NewGitHubSource(cfg GitHubConfig) (*GitHubSource, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("sources: github owner and repo are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GitHubSource{cfg: cfg, client: client}, nil
}

// Kind returns "github".
func (s *GitHubSource) Kind() string { return "github" }

// ID returns "owner/repo".
func (s *GitHubSource) ID() string { return s.cfg.Owner + "/" + s.cfg.Repo }

// githubIssue is the subset of the API payload the source needs for paging
// and composition. The pull_request field is the variant tag: present on pull
// requests, absent on plain issues.
type githubIssue struct {
	Number    int             `json:"number"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	State     string          `json:"state"`
	HTMLURL   string          `json:"html_url"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	PullReq   json.RawMessage `json:"pull_request"`
	Labels    []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// Page fetches one page of issues updated since the cursor.
func (s *GitHubSource) Page(ctx context.Context, cursor string, mode syncer.Mode) (*syncer.PageResult, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/issues", s.cfg.BaseURL, s.cfg.Owner, s.cfg.Repo)

	params := url.Values{}
	params.Set("state", "all")
	params.Set("sort", "updated")
	params.Set("direction", "asc")
	params.Set("per_page", strconv.Itoa(s.cfg.PageSize))
	if mode == syncer.ModeIncremental && cursor != "" {
		params.Set("since", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("sources: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sources: github request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sources: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sources: github status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var issues []json.RawMessage
	if err := json.Unmarshal(body, &issues); err != nil {
		return nil, fmt.Errorf("sources: decode page: %w", err)
	}

	page := &syncer.PageResult{
		QuotaRemaining: quotaRemaining(resp.Header),
		ResetAfter:     quotaResetAfter(resp.Header),
		HasMore:        len(issues) == s.cfg.PageSize,
	}
	for _, raw := range issues {
		var head struct {
			Number    int       `json:"number"`
			CreatedAt time.Time `json:"created_at"`
			UpdatedAt time.Time `json:"updated_at"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			continue
		}
		page.Items = append(page.Items, &syncer.Item{
			ID:        strconv.Itoa(head.Number),
			Payload:   raw,
			Cursor:    head.UpdatedAt.UTC().Format(time.RFC3339),
			CreatedAt: head.CreatedAt,
		})
	}
	if n := len(page.Items); n > 0 {
		page.NextCursor = page.Items[n-1].Cursor
		// A full page whose items all share one second-granularity
		// updated_at reproduces the incoming cursor; step one second past
		// it so the walk cannot stall on a repeated page.
		if page.HasMore && cursor != "" && page.NextCursor == cursor {
			if ts, err := time.Parse(time.RFC3339, cursor); err == nil {
				page.NextCursor = ts.Add(time.Second).UTC().Format(time.RFC3339)
			}
		}
	} else {
		page.NextCursor = cursor
		page.HasMore = false
	}
	return page, nil
}

// Compose converts one issue or pull request into a canonical document.
//
// The payload variant is decided here and only here: a pull_request field
// tags the item as a pull request.
func (s *GitHubSource) Compose(item *syncer.Item) (*syncer.Document, error) {
	var issue githubIssue
	if err := json.Unmarshal(item.Payload, &issue); err != nil {
		return nil, fmt.Errorf("sources: decode issue %s: %w", item.ID, err)
	}
	if issue.Number == 0 || issue.Title == "" {
		return nil, fmt.Errorf("sources: issue %s: missing number or title", item.ID)
	}

	kind := "Issue"
	if len(issue.PullReq) > 0 {
		kind = "Pull request"
	}

	content := fmt.Sprintf("%s #%d: %s", kind, issue.Number, issue.Title)
	if issue.Body != "" {
		content += "\n\n" + issue.Body
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.Name)
	}

	return &syncer.Document{
		Content:    content,
		TypeHint:   "external_issue",
		GroupID:    s.cfg.GroupID,
		Source:     fmt.Sprintf("github:%s/%s#%d", s.cfg.Owner, s.cfg.Repo, issue.Number),
		ExternalID: strconv.Itoa(issue.Number),
		CreatedAt:  issue.CreatedAt,
		Authority:  0.5,
		Metadata: map[string]interface{}{
			"state":  issue.State,
			"url":    issue.HTMLURL,
			"labels": labels,
			"kind":   kind,
		},
	}, nil
}

func quotaRemaining(h http.Header) int {
	v := h.Get("X-RateLimit-Remaining")
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func quotaResetAfter(h http.Header) time.Duration {
	v := h.Get("X-RateLimit-Reset")
	if v == "" {
		return 0
	}
	epoch, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	until := time.Until(time.Unix(epoch, 0))
	if until < 0 {
		return 0
	}
	return until
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
