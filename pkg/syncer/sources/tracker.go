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

// TrackerConfig contains configuration for creating an issue tracker source.
type TrackerConfig struct {
	// BaseURL is the tracker API root, e.g. https://tracker.example.com/api.
	BaseURL string

	// Project is the tracker project key to mirror.
	Project string

	// Token is the API token.
	Token string

	// GroupID is the tenant composed documents belong to.
	GroupID string

	// PageSize is the per-page item count. Zero selects 50.
	PageSize int

	// HTTPClient overrides the HTTP client, mainly for tests.
	HTTPClient *http.Client
}

// TrackerSource mirrors issues and comments from a generic issue tracker.
//
// Pagination is offset-based: the cursor is the decimal offset of the next
// item, encoded as a string so the framework stays cursor-shaped.
type TrackerSource struct {
	cfg    TrackerConfig
	client *http.Client
}

// NewTrackerSource creates a tracker source.
func NewTrackerSource(cfg TrackerConfig) (*TrackerSource, error) {
	if cfg.BaseURL == "" || cfg.Project == "" {
		return nil, fmt.Errorf("sources: tracker base URL and project are required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TrackerSource{cfg: cfg, client: client}, nil
}

// Kind returns "tracker".
func (s *TrackerSource) Kind() string { return "tracker" }

// ID returns the project key.
func (s *TrackerSource) ID() string { return s.cfg.Project }

// trackerItem is the tracker's tagged-variant payload: Type discriminates
// between "issue" and "comment".
type trackerItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	Author    string    `json:"author"`
	IssueKey  string    `json:"issue_key"`
	CreatedAt time.Time `json:"created_at"`
}

type trackerPage struct {
	Items []json.RawMessage `json:"items"`
	Total int               `json:"total"`
}

// Page fetches one page of items at the cursor's offset.
func (s *TrackerSource) Page(ctx context.Context, cursor string, mode syncer.Mode) (*syncer.PageResult, error) {
	offset := 0
	if mode == syncer.ModeIncremental && cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("sources: bad tracker cursor %q: %w", cursor, err)
		}
		offset = n
	}

	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(s.cfg.PageSize))

	endpoint := fmt.Sprintf("%s/projects/%s/items", s.cfg.BaseURL, url.PathEscape(s.cfg.Project))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("sources: build request: %w", err)
	}
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sources: tracker request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sources: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sources: tracker status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var tp trackerPage
	if err := json.Unmarshal(body, &tp); err != nil {
		return nil, fmt.Errorf("sources: decode page: %w", err)
	}

	page := &syncer.PageResult{
		QuotaRemaining: quotaRemaining(resp.Header),
		ResetAfter:     quotaResetAfter(resp.Header),
	}
	for i, raw := range tp.Items {
		var head struct {
			ID        string    `json:"id"`
			CreatedAt time.Time `json:"created_at"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			continue
		}
		page.Items = append(page.Items, &syncer.Item{
			ID:        head.ID,
			Payload:   raw,
			Cursor:    strconv.Itoa(offset + i + 1),
			CreatedAt: head.CreatedAt,
		})
	}

	next := offset + len(tp.Items)
	page.NextCursor = strconv.Itoa(next)
	page.HasMore = next < tp.Total && len(tp.Items) > 0
	return page, nil
}

// Compose converts one tracker item into a canonical document.
//
// The Type field is the variant tag; issues and comments carry different
// authority and memory types. Unknown types are permanent-item failures.
func (s *TrackerSource) Compose(item *syncer.Item) (*syncer.Document, error) {
	var ti trackerItem
	if err := json.Unmarshal(item.Payload, &ti); err != nil {
		return nil, fmt.Errorf("sources: decode tracker item %s: %w", item.ID, err)
	}

	switch ti.Type {
	case "issue":
		content := fmt.Sprintf("[%s] %s", ti.Key, ti.Title)
		if ti.Body != "" {
			content += "\n\n" + ti.Body
		}
		return &syncer.Document{
			Content:    content,
			TypeHint:   "external_issue",
			GroupID:    s.cfg.GroupID,
			Source:     fmt.Sprintf("tracker:%s/%s", s.cfg.Project, ti.Key),
			ExternalID: ti.ID,
			CreatedAt:  ti.CreatedAt,
			Authority:  0.5,
			Metadata: map[string]interface{}{
				"status": ti.Status,
				"key":    ti.Key,
			},
		}, nil

	case "comment":
		if ti.Body == "" {
			return nil, fmt.Errorf("sources: comment %s: empty body", item.ID)
		}
		content := fmt.Sprintf("Comment on %s by %s:\n\n%s", ti.IssueKey, ti.Author, ti.Body)
		return &syncer.Document{
			Content:    content,
			TypeHint:   "external_comment",
			GroupID:    s.cfg.GroupID,
			Source:     fmt.Sprintf("tracker:%s/%s/comment/%s", s.cfg.Project, ti.IssueKey, ti.ID),
			ExternalID: ti.ID,
			CreatedAt:  ti.CreatedAt,
			Authority:  0.4,
			Metadata: map[string]interface{}{
				"issue_key": ti.IssueKey,
				"author":    ti.Author,
			},
		}, nil

	default:
		return nil, fmt.Errorf("sources: tracker item %s: unsupported type %q", item.ID, ti.Type)
	}
}
