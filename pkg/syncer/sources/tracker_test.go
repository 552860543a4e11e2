package sources_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/syncer"
	"github.com/engram-ai/engram-go/pkg/syncer/sources"
)

func trackerSource(t *testing.T, handler http.HandlerFunc) *sources.TrackerSource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	source, err := sources.NewTrackerSource(sources.TrackerConfig{
		BaseURL:    server.URL,
		Project:    "PAY",
		GroupID:    "team-a",
		PageSize:   2,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	return source
}

func TestTrackerPageOffsetPagination(t *testing.T) {
	var gotOffset string
	source := trackerSource(t, func(w http.ResponseWriter, r *http.Request) {
		gotOffset = r.URL.Query().Get("offset")
		fmt.Fprint(w, `{"items": [
			{"id": "i-1", "type": "issue", "key": "PAY-1", "title": "a"},
			{"id": "i-2", "type": "issue", "key": "PAY-2", "title": "b"}
		], "total": 5}`)
	})

	page, err := source.Page(context.Background(), "2", syncer.ModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, "2", gotOffset)
	require.Len(t, page.Items, 2)
	// Per-item cursors are the offset after each item.
	assert.Equal(t, "3", page.Items[0].Cursor)
	assert.Equal(t, "4", page.Items[1].Cursor)
	assert.Equal(t, "4", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestTrackerPageLastPage(t *testing.T) {
	source := trackerSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": [{"id": "i-5", "type": "issue", "key": "PAY-5", "title": "e"}], "total": 5}`)
	})

	page, err := source.Page(context.Background(), "4", syncer.ModeIncremental)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Equal(t, "5", page.NextCursor)
}

func TestTrackerPageRejectsBadCursor(t *testing.T) {
	source := trackerSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": [], "total": 0}`)
	})

	_, err := source.Page(context.Background(), "not-a-number", syncer.ModeIncremental)
	assert.Error(t, err)
}

func TestTrackerComposeIssue(t *testing.T) {
	source := trackerSource(t, func(w http.ResponseWriter, r *http.Request) {})

	payload := []byte(`{"id": "i-1", "type": "issue", "key": "PAY-12", "title": "Refund totals drift", "body": "Totals drift on partial refunds.", "status": "open"}`)

	doc, err := source.Compose(&syncer.Item{ID: "i-1", Payload: payload})
	require.NoError(t, err)

	assert.Equal(t, "[PAY-12] Refund totals drift\n\nTotals drift on partial refunds.", doc.Content)
	assert.Equal(t, "external_issue", doc.TypeHint)
	assert.Equal(t, "tracker:PAY/PAY-12", doc.Source)
	assert.InDelta(t, 0.5, doc.Authority, 1e-9)
}

func TestTrackerComposeComment(t *testing.T) {
	source := trackerSource(t, func(w http.ResponseWriter, r *http.Request) {})

	payload := []byte(`{"id": "c-9", "type": "comment", "issue_key": "PAY-12", "author": "dana", "body": "Repro attached."}`)

	doc, err := source.Compose(&syncer.Item{ID: "c-9", Payload: payload})
	require.NoError(t, err)

	assert.Equal(t, "Comment on PAY-12 by dana:\n\nRepro attached.", doc.Content)
	assert.Equal(t, "external_comment", doc.TypeHint)
	assert.InDelta(t, 0.4, doc.Authority, 1e-9)
}

func TestTrackerComposeRejectsUnknownTypeAndEmptyComment(t *testing.T) {
	source := trackerSource(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := source.Compose(&syncer.Item{ID: "x", Payload: []byte(`{"id": "x", "type": "worklog"}`)})
	assert.ErrorContains(t, err, "unsupported type")

	_, err = source.Compose(&syncer.Item{ID: "c-1", Payload: []byte(`{"id": "c-1", "type": "comment", "body": ""}`)})
	assert.ErrorContains(t, err, "empty body")
}
