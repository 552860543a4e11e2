package syncer_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/syncer"
)

// fakeSource serves scripted pages keyed by cursor and records the cursors it
// was asked for.
type fakeSource struct {
	kind    string
	id      string
	pages   map[string]*syncer.PageResult
	pageErr map[string]error
	asked   []string

	composeErr map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		kind:       "tracker",
		id:         "proj-1",
		pages:      make(map[string]*syncer.PageResult),
		pageErr:    make(map[string]error),
		composeErr: make(map[string]error),
	}
}

func (s *fakeSource) Kind() string { return s.kind }
func (s *fakeSource) ID() string   { return s.id }

func (s *fakeSource) Page(ctx context.Context, cursor string, mode syncer.Mode) (*syncer.PageResult, error) {
	s.asked = append(s.asked, cursor)
	if err := s.pageErr[cursor]; err != nil {
		return nil, err
	}
	page, ok := s.pages[cursor]
	if !ok {
		return &syncer.PageResult{QuotaRemaining: -1}, nil
	}
	return page, nil
}

func (s *fakeSource) Compose(item *syncer.Item) (*syncer.Document, error) {
	if err := s.composeErr[item.ID]; err != nil {
		return nil, err
	}
	return &syncer.Document{
		Content:    "item " + item.ID,
		TypeHint:   "external_issue",
		GroupID:    "team-a",
		Source:     fmt.Sprintf("%s:%s/%s", s.kind, s.id, item.ID),
		ExternalID: item.ID,
		CreatedAt:  item.CreatedAt,
		Authority:  0.5,
	}, nil
}

func item(id, cursor string) *syncer.Item {
	return &syncer.Item{
		ID:        id,
		Payload:   json.RawMessage(`{}`),
		Cursor:    cursor,
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPaginatorWalksCursorChain(t *testing.T) {
	source := newFakeSource()
	source.pages[""] = &syncer.PageResult{
		Items: []*syncer.Item{item("1", "c1"), item("2", "c2")}, NextCursor: "c2", HasMore: true, QuotaRemaining: -1,
	}
	source.pages["c2"] = &syncer.PageResult{
		Items: []*syncer.Item{item("3", "c3")}, NextCursor: "c3", QuotaRemaining: -1,
	}

	p := syncer.NewPaginator(source, syncer.ModeIncremental, "")

	first, err := p.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Items, 2)

	second, err := p.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, second.Items, 1)

	// Exhausted.
	third, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, third)

	assert.Equal(t, []string{"", "c2"}, source.asked)
}

func TestPaginatorFullModeIgnoresStartCursor(t *testing.T) {
	source := newFakeSource()

	p := syncer.NewPaginator(source, syncer.ModeFull, "stale-cursor")
	_, err := p.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{""}, source.asked)
}

func TestPaginatorIncrementalResumesFromCursor(t *testing.T) {
	source := newFakeSource()

	p := syncer.NewPaginator(source, syncer.ModeIncremental, "c7")
	_, err := p.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"c7"}, source.asked)
}

func TestPaginatorPropagatesFetchError(t *testing.T) {
	source := newFakeSource()
	source.pageErr[""] = errors.New("upstream 500")

	p := syncer.NewPaginator(source, syncer.ModeIncremental, "")
	_, err := p.Next(context.Background())
	assert.Error(t, err)
}
