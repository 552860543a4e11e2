package syncer

import "context"

// Paginator is the one iterator contract that hides the source's pagination
// strategy. Cursor-token sources thread NextCursor through directly; offset
// sources encode the offset as the cursor string. The runner only ever sees
// Next.
type Paginator struct {
	source Source
	mode   Mode
	cursor string
	done   bool
}

// NewPaginator starts iteration at the given cursor. In full mode the cursor
// is ignored and iteration starts from the beginning.
func NewPaginator(source Source, mode Mode, cursor string) *Paginator {
	if mode == ModeFull {
		cursor = ""
	}
	return &Paginator{source: source, mode: mode, cursor: cursor}
}

// Next fetches the next page. It returns (nil, nil) when the source is
// exhausted.
func (p *Paginator) Next(ctx context.Context) (*PageResult, error) {
	if p.done {
		return nil, nil
	}

	page, err := p.source.Page(ctx, p.cursor, p.mode)
	if err != nil {
		return nil, err
	}

	if page == nil || (!page.HasMore && len(page.Items) == 0) {
		p.done = true
		if page != nil && len(page.Items) > 0 {
			return page, nil
		}
		return nil, nil
	}

	p.cursor = page.NextCursor
	if !page.HasMore {
		p.done = true
	}
	return page, nil
}

// Cursor reports the resume position for the next page.
func (p *Paginator) Cursor() string {
	return p.cursor
}
