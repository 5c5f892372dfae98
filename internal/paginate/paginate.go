// Package paginate drives anchor/offset paginated remote collections.
package paginate

import (
	"context"
	"fmt"
	"log/slog"
)

// Policy decides when a paginated collection is exhausted.
type Policy int

const (
	// StopWithoutIndicator keeps paging only while the response carries a
	// has_more flag set to true or, lacking the flag, a continuation anchor.
	StopWithoutIndicator Policy = iota
	// StopOnHasMore keeps paging while has_more is true.
	StopOnHasMore
	// StopOnShortPage keeps paging until a page is shorter than the page size.
	StopOnShortPage
)

func (p Policy) String() string {
	switch p {
	case StopWithoutIndicator:
		return "stop_without_indicator"
	case StopOnHasMore:
		return "stop_on_has_more"
	case StopOnShortPage:
		return "stop_on_short_page"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Cursor addresses the page to request.
type Cursor struct {
	// Index is the zero-based page number.
	Index  int
	Anchor string
	Offset int
	Count  int
}

// Page is one fetched page.
type Page[T any] struct {
	Items   []T
	Anchor  string
	HasMore *bool
}

type FetchFunc[T any] func(ctx context.Context, cur Cursor) (Page[T], error)

// VisitFunc is called for every fetched page, in remote order.
type VisitFunc[T any] func(ctx context.Context, cur Cursor, page Page[T]) error

type Paginator struct {
	Policy   Policy
	PageSize int
	MaxPages int
	Logger   *slog.Logger
}

// Walk fetches pages sequentially until the policy reports exhaustion or
// MaxPages pages were fetched, handing each page to visit.
func Walk[T any](ctx context.Context, p Paginator, fetch FetchFunc[T], visit VisitFunc[T]) error {
	cur := Cursor{Count: p.PageSize}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := fetch(ctx, cur)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", cur.Index, err)
		}
		if err := visit(ctx, cur, page); err != nil {
			return err
		}

		if !more(p, cur, page) {
			return nil
		}

		if p.MaxPages > 0 && cur.Index+1 >= p.MaxPages {
			if p.Logger != nil {
				p.Logger.Warn("page limit reached, collection truncated",
					"policy", p.Policy.String(),
					"max_pages", p.MaxPages,
				)
			}
			return nil
		}

		cur = Cursor{
			Index:  cur.Index + 1,
			Anchor: page.Anchor,
			Offset: cur.Offset + len(page.Items),
			Count:  p.PageSize,
		}
	}
}

// Collect returns the union of all pages, preserving remote order.
func Collect[T any](ctx context.Context, p Paginator, fetch FetchFunc[T]) ([]T, error) {
	var all []T
	err := Walk(ctx, p, fetch, func(_ context.Context, _ Cursor, page Page[T]) error {
		all = append(all, page.Items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

func more[T any](p Paginator, cur Cursor, page Page[T]) bool {
	switch p.Policy {
	case StopOnShortPage:
		return p.PageSize > 0 && len(page.Items) >= p.PageSize
	case StopOnHasMore:
		if page.HasMore == nil || !*page.HasMore {
			return false
		}
	default:
		if page.HasMore != nil {
			if !*page.HasMore {
				return false
			}
		} else if page.Anchor == "" {
			return false
		}
	}
	// an anchor that does not advance would refetch the same page forever
	return !(cur.Index > 0 && page.Anchor != "" && page.Anchor == cur.Anchor)
}
