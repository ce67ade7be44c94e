// Package pagination implements relay-style cursor connections over any
// ordered source. Pages are anchored on sort keys, never on offsets, so
// concurrent inserts cannot make a reader repeat or skip items.
package pagination

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"slices"

	"github.com/samber/lo"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// Args holds the two exclusive pairings: First/After walks forward,
// Last/Before walks backward.
type Args struct {
	First  *int
	After  *string
	Last   *int
	Before *string
}

// Source returns up to window.Limit items strictly past the anchor, in walk
// order: ascending when going forward, descending when going backward.
type Source[T any] interface {
	Fetch(ctx context.Context, window domain.Window) ([]T, error)
}

type SourceFunc[T any] func(ctx context.Context, window domain.Window) ([]T, error)

func (f SourceFunc[T]) Fetch(ctx context.Context, window domain.Window) ([]T, error) {
	return f(ctx, window)
}

type Edge[T any] struct {
	Cursor string `json:"cursor"`
	Node   T      `json:"node"`
}

type PageInfo struct {
	HasNextPage     bool    `json:"hasNextPage"`
	HasPreviousPage bool    `json:"hasPreviousPage"`
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
}

type Connection[T any] struct {
	Edges    []Edge[T] `json:"edges"`
	PageInfo PageInfo  `json:"pageInfo"`
}

func (c Connection[T]) Nodes() []T {
	return lo.Map(c.Edges, func(e Edge[T], _ int) T { return e.Node })
}

type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}

func DefaultConfig() Config {
	return Config{DefaultPageSize: DefaultPageSize, MaxPageSize: MaxPageSize}
}

// Resolve validates the arguments and turns them into a source window of
// size+1 items, the extra one only telling whether another page exists.
func (c Config) Resolve(args Args) (domain.Window, int, error) {
	forward := args.First != nil || args.After != nil
	backward := args.Last != nil || args.Before != nil
	if forward && backward {
		return domain.Window{}, 0, errors.ErrInvalidPagination
	}

	window := domain.Window{Direction: domain.Forward}
	size, raw := args.First, args.After
	if backward {
		window.Direction = domain.Backward
		size, raw = args.Last, args.Before
	}

	limit := c.DefaultPageSize
	if size != nil {
		if *size < 0 {
			return domain.Window{}, 0, errors.ErrNegativePageSize
		}
		limit = *size
	}
	if c.MaxPageSize > 0 && limit > c.MaxPageSize {
		limit = c.MaxPageSize
	}

	if raw != nil {
		key, err := DecodeCursor(*raw)
		if err != nil {
			return domain.Window{}, 0, err
		}
		window.Anchor = &key
	}
	window.Limit = limit + 1
	return window, limit, nil
}

// Paginate fetches one page from source. Edges are always returned in
// ascending source order, whatever the walk direction.
func Paginate[T any](ctx context.Context, cfg Config, source Source[T],
	keyOf func(T) domain.SortKey, args Args) (Connection[T], error) {
	window, limit, err := cfg.Resolve(args)
	if err != nil {
		return Connection[T]{}, err
	}

	items, err := source.Fetch(ctx, window)
	if err != nil {
		return Connection[T]{}, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	if window.Direction == domain.Backward {
		slices.Reverse(items)
	}

	connection := Connection[T]{
		Edges: lo.Map(items, func(item T, _ int) Edge[T] {
			return Edge[T]{Cursor: EncodeCursor(keyOf(item)), Node: item}
		}),
	}
	// The anchor itself is never deleted, so a cursor proves there is a page
	// on its other side.
	switch window.Direction {
	case domain.Forward:
		connection.PageInfo.HasNextPage = hasMore
		connection.PageInfo.HasPreviousPage = window.Anchor != nil
	case domain.Backward:
		connection.PageInfo.HasPreviousPage = hasMore
		connection.PageInfo.HasNextPage = window.Anchor != nil
	}
	if len(connection.Edges) > 0 {
		connection.PageInfo.StartCursor = lo.ToPtr(connection.Edges[0].Cursor)
		connection.PageInfo.EndCursor = lo.ToPtr(connection.Edges[len(connection.Edges)-1].Cursor)
	}
	return connection, nil
}
