package pagination

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name string
	At   time.Time
}

func keyOf(i item) domain.SortKey { return domain.SortKey{At: i.At, ID: i.Name} }

func ascending(a, b domain.SortKey) bool { return a.Less(b) }

func newSource(names ...string) *SliceSource[item] {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	items := lo.Map(names, func(name string, i int) item {
		return item{Name: name, At: base.Add(time.Duration(i) * time.Second)}
	})
	return &SliceSource[item]{Items: items, KeyOf: keyOf, Less: ascending}
}

func names(c Connection[item]) []string {
	return lo.Map(c.Nodes(), func(i item, _ int) string { return i.Name })
}

func TestPaginate_Forward(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	source := newSource("A", "B", "C", "D", "E")

	// When reading the two first items
	page, err := Paginate[item](ctx, DefaultConfig(), source, keyOf, Args{First: lo.ToPtr(2)})
	req.NoError(err)

	// Then
	req.Equal([]string{"A", "B"}, names(page))
	req.True(page.PageInfo.HasNextPage)
	req.False(page.PageInfo.HasPreviousPage)
	req.Equal(page.Edges[1].Cursor, *page.PageInfo.EndCursor)

	// When following the end cursor
	page, err = Paginate[item](ctx, DefaultConfig(), source, keyOf,
		Args{First: lo.ToPtr(2), After: page.PageInfo.EndCursor})
	req.NoError(err)
	req.Equal([]string{"C", "D"}, names(page))
	req.True(page.PageInfo.HasNextPage)
	req.True(page.PageInfo.HasPreviousPage)

	// Then the last page has no next page
	page, err = Paginate[item](ctx, DefaultConfig(), source, keyOf,
		Args{First: lo.ToPtr(2), After: page.PageInfo.EndCursor})
	req.NoError(err)
	req.Equal([]string{"E"}, names(page))
	req.False(page.PageInfo.HasNextPage)
}

func TestPaginate_Backward(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	source := newSource("A", "B", "C", "D", "E")

	// When reading the two last items
	page, err := Paginate[item](ctx, DefaultConfig(), source, keyOf, Args{Last: lo.ToPtr(2)})
	req.NoError(err)

	// Then they are still returned oldest first
	req.Equal([]string{"D", "E"}, names(page))
	req.True(page.PageInfo.HasPreviousPage)
	req.False(page.PageInfo.HasNextPage)

	page, err = Paginate[item](ctx, DefaultConfig(), source, keyOf,
		Args{Last: lo.ToPtr(2), Before: page.PageInfo.StartCursor})
	req.NoError(err)
	req.Equal([]string{"B", "C"}, names(page))
	req.True(page.PageInfo.HasPreviousPage)
	req.True(page.PageInfo.HasNextPage)

	page, err = Paginate[item](ctx, DefaultConfig(), source, keyOf,
		Args{Last: lo.ToPtr(2), Before: page.PageInfo.StartCursor})
	req.NoError(err)
	req.Equal([]string{"A"}, names(page))
	req.False(page.PageInfo.HasPreviousPage)
}

func TestPaginate_InsertBetweenFetches(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	source := newSource("A", "B", "C", "D")

	page, err := Paginate[item](ctx, DefaultConfig(), source, keyOf, Args{First: lo.ToPtr(2)})
	req.NoError(err)
	req.Equal([]string{"A", "B"}, names(page))

	// Given a new item lands at the end while the reader is paging
	last := source.Items[len(source.Items)-1]
	source.Items = append(source.Items, item{Name: "E", At: last.At.Add(time.Second)})

	// Then the next page neither repeats nor skips
	page, err = Paginate[item](ctx, DefaultConfig(), source, keyOf,
		Args{First: lo.ToPtr(2), After: page.PageInfo.EndCursor})
	req.NoError(err)
	req.Equal([]string{"C", "D"}, names(page))
	req.True(page.PageInfo.HasNextPage)
}

func TestPaginate_DefaultAndClampedSize(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	source := newSource("A", "B", "C", "D", "E")
	cfg := Config{DefaultPageSize: 3, MaxPageSize: 4}

	page, err := Paginate[item](ctx, cfg, source, keyOf, Args{})
	req.NoError(err)
	req.Equal([]string{"A", "B", "C"}, names(page))

	page, err = Paginate[item](ctx, cfg, source, keyOf, Args{First: lo.ToPtr(50)})
	req.NoError(err)
	req.Len(page.Edges, 4)
	req.True(page.PageInfo.HasNextPage)

	page, err = Paginate[item](ctx, cfg, source, keyOf, Args{First: lo.ToPtr(0)})
	req.NoError(err)
	req.Empty(page.Edges)
	req.True(page.PageInfo.HasNextPage)
	req.Nil(page.PageInfo.EndCursor)
}

func TestPaginate_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	source := newSource("A", "B")
	tests := []struct {
		name string
		args Args
		want error
	}{
		{"first with last", Args{First: lo.ToPtr(1), Last: lo.ToPtr(1)}, errors.ErrInvalidPagination},
		{"after with before", Args{After: lo.ToPtr("x"), Before: lo.ToPtr("y")}, errors.ErrInvalidPagination},
		{"first with before", Args{First: lo.ToPtr(1), Before: lo.ToPtr("y")}, errors.ErrInvalidPagination},
		{"negative first", Args{First: lo.ToPtr(-1)}, errors.ErrNegativePageSize},
		{"malformed cursor", Args{After: lo.ToPtr("%%%")}, errors.ErrInvalidCursor},
		{"not json", Args{Before: lo.ToPtr("bm90LWpzb24")}, errors.ErrInvalidCursor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			_, err := Paginate[item](ctx, DefaultConfig(), source, keyOf, tt.args)
			req.ErrorIs(err, tt.want)
			req.ErrorIs(err, errors.ErrInvalidPayload)
		})
	}
}

func TestCursor_RoundTrip(t *testing.T) {
	req := require.New(t)
	key := domain.SortKey{At: time.Unix(0, 1767268800123456789).UTC(), ID: "0195f0c2-7d4e-7b1a-9f00-3a5c8e2b1d77"}

	decoded, err := DecodeCursor(EncodeCursor(key))

	req.NoError(err)
	req.True(key.Equal(decoded))
}

func TestSliceSource_DescendingOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	source := newSource("A", "B", "C")
	// Given a source ordered newest first
	source.Items = []item{source.Items[2], source.Items[1], source.Items[0]}
	source.Less = func(a, b domain.SortKey) bool { return b.Less(a) }

	page, err := Paginate[item](ctx, DefaultConfig(), source, keyOf, Args{First: lo.ToPtr(2)})
	req.NoError(err)
	req.Equal([]string{"C", "B"}, names(page))

	page, err = Paginate[item](ctx, DefaultConfig(), source, keyOf,
		Args{First: lo.ToPtr(2), After: page.PageInfo.EndCursor})
	req.NoError(err)
	req.Equal([]string{"A"}, names(page))
}
