package pagination

import (
	"chat-relay/domain"
	"context"
)

// SliceSource paginates an in-memory slice already sorted by Less.
// Less defines the source order; it does not have to be ascending time.
type SliceSource[T any] struct {
	Items []T
	KeyOf func(T) domain.SortKey
	Less  func(a, b domain.SortKey) bool
}

func (s SliceSource[T]) Fetch(_ context.Context, window domain.Window) ([]T, error) {
	var out []T
	switch window.Direction {
	case domain.Forward:
		for _, item := range s.Items {
			if len(out) == window.Limit {
				break
			}
			if window.Anchor != nil && !s.Less(*window.Anchor, s.KeyOf(item)) {
				continue
			}
			out = append(out, item)
		}
	case domain.Backward:
		for i := len(s.Items) - 1; i >= 0; i-- {
			if len(out) == window.Limit {
				break
			}
			item := s.Items[i]
			if window.Anchor != nil && !s.Less(s.KeyOf(item), *window.Anchor) {
				continue
			}
			out = append(out, item)
		}
	}
	return out, nil
}
