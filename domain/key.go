package domain

import "time"

// SortKey is a total order over timestamped entities: At first, then ID.
type SortKey struct {
	At time.Time
	ID string
}

func (k SortKey) Less(other SortKey) bool {
	if !k.At.Equal(other.At) {
		return k.At.Before(other.At)
	}
	return k.ID < other.ID
}

func (k SortKey) Equal(other SortKey) bool {
	return k.At.Equal(other.At) && k.ID == other.ID
}

type Direction int

const (
	Forward Direction = iota
	Backward
)

// Window selects the items strictly after (Forward) or strictly before
// (Backward) the anchor. A nil anchor starts from the oldest or the newest item.
type Window struct {
	Anchor    *SortKey
	Direction Direction
	Limit     int
}
