package pagination

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// cursor is the wire form of a sort key. Clients must treat it as opaque.
type cursor struct {
	At int64  `json:"t"`
	ID string `json:"id"`
}

func EncodeCursor(key domain.SortKey) string {
	// Marshalling a struct of an int64 and a string cannot fail.
	data, _ := json.Marshal(cursor{At: key.At.UnixNano(), ID: key.ID})
	return base64.RawURLEncoding.EncodeToString(data)
}

func DecodeCursor(s string) (domain.SortKey, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return domain.SortKey{}, fmt.Errorf("%w: decode base64: %v", errors.ErrInvalidCursor, err)
	}
	var c cursor
	if err = json.Unmarshal(data, &c); err != nil {
		return domain.SortKey{}, fmt.Errorf("%w: decode json: %v", errors.ErrInvalidCursor, err)
	}
	if c.ID == "" {
		return domain.SortKey{}, fmt.Errorf("%w: missing id", errors.ErrInvalidCursor)
	}
	return domain.SortKey{At: time.Unix(0, c.At).UTC(), ID: c.ID}, nil
}
