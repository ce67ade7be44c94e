package storage

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Row is a human readable view of one stored key, used by the inspect tools.
type Row struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Namespace string
	Detail    string
}

const timeLayout = "2006-01-02 15:04:05"

// Describe decodes a raw key/value pair according to the key layout.
// Unknown or undecodable values fall back to their size.
func Describe(key string, val []byte) Row {
	row := Row{
		Key:       key,
		Type:      "RAW",
		Timestamp: "-",
		EntityID:  "-",
		Namespace: "-",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	switch {
	case strings.HasPrefix(key, messagePrefix):
		row.Type = "MESSAGE"
		if m, err := UnmarshalMessage(val); err == nil {
			row.EntityID = m.ID
			row.Namespace = string(m.RoomID)
			row.Timestamp = m.SentAt.Format(timeLayout)
			row.Detail = fmt.Sprintf("%s: %s", m.SenderID, m.Content)
		}
	case strings.HasPrefix(key, headPrefix):
		row.Type = "HEAD"
		row.Namespace = strings.TrimPrefix(key, headPrefix)
		if len(val) == 8 {
			row.Timestamp = time.Unix(0, int64(binary.BigEndian.Uint64(val))).UTC().Format(timeLayout)
		}
	case strings.HasPrefix(key, roomPrefix):
		row.Type = "ROOM"
		if r, err := UnmarshalRoom(val); err == nil {
			row.EntityID = string(r.ID)
			row.Timestamp = r.CreatedAt.Format(timeLayout)
			row.Detail = fmt.Sprintf("%s <-> %s", r.Participants[0], r.Participants[1])
			if r.LastMessage != nil {
				row.Detail += ", last " + r.LastMessage.SentAt.Format(timeLayout)
			}
		}
	case strings.HasPrefix(key, pairPrefix):
		row.Type = "PAIR"
		row.EntityID = string(val)
	case strings.HasPrefix(key, userRoomPrefix):
		row.Type = "USER_ROOM"
		if parts := strings.Split(strings.TrimPrefix(key, userRoomPrefix), ":"); len(parts) == 2 {
			row.Namespace, row.EntityID = parts[0], parts[1]
		}
	case strings.HasPrefix(key, userPrefix):
		row.Type = "USER"
		if u, err := UnmarshalUser(val); err == nil {
			row.EntityID = string(u.ID)
			row.Timestamp = u.CreatedAt.Format(timeLayout)
			row.Detail = u.Username
		}
	case strings.HasPrefix(key, usernamePrefix):
		row.Type = "USERNAME"
		row.EntityID = string(val)
	}
	return row
}

// Scan describes every key under prefix, in key order, up to limit rows
// (0 means no limit).
func Scan(db *badger.DB, prefix string, limit int) ([]Row, error) {
	var rows []Row
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if limit > 0 && len(rows) == limit {
				return nil
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				rows = append(rows, Describe(string(item.Key()), val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}
