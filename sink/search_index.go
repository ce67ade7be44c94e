package sink

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/analysis/analyzer"
)

const (
	fieldRoomID   = "room_id"
	fieldSenderID = "sender_id"
	fieldContent  = "content"
	fieldSentAt   = "sent_at"
)

var contentAnalyzer = analyzer.NewStandardAnalyzer()

// SearchIndex keeps a full-text index of messages. It is fed by the fan-out
// worker, so a message becomes searchable shortly after it is stored.
type SearchIndex struct {
	log    *slog.Logger
	writer *bluge.Writer
}

func NewSearchIndex(log *slog.Logger, writer *bluge.Writer) *SearchIndex {
	return &SearchIndex{log: log, writer: writer}
}

func (s *SearchIndex) Name() string { return "search_index" }

// Consume implements contract.EventSink. Re-indexing the same message is a no-op
// because documents are keyed by message id.
func (s *SearchIndex) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessageAdded)
	if !ok {
		return nil
	}
	m := evt.Message
	doc := bluge.NewDocument(m.ID).
		AddField(bluge.NewKeywordField(fieldRoomID, string(m.RoomID)).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSenderID, string(m.SenderID)).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, m.Content).WithAnalyzer(contentAnalyzer).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldSentAt, m.SentAt).StoreValue().Sortable())

	if err := s.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", m.ID, err)
	}
	s.log.Debug("Message indexed", "room_id", m.RoomID, "message_id", m.ID)
	return nil
}

// Search implements contract.IMessageSearcher. Results are ranked by relevance.
func (s *SearchIndex) Search(ctx context.Context, roomID domain.RoomID, text string, limit int) ([]domain.Message, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: open search reader: %v", errors.ErrInternal, err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("Closing search reader failed", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(roomID)).SetField(fieldRoomID)).
		AddMust(bluge.NewMatchQuery(text).SetField(fieldContent).SetAnalyzer(contentAnalyzer))

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", errors.ErrInternal, err)
	}

	var results []domain.Message
	match, err := matches.Next()
	for err == nil && match != nil {
		var message domain.Message
		var visitErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				message.ID = string(value)
			case fieldRoomID:
				message.RoomID = domain.RoomID(value)
			case fieldSenderID:
				message.SenderID = domain.UserID(value)
			case fieldContent:
				message.Content = string(value)
			case fieldSentAt:
				var sentAt time.Time
				sentAt, visitErr = bluge.DecodeDateTime(value)
				message.SentAt = sentAt.UTC()
			}
			return visitErr == nil
		})
		if err == nil {
			err = visitErr
		}
		if err != nil {
			break
		}
		results = append(results, message)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read search results: %v", errors.ErrInternal, err)
	}
	return results, nil
}

func (s *SearchIndex) Close() error {
	return s.writer.Close()
}
