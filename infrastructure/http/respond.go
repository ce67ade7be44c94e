package http

import (
	"chat-relay/api"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs client errors at debug and internal ones at error, then
// answers with the public taxonomy.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	class := errors.Kind(err)
	if class == errors.ClassInternal {
		log.Error("Request failed", "error", err)
	} else {
		log.Debug("Request rejected", "error", err)
	}
	writeJSON(w, errors.HTTPStatus(err), api.ErrorResponse{
		Error: api.Error{Code: string(class), Message: errors.PublicMessage(err)},
	})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}

// pageRequest reads first/after/last/before from the query string.
func pageRequest(r *http.Request) (api.PageRequest, error) {
	q := r.URL.Query()
	var page api.PageRequest
	for name, dst := range map[string]**int{"first": &page.First, "last": &page.Last} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return api.PageRequest{}, fmt.Errorf("%w: %s must be an integer", errors.ErrInvalidPayload, name)
		}
		*dst = &n
	}
	if q.Has("after") {
		after := q.Get("after")
		page.After = &after
	}
	if q.Has("before") {
		before := q.Get("before")
		page.Before = &before
	}
	return page, nil
}
