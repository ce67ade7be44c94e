package http

import (
	"chat-relay/api"
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/services"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	log   *slog.Logger
	auth  services.IAuthService
	rooms services.IRoomService
	chat  services.IChatService
}

func NewHandler(log *slog.Logger, authService services.IAuthService,
	rooms services.IRoomService, chat services.IChatService) *Handler {
	return &Handler{log: log, auth: authService, rooms: rooms, chat: chat}
}

// POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req api.AuthRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	session, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.AuthResponse{Token: session.Token, User: api.FromUser(session.User)})
}

// POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req api.AuthRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	session, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, api.AuthResponse{Token: session.Token, User: api.FromUser(session.User)})
}

// GET /me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())
	user, err := h.auth.Me(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromUser(user))
}

// POST /rooms
func (h *Handler) GetOrCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req api.GetOrCreateRoomRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := auth.Struct(req); err != nil {
		writeError(w, h.log, err)
		return
	}
	userID, _ := auth.UserFromContext(r.Context())
	room, err := h.rooms.GetOrCreateRoom(r.Context(), userID, domain.UserID(req.OtherUserID))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromRoom(room))
}

// GET /rooms?first=&after=&last=&before=
func (h *Handler) Rooms(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	userID, _ := auth.UserFromContext(r.Context())
	connection, err := h.rooms.Rooms(r.Context(), userID, page.Args())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, api.MapConnection(connection, api.FromRoom))
}

// GET /rooms/{roomID}/messages?first=&after=&last=&before=
func (h *Handler) RoomMessages(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	userID, _ := auth.UserFromContext(r.Context())
	roomID := domain.RoomID(chi.URLParam(r, "roomID"))
	connection, err := h.chat.RoomMessages(r.Context(), userID, roomID, page.Args())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, api.MapConnection(connection, api.FromMessage))
}

// POST /rooms/{roomID}/messages
func (h *Handler) StoreMessage(w http.ResponseWriter, r *http.Request) {
	var req api.StoreMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	userID, _ := auth.UserFromContext(r.Context())
	roomID := domain.RoomID(chi.URLParam(r, "roomID"))
	message, err := h.chat.StoreMessage(r.Context(), userID, roomID, req.Content)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromMessage(message))
}

// GET /rooms/{roomID}/search?q=&limit=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, h.log, fmt.Errorf("%w: limit must be an integer", errors.ErrInvalidPayload))
			return
		}
		limit = n
	}
	userID, _ := auth.UserFromContext(r.Context())
	roomID := domain.RoomID(chi.URLParam(r, "roomID"))
	messages, err := h.chat.Search(r.Context(), userID, roomID, r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SearchResponse{Messages: api.FromMessages(messages)})
}
