package conversations

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/riseselfesteem/convosync/internal/domain"
	"github.com/riseselfesteem/convosync/internal/handlers"
	"github.com/riseselfesteem/convosync/internal/hub"
	"github.com/riseselfesteem/convosync/internal/middleware"
)

// Handler holds dependencies for the conversation module's HTTP handlers.
type Handler struct {
	service *Service
	hub     *hub.Hub
}

// NewHandler creates a new conversations handler with its dependencies.
func NewHandler(service *Service, h *hub.Hub) *Handler {
	return &Handler{service: service, hub: h}
}

// ParticipantResponse is the DTO for one conversation party.
type ParticipantResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role,omitempty"`
	Online bool   `json:"online"`
}

// RoomResponse is the DTO for one room list entry.
type RoomResponse struct {
	ID            string                `json:"id"`
	Participants  []ParticipantResponse `json:"participants"`
	Preview       string                `json:"preview"`
	LastActivity  *time.Time            `json:"last_activity,omitempty"`
	ActivityLabel string                `json:"activity_label"`
}

// MessageResponse is the DTO for one message log entry.
type MessageResponse struct {
	ID           string    `json:"id,omitempty"`
	RoomID       string    `json:"room_id"`
	SenderID     string    `json:"sender_id,omitempty"`
	SenderName   string    `json:"sender_name,omitempty"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
	Pending      bool      `json:"pending"`
	FromOperator bool      `json:"from_operator"`
}

// SendMessageRequest is the DTO for the send endpoint.
type SendMessageRequest struct {
	Body string `json:"body" validate:"required,min=1"`
}

// RoomsGet returns the ordered, filterable room list.
func (h *Handler) RoomsGet(c echo.Context) error {
	rooms, err := h.service.Rooms(c.Request().Context(), c.QueryParam("q"))
	if err != nil && len(rooms) == 0 {
		return c.JSON(http.StatusBadGateway, handlers.ErrorResponse{
			Code:    "upstream_unavailable",
			Message: "could not load conversations",
		})
	}
	if err != nil {
		// Stale-but-available: serve the cached snapshot, flag the failure.
		c.Response().Header().Set(handlers.HeaderStale, "true")
	}

	now := time.Now().UTC()
	out := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, h.newRoomResponse(room, now))
	}
	return c.JSON(http.StatusOK, out)
}

// MessagesGet selects a room and returns its message log.
func (h *Handler) MessagesGet(c echo.Context) error {
	roomID := c.Param("id")

	messages, err := h.service.SelectRoom(c.Request().Context(), roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return c.JSON(http.StatusNotFound, handlers.ErrorResponse{
			Code:    "room_not_found",
			Message: fmt.Sprintf("no conversation with id %s", roomID),
		})
	}
	if err != nil && len(messages) == 0 {
		return c.JSON(http.StatusBadGateway, handlers.ErrorResponse{
			Code:    "upstream_unavailable",
			Message: "could not load messages",
		})
	}
	if err != nil {
		c.Response().Header().Set(handlers.HeaderStale, "true")
	}

	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, newMessageResponse(m))
	}
	return c.JSON(http.StatusOK, out)
}

// MessagePost starts an optimistic send. It answers immediately with the
// provisional message; confirmation or rollback is reported through the
// event feed and the next log read.
func (h *Handler) MessagePost(c echo.Context) error {
	roomID := c.Param("id")

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, handlers.ErrorResponse{
			Code:    "bad_request",
			Message: "invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, handlers.ErrorResponse{
			Code:    "empty_body",
			Message: "message body must not be empty",
		})
	}

	provisional, result, err := h.service.Send(roomID, req.Body)
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return c.JSON(http.StatusNotFound, handlers.ErrorResponse{
			Code:    "room_not_found",
			Message: fmt.Sprintf("no conversation with id %s", roomID),
		})
	case errors.Is(err, domain.ErrSendQueueFull), errors.Is(err, domain.ErrShuttingDown):
		return c.JSON(http.StatusServiceUnavailable, handlers.ErrorResponse{
			Code:    "send_rejected",
			Message: err.Error(),
		})
	case err != nil:
		return c.JSON(http.StatusBadRequest, handlers.ErrorResponse{
			Code:    "send_rejected",
			Message: err.Error(),
		})
	}

	// The outcome lands on the event feed; log it here so a failed send is
	// visible even with no websocket clients attached.
	logger := middleware.FromContext(c.Request().Context())
	go func() {
		if res := <-result; res.Err != nil {
			logger.Warn("Send rolled back", "room_id", roomID, "provisional_id", provisional.ID, "error", res.Err)
		}
	}()

	return c.JSON(http.StatusAccepted, newMessageResponse(provisional))
}

// ServeWS upgrades to a websocket and streams conversation change events.
// The optional ?room= query narrows the feed to one conversation.
func (h *Handler) ServeWS(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// The dashboard is served from a different origin than this service.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return c.String(http.StatusInternalServerError, "Failed to upgrade to WebSocket")
	}

	sub := &hub.Subscriber{
		RoomID: c.QueryParam("room"),
		Send:   make(chan []byte, 64),
	}
	h.hub.Register <- sub

	ctx := c.Request().Context()

	// Inbound frames are not part of the contract; the read loop only
	// surfaces disconnects.
	go func() {
		defer func() { h.hub.Unregister <- sub }()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for payload := range sub.Send {
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			break
		}
	}

	conn.Close(websocket.StatusNormalClosure, "")
	return nil
}

func (h *Handler) newRoomResponse(room domain.Room, now time.Time) RoomResponse {
	resp := RoomResponse{
		ID:      room.ID,
		Preview: room.Preview,
	}
	for _, p := range room.Participants {
		resp.Participants = append(resp.Participants, ParticipantResponse{
			ID:     p.ID,
			Name:   p.Name,
			Avatar: p.Avatar,
			Role:   p.Role,
			Online: p.Online,
		})
	}

	if activity := LastActivity(room, h.service.cache.Messages(room.ID)); !activity.IsZero() {
		t := activity
		resp.LastActivity = &t
		resp.ActivityLabel = activityLabel(t, now)
	}
	return resp
}

func newMessageResponse(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:           m.ID,
		RoomID:       m.RoomID,
		SenderID:     m.SenderID,
		SenderName:   m.SenderName,
		Body:         m.Body,
		CreatedAt:    m.CreatedAt,
		Pending:      m.Pending,
		FromOperator: m.FromOperator(),
	}
}

// activityLabel renders a timestamp the way the dashboard does: relative up
// to a week, then a short date.
func activityLabel(t, now time.Time) string {
	seconds := int(now.Sub(t).Seconds())
	if seconds < 0 {
		seconds = 0
	}

	if seconds < 60 {
		return fmt.Sprintf("%d secs ago", seconds)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%d mins ago", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%d days ago", days)
	}
	return t.Format("Jan 2, 2006")
}
