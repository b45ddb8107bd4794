// Package remote implements the Directory contract against the admin REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/riseselfesteem/convosync/internal/domain"
)

// Client is an HTTP client for the upstream conversation API. The upstream
// offers no push channel; everything is plain request/response JSON.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	validate *validator.Validate
	logger   *slog.Logger
}

// NewClient creates a new upstream API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		validate:   validator.New(),
		logger:     slog.Default().With("component", "remote"),
	}
}

// Wire documents, as the admin API serves them. Field names follow the
// upstream Mongo-style conventions ("_id", "chatRoom", "message").

type participantDoc struct {
	ID     string `json:"_id" validate:"required"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Avatar string `json:"avatar"`
	Role   string `json:"role"`
}

type messageStubDoc struct {
	Message   string     `json:"message"`
	CreatedAt *time.Time `json:"createdAt"`
}

type roomDoc struct {
	ID            string           `json:"_id" validate:"required"`
	Participants  []participantDoc `json:"participants"`
	LatestMessage *messageStubDoc  `json:"latestMessage"`
	LastMessage   *messageStubDoc  `json:"lastMessage"`
	UpdatedAt     *time.Time       `json:"updatedAt"`
	CreatedAt     *time.Time       `json:"createdAt"`
}

type messageDoc struct {
	ID        string          `json:"_id" validate:"required"`
	ChatRoom  string          `json:"chatRoom"`
	Sender    *participantDoc `json:"sender"`
	Message   string          `json:"message"`
	CreatedAt *time.Time      `json:"createdAt" validate:"required"`
}

type sendMessageDoc struct {
	ChatRoom string `json:"chatRoom"`
	Sender   string `json:"sender"`
	Message  string `json:"message"`
}

// ListRooms fetches the room directory. Malformed entries are skipped
// per-entity rather than failing the whole list.
func (c *Client) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var docs []roomDoc
	if err := c.get(ctx, "/api/chat", &docs); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]domain.Room, 0, len(docs))
	for i, doc := range docs {
		if err := c.validate.Struct(doc); err != nil {
			c.logger.Warn("Skipping malformed room entry", "index", i, "error", err)
			continue
		}
		rooms = append(rooms, mapRoom(doc))
	}
	return rooms, nil
}

// ListMessages fetches the message log for a room, oldest first as served.
func (c *Client) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	var docs []messageDoc
	if err := c.get(ctx, "/api/chat/"+roomID, &docs); err != nil {
		return nil, fmt.Errorf("list messages for room %s: %w", roomID, err)
	}

	messages := make([]domain.Message, 0, len(docs))
	for i, doc := range docs {
		if err := c.validate.Struct(doc); err != nil {
			c.logger.Warn("Skipping malformed message entry", "room_id", roomID, "index", i, "error", err)
			continue
		}
		messages = append(messages, mapMessage(doc, roomID))
	}
	return messages, nil
}

// SendMessage posts a new message and returns the confirmed entry.
func (c *Client) SendMessage(ctx context.Context, roomID, senderID, body string) (domain.Message, error) {
	payload := sendMessageDoc{
		ChatRoom: roomID,
		Sender:   senderID,
		Message:  body,
	}

	var doc messageDoc
	if err := c.post(ctx, "/api/chat", payload, &doc); err != nil {
		return domain.Message{}, fmt.Errorf("send message to room %s: %w", roomID, err)
	}
	if err := c.validate.Struct(doc); err != nil {
		return domain.Message{}, fmt.Errorf("send message to room %s: malformed confirmation: %w", roomID, err)
	}
	return mapMessage(doc, roomID), nil
}

func mapRoom(doc roomDoc) domain.Room {
	room := domain.Room{
		ID:        doc.ID,
		UpdatedAt: doc.UpdatedAt,
		CreatedAt: doc.CreatedAt,
	}
	for _, p := range doc.Participants {
		room.Participants = append(room.Participants, domain.Participant{
			ID:     p.ID,
			Name:   p.Name,
			Email:  p.Email,
			Avatar: p.Avatar,
			Role:   p.Role,
			Online: p.Status == "active",
		})
	}
	if doc.LatestMessage != nil {
		room.LatestMessageAt = doc.LatestMessage.CreatedAt
		room.Preview = doc.LatestMessage.Message
	}
	if doc.LastMessage != nil {
		room.LastMessageAt = doc.LastMessage.CreatedAt
		if room.Preview == "" {
			room.Preview = doc.LastMessage.Message
		}
	}
	return room
}

func mapMessage(doc messageDoc, roomID string) domain.Message {
	msg := domain.Message{
		ID:     doc.ID,
		RoomID: roomID,
		Body:   doc.Message,
	}
	if doc.ChatRoom != "" {
		msg.RoomID = doc.ChatRoom
	}
	if doc.CreatedAt != nil {
		msg.CreatedAt = *doc.CreatedAt
	}
	// An absent sender means the message came from the system/operator side.
	if doc.Sender != nil {
		msg.SenderID = doc.Sender.ID
		msg.SenderName = doc.Sender.Name
	}
	return msg
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
