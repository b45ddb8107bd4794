package conversations

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/riseselfesteem/convosync/internal/config"
	"github.com/riseselfesteem/convosync/internal/domain"
	"github.com/riseselfesteem/convosync/internal/hub"
	"github.com/riseselfesteem/convosync/internal/middleware"
	"github.com/riseselfesteem/convosync/internal/module"
	"github.com/riseselfesteem/convosync/internal/pubsub"
	"github.com/riseselfesteem/convosync/internal/registry"
)

// ServiceKey locates the conversation service in the registry.
var ServiceKey = registry.Key[*Service]("conversations.service")

// Module implements module.Module for the conversation sync feature.
type Module struct {
	module.BaseModule
	publisher  pubsub.Publisher
	subscriber pubsub.Subscriber
	directory  domain.Directory
	cfg        config.Provider

	service *Service
	hub     *hub.Hub
}

// Dependencies holds all the services that the conversations module requires.
// This struct is used for constructor injection to make dependencies explicit.
type Dependencies struct {
	Publisher  pubsub.Publisher
	Subscriber pubsub.Subscriber
	Directory  domain.Directory
	Cfg        config.Provider
}

// New creates a new instance of the conversations module, injecting its dependencies.
func New(deps Dependencies) *Module {
	return &Module{
		publisher:  deps.Publisher,
		subscriber: deps.Subscriber,
		directory:  deps.Directory,
		cfg:        deps.Cfg,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "conversations"
}

// Register creates the module's services and registers them for discovery.
func (m *Module) Register(reg *registry.Registry) error {
	cache := NewCache(m.publisher)
	m.service = NewService(cache, m.directory, m.publisher, m.cfg.GetActingUserID(),
		WithRoomsTTL(m.cfg.GetRoomsTTL()),
		WithMessagesTTL(m.cfg.GetMessagesTTL()),
	)

	registry.Set(reg, ServiceKey, m.service)
	return nil
}

// Boot sets up routes and starts the event fan-out for the module.
func (m *Module) Boot(ctx context.Context, g *echo.Group, reg *registry.Registry) error {
	slog.Info("Booting conversations module: setting up routes...")

	m.hub = hub.NewHub()
	go m.hub.Run()

	if err := m.relayTopic(ctx, TopicCacheUpdated); err != nil {
		return err
	}
	if err := m.relayTopic(ctx, TopicSendFailed); err != nil {
		return err
	}

	handler := NewHandler(m.service, m.hub)

	g.GET("/rooms", handler.RoomsGet)
	g.GET("/rooms/:id/messages", handler.MessagesGet)
	g.POST("/rooms/:id/messages", handler.MessagePost, middleware.RateLimiter())
	g.GET("/ws", handler.ServeWS)

	return nil
}

// Shutdown drains the send queues so no optimistic message is lost on exit.
func (m *Module) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down conversations module...")
	if m.service != nil {
		m.service.Close()
	}
	return nil
}

// wsEnvelope is the frame shape delivered to websocket clients.
type wsEnvelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// relayTopic forwards a pubsub topic onto the hub so websocket subscribers
// see every event, scoped by room id.
func (m *Module) relayTopic(ctx context.Context, topic string) error {
	return m.subscriber.Subscribe(ctx, topic, func(ctx context.Context, msg pubsub.Message) error {
		frame, err := json.Marshal(wsEnvelope{Topic: msg.Topic, Payload: msg.Payload})
		if err != nil {
			return err
		}
		m.hub.Broadcast <- hub.Frame{RoomID: msg.RoomID, Payload: frame}
		return nil
	})
}
