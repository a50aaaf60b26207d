package router

import (
	"quickchat/internal/api/handlers"
	"quickchat/internal/chat/app"
	_ "quickchat/internal/chat/docs" // swagger 文件
	"quickchat/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers http and websocket entry points of the chat service
type Handlers struct {
	Message   *app.MessageHandler
	Websocket *app.ChatWebsocketHandler
}

// Options router settings
type Options struct {
	// Verify resolve a token to a member id, nil only checks the JWT
	Verify middlewares.TokenVerifier
	// AllowOrigins comma separated CORS origins, "*" allows any
	AllowOrigins string
	// Gatherer exposed on /metrics, nil disables the endpoint
	Gatherer prometheus.Gatherer
}

// RegisterRoutes 注册聊天服務的路由
// @title QuickChat Chat Service API
// @version 1.0
// @description Direct messages, seen receipts, delete-for-everyone and realtime presence
// @host localhost:5000
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func RegisterRoutes(r *fiber.App, h Handlers, opts Options) {
	if opts.AllowOrigins == "" {
		opts.AllowOrigins = "*"
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     opts.AllowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: opts.AllowOrigins != "*",
	}))

	r.Get("/api/status", handlers.StatusCheck)
	r.Post("/debug", handlers.DebugLogFlag)
	r.Get("/swagger/*", swagger.HandlerDefault)
	if opts.Gatherer != nil {
		r.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	auth := middlewares.JWTMiddleware(opts.Verify)

	conversations := r.Group("/conversations", auth)
	conversations.Get("/users", h.Message.ListSidebar)
	conversations.Get("/:id/messages", h.Message.GetMessages)
	conversations.Post("/:id/messages", h.Message.SendMessage)
	conversations.Put("/:id/seen", h.Message.MarkConversationSeen)

	messages := r.Group("/messages", auth)
	messages.Put("/seen-batch", h.Message.MarkSeenBatch)
	messages.Put("/seen/:messageId", h.Message.MarkSeen)
	messages.Delete("/:messageId", h.Message.DeleteMessage)

	// 瀏覽器無法帶 header，token 走 query auth
	r.Get("/ws", upgradeOnly, auth, websocket.New(h.Websocket.HandleConnection))
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
