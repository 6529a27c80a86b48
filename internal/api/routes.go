package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/temani/adapters/provider"
	"github.com/satriahrh/temani/domain/entities"
	"github.com/satriahrh/temani/domain/repositories"
	"github.com/satriahrh/temani/internal/auth"
	"github.com/satriahrh/temani/internal/config"
	"github.com/satriahrh/temani/internal/relay"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Devices connect from home networks without a meaningful origin.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ProviderFactory builds a provider adapter for one session. Injected so tests
// can substitute a fake.
type ProviderFactory func(kind repositories.ProviderKind, apiKey string, logger *zap.Logger) (repositories.Provider, error)

// DefaultProviderFactory maps the configured provider kind to its adapter.
func DefaultProviderFactory(kind repositories.ProviderKind, apiKey string, logger *zap.Logger) (repositories.Provider, error) {
	switch kind {
	case repositories.ProviderOpenAI:
		return provider.NewOpenAI(apiKey, logger), nil
	case repositories.ProviderGemini:
		return provider.NewGemini(apiKey, logger), nil
	default:
		return nil, fmt.Errorf("api: unknown provider %q", kind)
	}
}

// Gateway authenticates device connections and hands them to the relay.
type Gateway struct {
	hub         *relay.Hub
	store       repositories.DataStore
	cfg         *config.Config
	verifier    *auth.Verifier
	newProvider ProviderFactory
	logger      *zap.Logger
}

// NewGateway creates the HTTP gateway.
func NewGateway(
	hub *relay.Hub,
	store repositories.DataStore,
	cfg *config.Config,
	factory ProviderFactory,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		hub:         hub,
		store:       store,
		cfg:         cfg,
		verifier:    auth.NewVerifier([]byte(cfg.JWTSecret)),
		newProvider: factory,
		logger:      logger,
	}
}

// InitRoutes registers all HTTP routes.
func InitRoutes(e *echo.Echo, gw *Gateway) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:  "ok",
			Service: "temani-server",
		})
	})

	e.GET("/ws", gw.handleWebSocket)
}

// handleWebSocket authenticates the device and upgrades the connection. All
// rejections happen before the upgrade so the device sees a plain HTTP status.
func (gw *Gateway) handleWebSocket(c echo.Context) error {
	token := bearerToken(c.Request().Header.Get("Authorization"))
	if token == "" {
		gw.logger.Warn("connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		})
	}

	email, err := gw.verifier.Verify(token)
	if err != nil {
		gw.logger.Warn("connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	ctx := c.Request().Context()
	user, err := gw.store.GetUserByEmail(ctx, email)
	if err != nil {
		gw.logger.Warn("connection rejected: unknown user",
			zap.String("email", email),
			zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unknown_user",
			Message: "No user registered for this credential",
		})
	}

	device, err := gw.store.GetDevice(ctx, user.ID)
	if err != nil {
		gw.logger.Warn("device settings unavailable, using defaults",
			zap.String("userID", user.ID),
			zap.Error(err))
		device = &entities.Device{UserID: user.ID}
	}

	// The firmware reports its wifi signal strength on connect.
	if rssi := c.Request().Header.Get("X-Wifi-Rssi"); rssi != "" {
		gw.logger.Info("device connected",
			zap.String("userID", user.ID),
			zap.String("wifiRssi", rssi))
	}

	p, err := gw.newProvider(gw.cfg.Provider, gw.providerKey(c, user.ID), gw.logger)
	if err != nil {
		gw.logger.Error("provider setup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "provider_unavailable",
			Message: "Could not set up the conversation backend",
		})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		gw.logger.Error("websocket upgrade failed", zap.Error(err))
		return err
	}

	session, err := relay.NewSession(gw.hub, conn, user, device, p, gw.store, gw.cfg.Audio, gw.logger)
	if err != nil {
		gw.logger.Error("session setup failed", zap.Error(err))
		conn.Close()
		return nil
	}

	if gw.cfg.DevMode {
		gw.attachCapture(session, user.ID)
	}

	// The session outlives this handler, so it cannot run on the request
	// context.
	if err := session.Start(context.Background()); err != nil {
		gw.logger.Error("session start failed",
			zap.String("userID", user.ID),
			zap.Error(err))
	}
	return nil
}

// providerKey prefers the user's own stored key over the shared one.
func (gw *Gateway) providerKey(c echo.Context, userID string) string {
	key, err := gw.store.GetProviderKey(c.Request().Context(), userID)
	if err == nil && key != "" {
		return key
	}
	if err != nil {
		gw.logger.Debug("no per-user provider key", zap.String("userID", userID), zap.Error(err))
	}

	switch gw.cfg.Provider {
	case repositories.ProviderOpenAI:
		return gw.cfg.OpenAIAPIKey
	default:
		return gw.cfg.GeminiAPIKey
	}
}

func (gw *Gateway) attachCapture(session *relay.Session, userID string) {
	name := fmt.Sprintf("capture_%s_%d.pcm", userID, time.Now().Unix())
	f, err := os.Create(filepath.Join(os.TempDir(), name))
	if err != nil {
		gw.logger.Warn("pcm capture unavailable", zap.Error(err))
		return
	}
	session.SetCapture(f)
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
