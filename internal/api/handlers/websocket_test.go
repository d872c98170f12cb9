package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EvanKristianPratama/Anon-chat/internal/config"
	"github.com/EvanKristianPratama/Anon-chat/internal/service"
	"github.com/EvanKristianPratama/Anon-chat/internal/session"
	"github.com/EvanKristianPratama/Anon-chat/internal/store"
	ws "github.com/EvanKristianPratama/Anon-chat/internal/websocket"
	"github.com/EvanKristianPratama/Anon-chat/pkg/distributed"
	"github.com/EvanKristianPratama/Anon-chat/pkg/ratelimit"
)

// A connection that closes immediately after the upgrade must leave the
// online counter balanced: the connect is recorded before the pumps can
// observe the disconnect.
func TestWebSocketHandler_InstantCloseBalancesOnline(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		AdminToken:       "admin-secret",
		MaxMessageLength: 500,
		MaxImageBytes:    1_000_000,
		AliasMinLength:   2,
		AliasMaxLength:   24,
	}

	st := store.NewMemoryStore()
	registry := session.NewRegistry(cfg.AliasMinLength, cfg.AliasMaxLength)
	hub := ws.NewHub()

	rooms := service.NewRoomService(st, registry, hub, time.Minute, 15*time.Minute)
	dispatcher := distributed.NewLocalDispatcher()
	match := service.NewMatchService(st, registry, hub, rooms, dispatcher)
	require.NoError(t, dispatcher.Start(context.Background(), match.RunMatchingPass))
	metrics := service.NewMetricsService(st, hub, time.Second)
	limiter := ratelimit.NewMemoryLimiter()

	gateway := NewChatGateway(cfg, registry, limiter, hub, match, rooms, metrics)
	hub.SetHandler(gateway)
	go hub.Run()

	handler := NewWebSocketHandler(hub, registry, metrics)
	router := gin.New()
	router.GET("/ws", handler.HandleUser)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	conn.Close()

	ctx := context.Background()
	require.Eventually(t, func() bool {
		snapshot, err := metrics.Snapshot(ctx)
		return err == nil && snapshot.OnlineUsers == 0
	}, 2*time.Second, 10*time.Millisecond, "online counter must return to zero")

	snapshot, err := metrics.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snapshot.PeakOnlineUsers)
	assert.Equal(t, 0, registry.Count())
}
