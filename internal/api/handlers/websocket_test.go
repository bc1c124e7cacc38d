package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"garage-backend/internal/models"
	"garage-backend/internal/services"
	"garage-backend/internal/watch"
	"garage-backend/internal/websocket"
	"garage-backend/pkg/jwt"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenAuth map[string]services.Actor

func (a tokenAuth) Authenticate(_ context.Context, token string) (services.Actor, *jwt.Claims, error) {
	actor, ok := a[token]
	if !ok {
		return services.Actor{}, nil, services.ErrUnauthenticated
	}
	return actor, &jwt.Claims{UserID: actor.UserID}, nil
}

type noSubscriptions struct{}

func (noSubscriptions) Subscribe(context.Context, services.Actor, services.View, string, func(interface{}, error)) (*watch.Subscription, error) {
	return nil, services.ErrForbidden
}

func websocketServer(t *testing.T) (*websocket.Manager, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := websocket.NewManager(noSubscriptions{}, nil, nil)
	require.NoError(t, manager.Start())
	t.Cleanup(func() { manager.Stop() })

	handler := NewWebSocketHandler(manager, tokenAuth{
		"good": {UserID: "u1", Role: models.RoleUser},
	}, nil)

	router := gin.New()
	router.GET("/ws", handler.HandleWebSocket)
	router.GET("/ws/stats", handler.GetConnectedClients)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return manager, srv
}

func TestHandleWebSocketRejectsMissingOrBadToken(t *testing.T) {
	_, srv := websocketServer(t)

	for _, path := range []string{"/ws", "/ws?token=bad"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestHandleWebSocketRegistersClient(t *testing.T) {
	manager, srv := websocketServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=good"
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	assert.Eventually(t, func() bool {
		return manager.GetConnectedClients() == 1
	}, time.Second, 10*time.Millisecond)

	stats, err := http.Get(srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer stats.Body.Close()

	var body struct {
		Data struct {
			ConnectedClients int                  `json:"connectedClients"`
			Stats            websocket.ClientStats `json:"stats"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(stats.Body).Decode(&body))
	assert.Equal(t, 1, body.Data.ConnectedClients)
	assert.Equal(t, 0, body.Data.Stats.Subscriptions)
}

func TestHandleWebSocketBearerHeader(t *testing.T) {
	manager, srv := websocketServer(t)

	header := http.Header{"Authorization": []string{"Bearer good"}}
	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool {
		return manager.GetConnectedClients() == 1
	}, time.Second, 10*time.Millisecond)
}
