package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/destucr/chatroom-backend/internal/message"
	"github.com/destucr/chatroom-backend/internal/mocks"
	"github.com/destucr/chatroom-backend/internal/store"
	internalws "github.com/destucr/chatroom-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, s store.MessageStore) (*gin.Engine, *internalws.Hub) {
	t.Helper()
	cfg := internalws.DefaultConfig()
	cfg.SendTimeout = 100 * time.Millisecond
	hub := internalws.NewHub(s, internalws.NewRegistry(), cfg)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })
	return NewRouter(hub, s, cfg.AllowedOrigins), hub
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListMessages_EmptyStore(t *testing.T) {
	req := require.New(t)
	r, _ := newTestRouter(t, store.NewMemoryStore())

	w := do(r, http.MethodGet, "/messages", "")
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`[]`, w.Body.String())
}

func TestPostThenListMessages(t *testing.T) {
	req := require.New(t)
	r, _ := newTestRouter(t, store.NewMemoryStore())

	w := do(r, http.MethodPost, "/messages", `{"user":"al","text":"hi"}`)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"user":"al","text":"hi"}`, w.Body.String())

	w = do(r, http.MethodPost, "/messages", `{"user":"bo","text":"hey","_id":"ignored"}`)
	req.Equal(http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/messages", "")
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`[{"user":"al","text":"hi"},{"user":"bo","text":"hey"}]`, w.Body.String())
}

func TestPostMessage_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "malformed", body: `{"user":`, status: http.StatusBadRequest},
		{name: "python literal", body: `{'user': 'al', 'text': 'hi'}`, status: http.StatusBadRequest},
		{name: "empty user", body: `{"user":"","text":"hi"}`, status: http.StatusUnprocessableEntity},
		{name: "missing text", body: `{"user":"al"}`, status: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			s := store.NewMemoryStore()
			r, _ := newTestRouter(t, s)

			w := do(r, http.MethodPost, "/messages", tt.body)
			req.Equal(tt.status, w.Code)
			req.Contains(w.Body.String(), `"error"`)

			persisted, err := s.ListAll(context.Background())
			req.NoError(err)
			req.Empty(persisted)
		})
	}
}

func TestStoreUnavailable(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	s := mocks.NewMockMessageStore(ctrl)
	down := fmt.Errorf("%w: append: %w", store.ErrStore,
		errors.New("dial tcp 10.0.0.5:27017: connection refused (user=admin)"))
	s.EXPECT().Append(gomock.Any(), gomock.Any()).Return(down)
	s.EXPECT().ListAll(gomock.Any()).Return(nil, down)
	r, _ := newTestRouter(t, s)

	w := do(r, http.MethodPost, "/messages", `{"user":"al","text":"hi"}`)
	req.Equal(http.StatusServiceUnavailable, w.Code)
	req.JSONEq(`{"error":"message store unavailable"}`, w.Body.String())
	req.NotContains(w.Body.String(), "10.0.0.5")

	w = do(r, http.MethodGet, "/messages", "")
	req.Equal(http.StatusServiceUnavailable, w.Code)
	req.NotContains(w.Body.String(), "10.0.0.5")
}

func TestPostMessage_UnexpectedErrorIsNotExposed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	s := mocks.NewMockMessageStore(ctrl)
	s.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("pq: password authentication failed for user \"chat\""))
	r, _ := newTestRouter(t, s)

	w := do(r, http.MethodPost, "/messages", `{"user":"al","text":"hi"}`)
	req.Equal(http.StatusInternalServerError, w.Code)
	req.JSONEq(`{"error":"internal error"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	req := require.New(t)
	r, _ := newTestRouter(t, store.NewMemoryStore())

	preflight := httptest.NewRequest(http.MethodOptions, "/messages", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, preflight)
	req.Equal(http.StatusNoContent, w.Code)
	req.Equal("http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	other := httptest.NewRequest(http.MethodGet, "/messages", nil)
	other.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, other)
	req.Equal(http.StatusOK, w.Code)
	req.Empty(w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_WildcardOmitsCredentials(t *testing.T) {
	req := require.New(t)
	r := gin.New()
	r.Use(cors([]string{"*"}))
	r.GET("/messages", func(c *gin.Context) { c.JSON(http.StatusOK, []string{}) })

	get := httptest.NewRequest(http.MethodGet, "/messages", nil)
	get.Header.Set("Origin", "http://anywhere.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, get)
	req.Equal(http.StatusOK, w.Code)
	req.Equal("*", w.Header().Get("Access-Control-Allow-Origin"))
	req.Empty(w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_ListedOriginKeepsCredentials(t *testing.T) {
	req := require.New(t)
	r := gin.New()
	r.Use(cors([]string{"http://localhost:3000"}))
	r.GET("/messages", func(c *gin.Context) { c.JSON(http.StatusOK, []string{}) })

	get := httptest.NewRequest(http.MethodGet, "/messages", nil)
	get.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, get)
	req.Equal("http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	req.Equal("true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestHealth(t *testing.T) {
	req := require.New(t)
	r, _ := newTestRouter(t, store.NewMemoryStore())

	w := do(r, http.MethodGet, "/healthz", "")
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"status":"ok","connections":0}`, w.Body.String())
}

func TestPostedMessageReachesStream(t *testing.T) {
	req := require.New(t)
	r, hub := newTestRouter(t, store.NewMemoryStore())
	server := httptest.NewServer(r)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	req.NoError(err)
	defer conn.Close()
	req.Eventually(func() bool { return hub.Registry().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(server.URL+"/messages", "application/json", strings.NewReader(`{"user":"al","text":"hi"}`))
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, frame, err := conn.ReadMessage()
	req.NoError(err)

	got, err := message.Decode(frame)
	req.NoError(err)
	req.Equal(message.Message{User: "al", Text: "hi"}, got)
}
