package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/yat0i811/CompShare/internal/core/notify"
	"github.com/yat0i811/CompShare/internal/server/api/middleware"
)

const testSecret = "ws-test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *notify.Registry) {
	t.Helper()
	registry := notify.NewRegistry()
	e := echo.New()
	h := NewHandler(registry, testSecret, []string{"*"})
	e.GET("/ws/:cid", h.Serve)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, registry
}

func testToken(t *testing.T) string {
	t.Helper()
	token, err := middleware.GenerateJWT("user-1", "user", testSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func dial(t *testing.T, srv *httptest.Server, cid, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + cid + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func awaitChannel(t *testing.T, registry *notify.Registry, cid string) *notify.Channel {
	t.Helper()
	var ch *notify.Channel
	require.Eventually(t, func() bool {
		ch = registry.Lookup(cid)
		return ch != nil
	}, time.Second, 10*time.Millisecond)
	return ch
}

func TestServeDeliversEvents(t *testing.T) {
	srv, registry := newTestServer(t)
	conn := dial(t, srv, "job-1", testToken(t))

	ch := awaitChannel(t, registry, "job-1")
	require.True(t, ch.Send(notify.Progress(42)))
	require.True(t, ch.Send(notify.Done(notify.DoneResult{
		DownloadID: "tok",
		Filename:   "clip_compressed.mp4",
		Size:       1024,
	})))

	var ev notify.Event
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, notify.KindProgress, ev.Type)
	require.NotNil(t, ev.Percent)
	require.Equal(t, 42.0, *ev.Percent)

	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, notify.KindDone, ev.Type)
	require.Equal(t, "clip_compressed.mp4", ev.Filename)
	require.EqualValues(t, 1024, ev.Size)
}

func TestServeRejectsBadToken(t *testing.T) {
	srv, registry := newTestServer(t)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/job-1?token=not-a-jwt"
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, registry.Len())
}

func TestServeAcceptsSessionCookie(t *testing.T) {
	srv, registry := newTestServer(t)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/job-9"
	header := http.Header{}
	header.Set("Cookie", (&http.Cookie{Name: middleware.SessionCookie, Value: testToken(t)}).String())
	conn, _, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	defer conn.Close()

	awaitChannel(t, registry, "job-9")
}

func TestServeLastRegistrationWins(t *testing.T) {
	srv, registry := newTestServer(t)
	token := testToken(t)

	first := dial(t, srv, "job-1", token)
	firstCh := awaitChannel(t, registry, "job-1")

	second := dial(t, srv, "job-1", token)
	require.Eventually(t, firstCh.Closed, time.Second, 10*time.Millisecond)

	first.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := first.ReadMessage()
	require.Error(t, err)

	var secondCh *notify.Channel
	require.Eventually(t, func() bool {
		secondCh = registry.Lookup("job-1")
		return secondCh != nil && secondCh != firstCh
	}, time.Second, 10*time.Millisecond)
	require.True(t, secondCh.Send(notify.Warning("dropped frames in source")))

	var ev notify.Event
	second.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, second.ReadJSON(&ev))
	require.Equal(t, notify.KindWarning, ev.Type)
	require.Equal(t, "dropped frames in source", ev.Detail)
}

func TestServeUnregistersOnDisconnect(t *testing.T) {
	srv, registry := newTestServer(t)
	conn := dial(t, srv, "job-2", testToken(t))

	require.Eventually(t, func() bool { return registry.Len() == 1 }, time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return registry.Len() == 0 }, time.Second, 10*time.Millisecond)
}
