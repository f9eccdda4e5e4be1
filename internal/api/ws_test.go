package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbox/internal/api"
	"github.com/victornm/quizbox/internal/domain"
)

type wsMessage struct {
	Event string      `json:"event"`
	Data  api.Session `json:"data"`
}

func TestWS_Watch(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	id := e.createStarted(t, "ann", "bob")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + id + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	read := func() wsMessage {
		t.Helper()

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var m wsMessage
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	first := read()
	assert.Equal(t, domain.EventNameSnapshotUpdated, first.Event)
	assert.Equal(t, "in_progress", first.Data.State)
	assert.Equal(t, "ann", first.Data.TurnHolder)

	code, body := e.do(t, http.MethodPost, "/v1/sessions/"+id+"/answers", api.SubmitAnswerRequest{Username: "ann", Answer: []string{"yes"}})
	require.Equal(t, http.StatusOK, code, body)

	next := read()
	assert.Equal(t, "bob", next.Data.TurnHolder)
	assert.Greater(t, next.Data.Version, first.Data.Version)
	require.NotNil(t, next.Data.Previous)
	assert.Equal(t, 150, next.Data.Previous.Outcome.Points)

	code, _ = e.do(t, http.MethodDelete, "/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusNoContent, code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWS_UnknownSession(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/missing/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
