package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"solguess/pkg/models"
	"solguess/pkg/watcher"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu        sync.Mutex
	state     models.UIState
	guesses   []string
	refreshes int
	sub       watcher.Subscriber
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		state: models.UIState{GuessCount: "42", ToggleLabel: "View my last guesses"},
		sub:   make(watcher.Subscriber, 10),
	}
}

func (f *fakeClient) State() models.UIState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeClient) SubmitGuess(ctx context.Context, value string) watcher.GuessResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guesses = append(f.guesses, value)
	if len(value) != watcher.GuessLength {
		return watcher.GuessResult{Status: models.StatusView{Kind: models.StatusInvalid, Message: watcher.MsgInvalidLength}}
	}
	return watcher.GuessResult{Status: models.StatusView{Kind: models.StatusLost, Message: watcher.MsgLost}}
}

func (f *fakeClient) ToggleHistory(ctx context.Context) models.HistoryView {
	return models.HistoryView{Visible: true, Entries: []models.GuessAttempt{{Value: "1234"}}}
}

func (f *fakeClient) Refresh() {
	f.mu.Lock()
	f.refreshes++
	f.mu.Unlock()
}

func (f *fakeClient) Subscribe() watcher.Subscriber     { return f.sub }
func (f *fakeClient) Unsubscribe(ch watcher.Subscriber) {}

func TestHandleState(t *testing.T) {
	s := NewServer(newFakeClient())

	req, _ := http.NewRequest("GET", "/api/state", nil)
	rr := httptest.NewRecorder()

	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.UIState
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, "42", resp.GuessCount)
	assert.Equal(t, "View my last guesses", resp.ToggleLabel)
}

func TestHandleGuess(t *testing.T) {
	c := newFakeClient()
	s := NewServer(c)

	tests := []struct {
		body string
		code int
		kind models.StatusKind
	}{
		{`{"guess":"1234"}`, http.StatusOK, models.StatusLost},
		{`{"guess":"12"}`, http.StatusUnprocessableEntity, models.StatusInvalid},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest("POST", "/api/guess", strings.NewReader(tt.body))
		rr := httptest.NewRecorder()
		s.mux.ServeHTTP(rr, req)

		assert.Equal(t, tt.code, rr.Code, tt.body)
		var res watcher.GuessResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
		assert.Equal(t, tt.kind, res.Status.Kind)
	}
	assert.Equal(t, []string{"1234", "12"}, c.guesses)

	req, _ := http.NewRequest("POST", "/api/guess", strings.NewReader("nope"))
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req, _ = http.NewRequest("GET", "/api/guess", nil)
	rr = httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandleToggleAndRefresh(t *testing.T) {
	c := newFakeClient()
	s := NewServer(c)

	req, _ := http.NewRequest("POST", "/api/history/toggle", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	var view models.HistoryView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.True(t, view.Visible)
	assert.Len(t, view.Entries, 1)

	req, _ = http.NewRequest("POST", "/api/refresh", nil)
	rr = httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 1, c.refreshes)
}

func TestHandleWS(t *testing.T) {
	c := newFakeClient()
	s := NewServer(c)
	server := httptest.NewServer(s.mux)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.listenToWatcher(ctx)

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	// Read initial state
	var msg map[string]interface{}
	err = ws.ReadJSON(&msg)
	require.NoError(t, err)
	assert.Equal(t, "initial", msg["type"])

	c.sub <- watcher.Event{Type: watcher.EventCountUpdated, State: models.UIState{GuessCount: "43"}}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update struct {
		Type string        `json:"type"`
		Data watcher.Event `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&update))
	assert.Equal(t, string(watcher.EventCountUpdated), update.Type)
	assert.Equal(t, "43", update.Data.State.GuessCount)
}
