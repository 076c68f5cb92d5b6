package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/batepapo/internal/models"
	"github.com/eldtechnologies/batepapo/internal/store"
)

type testServer struct {
	router *chi.Mux
	redis  *miniredis.Miniredis
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := store.NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return &testServer{
		router: NewRouter(zerolog.Nop(), st, st.Client(), opts),
		redis:  mr,
	}
}

func (s *testServer) do(method, path, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("User", user)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, name string) {
	t.Helper()
	rec := s.do(http.MethodPost, "/participants", "", fmt.Sprintf(`{"name":%q}`, name))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) post(t *testing.T, from, to, text, typ string) string {
	t.Helper()
	rec := s.do(http.MethodPost, "/messages", from, fmt.Sprintf(`{"to":%q,"text":%q,"type":%q}`, to, text, typ))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func (s *testServer) messages(t *testing.T, user, query string) []models.Message {
	t.Helper()
	rec := s.do(http.MethodGet, "/messages"+query, user, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	return msgs
}

func texts(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestRegister_DuplicateConflicts(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})

	rec := s.do(http.MethodPost, "/participants", "", `{"name":"  <b>Alice</b> "}`)
	req.Equal(http.StatusCreated, rec.Code)
	req.JSONEq(`{"name":"Alice"}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/participants", "", `{"name":"Alice"}`)
	req.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/participants", "", "")
	req.Equal(http.StatusOK, rec.Code)
	var participants []models.Participant
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &participants))
	req.Len(participants, 1)
	req.Equal("Alice", participants[0].Name)
	req.NotZero(participants[0].LastStatus)

	msgs := s.messages(t, "Alice", "")
	req.Len(msgs, 1)
	req.Equal(models.TypeStatus, msgs[0].Type)
	req.Equal(models.TextJoined, msgs[0].Text)
	req.Equal(models.Broadcast, msgs[0].To)
}

func TestRegister_RejectsEmptyName(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})

	for _, body := range []string{`{}`, `{"name":""}`, `{"name":"<i></i>"}`} {
		rec := s.do(http.MethodPost, "/participants", "", body)
		req.Equal(http.StatusUnprocessableEntity, rec.Code, body)
	}

	rec := s.do(http.MethodPost, "/participants", "", `{"name":42}`)
	req.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodPost, "/participants", "", `{"name":`)
	req.Equal(http.StatusBadRequest, rec.Code)
}

func TestListParticipants_EmptyIsArray(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})

	rec := s.do(http.MethodGet, "/participants", "", "")
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`[]`, rec.Body.String())
}

func TestMessages_PrivateVisibility(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		s.register(t, name)
	}

	s.post(t, "Alice", "Bob", "hi", "private_message")
	s.post(t, "Carol", models.Broadcast, "hello all", "message")

	req.Contains(texts(s.messages(t, "Bob", "")), "hi")
	req.Contains(texts(s.messages(t, "Alice", "")), "hi")
	carol := texts(s.messages(t, "Carol", ""))
	req.NotContains(carol, "hi")
	req.Contains(carol, "hello all")
}

func TestMessages_BroadcastVisibleToEveryone(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})
	s.register(t, "Alice")
	s.register(t, "Bob")

	// Addressed to Alice but public.
	s.post(t, "Alice", "Alice", "note to self, shown to all", "message")

	bob := s.messages(t, "Bob", "")
	req.Contains(texts(bob), "note to self, shown to all")

	// Both join notices are visible to Bob.
	joined := 0
	for _, m := range bob {
		if m.Type == models.TypeStatus {
			joined++
		}
	}
	req.Equal(2, joined)
}

func TestMessages_LimitKeepsNewestInOrder(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})
	s.register(t, "Alice")
	for i := 1; i <= 4; i++ {
		s.post(t, "Alice", models.Broadcast, fmt.Sprintf("m%d", i), "message")
	}

	req.Len(s.messages(t, "Alice", ""), 5)
	req.Equal([]string{"m3", "m4"}, texts(s.messages(t, "Alice", "?limit=2")))

	for _, bad := range []string{"0", "-1", "two"} {
		rec := s.do(http.MethodGet, "/messages?limit="+bad, "Alice", "")
		req.Equal(http.StatusUnprocessableEntity, rec.Code, bad)
	}
}

func TestMessages_UnknownUser(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})
	s.register(t, "Alice")

	rec := s.do(http.MethodGet, "/messages", "Mallory", "")
	req.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodGet, "/messages", "", "")
	req.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodPost, "/messages", "Mallory", `{"to":"Todos","text":"hi","type":"message"}`)
	req.Equal(http.StatusUnprocessableEntity, rec.Code)
	req.Len(s.messages(t, "Alice", ""), 1)
}

func TestPostMessage_InvalidTypeAppendsNothing(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})
	s.register(t, "Alice")
	before := len(s.messages(t, "Alice", ""))

	for _, typ := range []string{"status", "shout", ""} {
		rec := s.do(http.MethodPost, "/messages", "Alice", fmt.Sprintf(`{"to":"Todos","text":"x","type":%q}`, typ))
		req.Equal(http.StatusUnprocessableEntity, rec.Code, typ)
	}

	rec := s.do(http.MethodPost, "/messages", "Alice", `{"type":"message"}`)
	req.Equal(http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Details []string `json:"details"`
	}
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Len(body.Details, 2)

	req.Len(s.messages(t, "Alice", ""), before)
}

func TestPostMessage_RejectsNonJSON(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})
	s.register(t, "Alice")

	httpReq := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader("to=Todos"))
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User", "Alice")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httpReq)
	req.Equal(http.StatusUnsupportedMediaType, rec.Code)
}

func TestDeleteMessage_Ownership(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})
	s.register(t, "Alice")
	s.register(t, "Bob")
	id := s.post(t, "Alice", models.Broadcast, "mine", "message")

	rec := s.do(http.MethodDelete, "/messages/"+id, "Bob", "")
	req.Equal(http.StatusUnauthorized, rec.Code)
	req.Contains(texts(s.messages(t, "Bob", "")), "mine")

	rec = s.do(http.MethodDelete, "/messages/"+id, "", "")
	req.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodDelete, "/messages/"+id, "Alice", "")
	req.Equal(http.StatusOK, rec.Code)
	req.NotContains(texts(s.messages(t, "Bob", "")), "mine")

	rec = s.do(http.MethodDelete, "/messages/"+id, "Alice", "")
	req.Equal(http.StatusNotFound, rec.Code)
}

func TestKeepAlive(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})
	s.register(t, "Alice")

	rec := s.do(http.MethodPost, "/status", "Alice", "")
	req.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/status", "Ghost", "")
	req.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/status", "", "")
	req.Equal(http.StatusNotFound, rec.Code)
}

func TestRateLimit_Registration(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})

	for i := 0; i < 30; i++ {
		s.register(t, fmt.Sprintf("user%d", i))
	}
	rec := s.do(http.MethodPost, "/participants", "", `{"name":"one-too-many"}`)
	req.Equal(http.StatusTooManyRequests, rec.Code)
	req.Equal("60", rec.Header().Get("Retry-After"))
}

func TestRateLimit_Whitelist(t *testing.T) {
	// httptest requests come from 192.0.2.1.
	s := newTestServer(t, Options{RateLimitWhitelist: []string{"192.0.2.0/24"}})

	for i := 0; i < 35; i++ {
		s.register(t, fmt.Sprintf("user%d", i))
	}
}

func TestHealth(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})

	rec := s.do(http.MethodGet, "/health", "", "")
	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), `"healthy"`)

	s.redis.Close()
	rec = s.do(http.MethodGet, "/health", "", "")
	req.Equal(http.StatusServiceUnavailable, rec.Code)
	req.Contains(rec.Body.String(), `"degraded"`)
}

func TestStoreFailureIsGeneric500(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})
	s.redis.Close()

	rec := s.do(http.MethodGet, "/participants", "", "")
	req.Equal(http.StatusInternalServerError, rec.Code)
	req.JSONEq(`{"error":"internal server error"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Options{})
	s.do(http.MethodGet, "/participants", "", "")

	rec := s.do(http.MethodGet, "/metrics", "", "")
	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), "batepapo_http_requests_total")
}
