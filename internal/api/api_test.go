package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"chypto_bot/internal/model"
	"chypto_bot/internal/repository/memory"
	"chypto_bot/internal/service"
	"chypto_bot/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingUpdates struct {
	mu      sync.Mutex
	updates []tgbotapi.Update
}

func (r *recordingUpdates) HandleUpdate(_ context.Context, upd tgbotapi.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, upd)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testServer struct {
	router  *gin.Engine
	updates *recordingUpdates
	store   *memory.Store
}

func newTestServer(t *testing.T, store Pinger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := memory.New()
	if store == nil {
		store = mem
	}
	updates := &recordingUpdates{}
	router := NewRouter(RouterConfig{
		Updates:       updates,
		WebhookSecret: "s3cret",
		Store:         store,
		Accounts:      service.NewAccountService(mem),
		Auth:          auth.NewTelegramAuth("token", true),
		BotUsername:   "Chypto_Official_Bot",
	})
	return &testServer{router: router, updates: updates, store: mem}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func telegramHeader(userID string) string {
	v := url.Values{}
	v.Set("auth_date", "1700000000")
	v.Set("user", `{"id":`+userID+`,"username":"u`+userID+`"}`)
	return "Telegram " + v.Encode()
}

func TestWebhook(t *testing.T) {
	body := `{"update_id":7,"message":{"message_id":1,"text":"/start ref_1","from":{"id":2},"chat":{"id":2,"type":"private"}}}`

	tests := []struct {
		name     string
		method   string
		secret   string
		body     string
		status   int
		received int
	}{
		{name: "accepted", method: http.MethodPost, secret: "s3cret", body: body, status: http.StatusOK, received: 1},
		{name: "wrong secret", method: http.MethodPost, secret: "nope", body: body, status: http.StatusUnauthorized},
		{name: "missing secret", method: http.MethodPost, body: body, status: http.StatusUnauthorized},
		{name: "malformed body", method: http.MethodPost, secret: "s3cret", body: "{", status: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, secret: "s3cret", status: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			req := httptest.NewRequest(tt.method, WebhookPath, strings.NewReader(tt.body))
			if tt.secret != "" {
				req.Header.Set(SecretTokenHeader, tt.secret)
			}

			w := s.do(req)

			assert.Equal(t, tt.status, w.Code)
			require.Len(t, s.updates.updates, tt.received)
			if tt.received > 0 {
				upd := s.updates.updates[0]
				assert.Equal(t, 7, upd.UpdateID)
				assert.Equal(t, "/start ref_1", upd.Message.Text)
				assert.Equal(t, int64(2), upd.Message.From.ID)
				assert.Equal(t, "OK", w.Body.String())
			}
		})
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	s = newTestServer(t, pinger{err: errors.New("connection refused")})
	w = s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func seedReferral(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"1", "2"} {
		_, err := store.CreateAccountIfAbsent(ctx, &model.Account{ID: id, ChatAddress: id})
		require.NoError(t, err)
	}
	require.NoError(t, store.ApplyReferral(ctx, &model.ReferralEvent{
		RefereeID:      "2",
		ReferrerID:     "1",
		RefereeReward:  10000,
		ReferrerReward: 40000,
	}))
}

func TestGetAccount(t *testing.T) {
	s := newTestServer(t, nil)
	seedReferral(t, s.store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/1", nil)
	req.Header.Set("Authorization", telegramHeader("1"))
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var got accountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "1", got.ID)
	assert.Equal(t, int64(40000), got.Balance)
	assert.Nil(t, got.ReferredBy)
	assert.Equal(t, []string{"2"}, got.Referrals)
	assert.Equal(t, 1, got.ReferralCount)
	assert.Equal(t, "https://t.me/Chypto_Official_Bot?start=ref_1", got.ReferralLink)
}

func TestGetAccountAccess(t *testing.T) {
	s := newTestServer(t, nil)
	seedReferral(t, s.store)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{name: "no auth", path: "/api/v1/accounts/1", status: http.StatusUnauthorized},
		{name: "foreign account", path: "/api/v1/accounts/1", header: telegramHeader("2"), status: http.StatusForbidden},
		{name: "unknown account", path: "/api/v1/accounts/9", header: telegramHeader("9"), status: http.StatusNotFound},
		{name: "unknown referrals", path: "/api/v1/accounts/9/referrals", header: telegramHeader("9"), status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.status, s.do(req).Code)
		})
	}
}

func TestGetReferrals(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	signedUp := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"1", "2"} {
		_, err := s.store.CreateAccountIfAbsent(ctx, &model.Account{ID: id, ChatAddress: id, CreatedAt: signedUp})
		require.NoError(t, err)
	}
	seedReferral(t, s.store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/1/referrals", nil)
	req.Header.Set("Authorization", telegramHeader("1"))
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var got []referralResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, int64(10000), got[0].Balance)
	assert.True(t, got[0].JoinedAt.After(signedUp), "joined_at should be the referral time, not the signup time")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/accounts/2/referrals", nil)
	req.Header.Set("Authorization", telegramHeader("2"))
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}
