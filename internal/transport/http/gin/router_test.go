package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/notify"
	"github.com/kirinyoku/studio-booking/internal/repository/memory"
	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
	"github.com/kirinyoku/studio-booking/internal/service"
)

const testSecret = "s3cret"

type testServer struct {
	router *gin.Engine
	store  *memory.Store
}

func newTestServer(t *testing.T, withBackend bool, idem *redisrepo.IdempotencyStore) *testServer {
	t.Helper()
	return newTestServerWithFeed(t, withBackend, idem, nil)
}

func newTestServerWithFeed(
	t *testing.T,
	withBackend bool,
	idem *redisrepo.IdempotencyStore,
	feed *redisrepo.AvailabilityFeed,
) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := service.Deps{
		Dispatcher: notify.NewDispatcher(nil, nil, logger, notify.Config{}),
		Logger:     logger,
	}

	var (
		store *memory.Store
		repos *service.Repositories
	)
	if withBackend {
		store = memory.New()
		repos = service.MemoryRepositories(store)
	}

	svcs := service.NewServices(repos, deps, service.Config{})
	r := NewRouter(svcs, Options{
		Logger:      logger,
		Idem:        idem,
		Feed:        feed,
		AdminSecret: testSecret,
		Backend:     "memory",
	})

	return &testServer{router: r, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) seedEdition(t *testing.T, capacity int) (*domain.Edition, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	e, err := s.store.CreateEdition(ctx, domain.EditionDraft{
		ProgrammeKey: "upa-yoga",
		Title:        "Upa Yoga",
		StartDate:    time.Now().Add(48 * time.Hour),
		Active:       true,
		Type:         domain.EditionCollective,
		Sessions: []domain.SessionDraft{{
			Number: 1,
			Title:  "Intro",
			DateOptions: []domain.DateOptionDraft{
				{DateTime: time.Now().Add(72 * time.Hour), Location: "Studio", MaxCapacity: capacity},
			},
		}},
	})
	require.NoError(t, err)

	sessions, err := s.store.ListSessions(ctx, e.ID)
	require.NoError(t, err)
	return e, sessions[0].DateOptions[0].ID
}

func registerBody(first string, options ...uuid.UUID) RegisterRequest {
	return RegisterRequest{
		FirstName:   first,
		LastName:    "Doe",
		Email:       first + "@example.com",
		Phone:       "+34 600 000 000",
		Consent:     true,
		DateChoices: options,
	}
}

func TestRouter_RegistrationFillsDateOption(t *testing.T) {
	s := newTestServer(t, true, nil)
	edition, opt := s.seedEdition(t, 2)
	path := "/programmes/" + edition.ID.String() + "/register"

	for _, name := range []string{"alice", "bob"} {
		w := s.do(t, http.MethodPost, path, registerBody(name, opt), nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var resp RegisterResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.True(t, resp.Success)
		_, err := uuid.Parse(resp.RegistrationID)
		require.NoError(t, err)
	}

	w := s.do(t, http.MethodPost, path, registerBody("carol", opt), nil)
	require.Equal(t, http.StatusConflict, w.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	require.Equal(t, []uuid.UUID{opt}, errResp.FullDates)
	require.Equal(t, 2, s.store.RegistrationCount())

	w = s.do(t, http.MethodGet, "/programmes/"+edition.ID.String()+"/availability", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var avail domain.EditionAvailability
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &avail))
	require.Equal(t, 2, avail.Availability[opt].CurrentCount)
	require.True(t, avail.Availability[opt].IsFull)
}

func TestRouter_RegistrationByProgrammeKey(t *testing.T) {
	s := newTestServer(t, true, nil)
	_, opt := s.seedEdition(t, 5)

	w := s.do(t, http.MethodPost, "/programmes/upa-yoga/register", registerBody("alice", opt), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestRouter_RegistrationValidation(t *testing.T) {
	s := newTestServer(t, true, nil)
	edition, opt := s.seedEdition(t, 2)
	path := "/programmes/" + edition.ID.String() + "/register"

	body := registerBody("alice", opt)
	body.Consent = false
	body.Email = "not-an-email"

	w := s.do(t, http.MethodPost, path, body, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	require.NotEmpty(t, errResp.Details)

	w = s.do(t, http.MethodPost, path, registerBody("alice"), nil)
	require.Equal(t, http.StatusBadRequest, w.Code, "no date choices")
	require.Zero(t, s.store.RegistrationCount())
}

func TestRouter_UnknownEdition(t *testing.T) {
	s := newTestServer(t, true, nil)

	w := s.do(t, http.MethodGet, "/programmes/"+uuid.NewString(), nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/programmes/no-such-programme", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_NoBackend(t *testing.T) {
	s := newTestServer(t, false, nil)

	w := s.do(t, http.MethodGet, "/programmes/upa-yoga", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, http.MethodGet, "/events", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	require.Equal(t, false, health["available"])
}

func TestRouter_PastEvent(t *testing.T) {
	s := newTestServer(t, true, nil)

	ev := &domain.Event{
		Title:       "Full moon",
		DateTime:    time.Now().Add(-time.Hour),
		Location:    "Beach",
		MaxCapacity: 10,
		Active:      true,
	}
	require.NoError(t, s.store.CreateEvent(context.Background(), ev))

	w := s.do(t, http.MethodGet, "/events/"+ev.ID.String(), nil, nil)
	require.Equal(t, http.StatusGone, w.Code)

	w = s.do(t, http.MethodPost, "/events/"+ev.ID.String()+"/register", registerBody("alice"), nil)
	require.Equal(t, http.StatusGone, w.Code)

	w = s.do(t, http.MethodGet, "/events", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestRouter_EventRegistration(t *testing.T) {
	s := newTestServer(t, true, nil)

	ev := &domain.Event{
		Title:       "Sound bath",
		DateTime:    time.Now().Add(24 * time.Hour),
		Location:    "Studio",
		MaxCapacity: 1,
		Active:      true,
	}
	require.NoError(t, s.store.CreateEvent(context.Background(), ev))
	path := "/events/" + ev.ID.String() + "/register"

	w := s.do(t, http.MethodPost, path, registerBody("alice"), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, path, registerBody("bob"), nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/events/"+ev.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got domain.EventWithAvailability
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.True(t, got.IsFull)
	require.Equal(t, 0, got.RemainingSpots)

	w = s.do(t, http.MethodGet, "/events/not-a-uuid", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_AdminAuth(t *testing.T) {
	s := newTestServer(t, true, nil)

	w := s.do(t, http.MethodGet, "/admin/editions", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/admin/login", LoginRequest{Secret: "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/admin/login", LoginRequest{Secret: testSecret}, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, adminCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotContains(t, cookies[0].Value, testSecret)

	header := http.Header{"Cookie": {cookies[0].Name + "=" + cookies[0].Value}}
	w = s.do(t, http.MethodGet, "/admin/editions", nil, header)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	forged := http.Header{"Cookie": {adminCookie + "=" + testSecret}}
	w = s.do(t, http.MethodGet, "/admin/editions", nil, forged)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_IdempotentRegistration(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newTestServer(t, true, redisrepo.NewIdempotencyStore(rdb, time.Hour, time.Minute))
	edition, opt := s.seedEdition(t, 5)
	path := "/programmes/" + edition.ID.String() + "/register"
	header := http.Header{"Idempotency-Key": {"form-1"}}

	first := s.do(t, http.MethodPost, path, registerBody("alice", opt), header)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	require.Equal(t, "form-1", first.Header().Get("Idempotency-Key"))

	second := s.do(t, http.MethodPost, path, registerBody("alice", opt), header)
	require.Equal(t, http.StatusCreated, second.Code)
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, s.store.RegistrationCount())

	// A failed attempt frees its key.
	bad := http.Header{"Idempotency-Key": {"form-2"}}
	w := s.do(t, http.MethodPost, path, registerBody("bob"), bad)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, path, registerBody("bob", opt), bad)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, 2, s.store.RegistrationCount())
}

// streamRecorder adds the CloseNotify that gin's Stream requires.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func TestRouter_AvailabilityStreamEndsWhenFeedDrops(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newTestServerWithFeed(t, true, nil, redisrepo.NewAvailabilityFeed(rdb))
	edition, _ := s.seedEdition(t, 2)

	// Redis goes away before the subscription is made.
	mr.Close()

	req := httptest.NewRequest(http.MethodGet, "/programmes/"+edition.ID.String()+"/availability/stream", nil)
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.router.ServeHTTP(w, req)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream kept running without a subscription")
	}

	body := w.Body.String()
	require.True(t, strings.Contains(body, "event:availability"), body)
	require.True(t, strings.Contains(body, "event:error"), body)
	require.Contains(t, body, "availability feed interrupted")
}
