package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/qiuhuiming/titan-track/internal/auth"
	"github.com/qiuhuiming/titan-track/internal/domain"
	"github.com/qiuhuiming/titan-track/internal/persistence/memory"
)

const testSecret = "handler-test-secret"

var serverNow = time.Date(2025, time.June, 2, 18, 30, 0, 0, time.UTC)

func newTestRouter(t *testing.T, engine Syncer) http.Handler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mw := auth.NewMiddleware(auth.Config{Keys: auth.NewKeySet(testSecret, "", 0)}, logger)
	return NewRouter(NewHandler(engine, logger), RouterConfig{
		Authenticate:  mw.Wrap,
		ExposeMetrics: true,
	})
}

func mintToken(t *testing.T, subject string, scopes ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if len(scopes) > 0 {
		claims["scopes"] = scopes
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func postSync(t *testing.T, router http.Handler, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/sync", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSyncRoundTrip(t *testing.T) {
	engine := domain.NewEngine(memory.NewStore(), domain.WithClock(func() time.Time { return serverNow }))
	router := newTestRouter(t, engine)
	token := mintToken(t, "user-1")

	rec := postSync(t, router, token, `{
		"device_id": "phone",
		"last_sync_at": null,
		"exercises": [{"id":"e1","name":"Bench Press","muscleGroup":"Chest","equipment":"Barbell","personalBest":100}],
		"workout_plans": [{"id":"p1","date":"2025-06-03","title":"Push","tags":["upper"],"exercises":[{"exerciseId":"e1"}]}],
		"workout_entries": [{"id":"w1","date":"2025-06-03","exerciseId":"e1","workoutType":"strength","sets":[{"reps":5,"weight":100}]}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		ServerTime     time.Time                `json:"server_time"`
		Exercises      []map[string]interface{} `json:"exercises"`
		WorkoutPlans   []map[string]interface{} `json:"workout_plans"`
		WorkoutEntries []map[string]interface{} `json:"workout_entries"`
		Conflicts      []map[string]interface{} `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, serverNow.Equal(resp.ServerTime))
	require.NotNil(t, resp.Conflicts)
	require.Empty(t, resp.Conflicts)

	require.Len(t, resp.Exercises, 1)
	exercise := resp.Exercises[0]
	require.Equal(t, "e1", exercise["id"])
	require.Equal(t, "Chest", exercise["muscleGroup"])
	require.Equal(t, 100.0, exercise["personalBest"])
	require.Equal(t, 1.0, exercise["version"])
	require.Equal(t, false, exercise["isDeleted"])
	require.Nil(t, exercise["notes"])

	require.Len(t, resp.WorkoutPlans, 1)
	require.Equal(t, "2025-06-03", resp.WorkoutPlans[0]["date"])
	require.Equal(t, []interface{}{"upper"}, resp.WorkoutPlans[0]["tags"])
	require.Equal(t, false, resp.WorkoutPlans[0]["isCompleted"])

	require.Len(t, resp.WorkoutEntries, 1)
	require.Equal(t, "e1", resp.WorkoutEntries[0]["exerciseId"])
	require.Equal(t, "strength", resp.WorkoutEntries[0]["workoutType"])
	require.Nil(t, resp.WorkoutEntries[0]["planId"])

	// A second device sees the same rows when pulling with an empty batch.
	rec = postSync(t, router, token, `{"device_id":"tablet","last_sync_at":"2025-06-01T00:00:00"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Exercises, 1)
	require.Len(t, resp.WorkoutPlans, 1)
	require.Len(t, resp.WorkoutEntries, 1)

	// Other users see nothing.
	rec = postSync(t, router, mintToken(t, "user-2"), `{"device_id":"phone"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Exercises)
}

func TestSyncReportsConflicts(t *testing.T) {
	clock := serverNow
	engine := domain.NewEngine(memory.NewStore(), domain.WithClock(func() time.Time { return clock }))
	router := newTestRouter(t, engine)
	token := mintToken(t, "user-1")

	rec := postSync(t, router, token, `{"device_id":"phone","workout_plans":[{"id":"p1","date":"2025-06-03","title":"Push","version":3}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	clock = clock.Add(time.Minute)
	rec = postSync(t, router, token, `{"device_id":"tablet","workout_plans":[{"id":"p1","date":"2025-06-03","title":"Stale","version":2}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"entity_type":"workout_plan","entity_id":"p1","resolution":"server_wins","server_version":3,"client_version":2}]`,
		string(extractField(t, rec.Body.Bytes(), "conflicts")))
}

func extractField(t *testing.T, body []byte, field string) json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &fields))
	return fields[field]
}

func TestSyncAuthentication(t *testing.T) {
	router := newTestRouter(t, stubSyncer{})

	rec := postSync(t, router, "", `{"device_id":"phone"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorized", decodeError(t, rec)["type"])

	rec = postSync(t, router, "not-a-jwt", `{"device_id":"phone"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postSync(t, router, mintToken(t, "user-1", "profile:read"), `{"device_id":"phone"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden", decodeError(t, rec)["type"])

	rec = postSync(t, router, mintToken(t, "user-1", "profile:read", auth.ScopeSyncWrite), `{"device_id":"phone"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncRequestValidation(t *testing.T) {
	router := newTestRouter(t, stubSyncer{})
	token := mintToken(t, "user-1")

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "malformed json", body: `{"device_id":`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "records not objects", body: `{"device_id":"phone","exercises":"e1"}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing device", body: `{"exercises":[]}`, status: http.StatusBadRequest, code: "validation_failed"},
		{name: "device too long", body: fmt.Sprintf(`{"device_id":%q}`, strings.Repeat("d", 65)), status: http.StatusBadRequest, code: "validation_failed"},
		{name: "bad watermark", body: `{"device_id":"phone","last_sync_at":"last tuesday"}`, status: http.StatusBadRequest, code: "validation_failed"},
		{name: "bad muscle group", body: `{"device_id":"phone","exercises":[{"id":"e1","name":"Curl","muscleGroup":"Toes"}]}`, status: http.StatusBadRequest, code: "validation_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postSync(t, router, token, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			require.Equal(t, tc.code, decodeError(t, rec)["type"])
		})
	}

	rec := postSync(t, router, token, fmt.Sprintf(`{"device_id":%q}`, strings.Repeat("d", 64)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "validation", err: &domain.ValidationError{Kind: domain.KindExercise, ID: "e1", Field: "name", Err: errors.New("required")}, status: http.StatusBadRequest, code: "validation_failed"},
		{name: "concurrent write", err: fmt.Errorf("update exercise: %w", domain.ErrConcurrentModification), status: http.StatusConflict, code: "conflict"},
		{name: "duplicate id", err: domain.ErrEntityExists, status: http.StatusInternalServerError, code: "server_error"},
		{name: "database down", err: errors.New("connection refused"), status: http.StatusInternalServerError, code: "server_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, stubSyncer{err: tc.err})
			rec := postSync(t, router, mintToken(t, "user-1"), `{"device_id":"phone"}`)
			require.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			require.Equal(t, tc.code, body["type"])
			require.NotContains(t, body["detail"], "connection refused")
		})
	}
}

func TestSyncPassesIdentityAndWatermark(t *testing.T) {
	stub := &recordingSyncer{}
	router := newTestRouter(t, stub)

	rec := postSync(t, router, mintToken(t, "user-9"), `{"device_id":"watch","last_sync_at":"2025-06-01T10:00:00+02:00","workout_entries":[{"id":"w1","date":"2025-06-01","exerciseId":"e1"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.Identity{UserID: "user-9", DeviceID: "watch"}, stub.identity)
	require.NotNil(t, stub.lastSyncAt)
	require.True(t, time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC).Equal(*stub.lastSyncAt))
	require.Len(t, stub.batch.Entries, 1)
}

func TestViewsRenderDatesAndEmptyArrays(t *testing.T) {
	planID := "p1"
	created := time.Date(2025, time.June, 1, 7, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	resp := toSyncResponse(&domain.Result{
		ServerTime: serverNow,
		Plans: []domain.WorkoutPlan{{
			SyncMeta: domain.SyncMeta{ID: "p1", Version: 2, CreatedAt: created, UpdatedAt: created},
			Date:     time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC),
		}},
		Entries: []domain.WorkoutEntry{{
			SyncMeta: domain.SyncMeta{ID: "w1", Version: 1, CreatedAt: created, UpdatedAt: created},
			Date:     time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC),
			PlanID:   &planID,
		}},
	})

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(resp))
	body := buf.Bytes()

	require.JSONEq(t, `[]`, string(extractField(t, body, "exercises")))
	require.JSONEq(t, `[]`, string(extractField(t, body, "conflicts")))
	require.JSONEq(t, `[{
		"id":"p1","date":"2025-06-03","title":"","tags":[],"exercises":[],"isCompleted":false,
		"version":2,"updatedAt":"2025-06-01T05:00:00Z","createdAt":"2025-06-01T05:00:00Z","isDeleted":false
	}]`, string(extractField(t, body, "workout_plans")))
	require.JSONEq(t, `[{
		"id":"w1","date":"2025-06-03","exerciseId":"","workoutType":"","sets":[],"planId":"p1",
		"version":1,"updatedAt":"2025-06-01T05:00:00Z","createdAt":"2025-06-01T05:00:00Z","isDeleted":false
	}]`, string(extractField(t, body, "workout_entries")))
}

func TestHealthAndMetricsSkipAuth(t *testing.T) {
	router := newTestRouter(t, stubSyncer{})

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sync", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type stubSyncer struct {
	err error
}

func (s stubSyncer) Sync(context.Context, domain.Identity, *time.Time, domain.ClientBatch) (*domain.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Result{ServerTime: serverNow, Conflicts: []domain.Conflict{}}, nil
}

type recordingSyncer struct {
	identity   domain.Identity
	lastSyncAt *time.Time
	batch      domain.ClientBatch
}

func (s *recordingSyncer) Sync(_ context.Context, id domain.Identity, lastSyncAt *time.Time, batch domain.ClientBatch) (*domain.Result, error) {
	s.identity = id
	s.lastSyncAt = lastSyncAt
	s.batch = batch
	return &domain.Result{ServerTime: serverNow}, nil
}
