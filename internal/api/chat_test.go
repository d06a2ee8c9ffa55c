package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	backend "chatvault/internal/api"
	"chatvault/internal/chatdb"
	"chatvault/internal/database"
	"chatvault/internal/storage"
	"chatvault/pkg/api"
	"chatvault/pkg/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createChatDB(t *testing.T) *chatdb.ChatDB {
	engine := database.NewEngine(filepath.Join(t.TempDir(), "chat.db"), quietLogger())
	t.Cleanup(func() { engine.Close() }) //nolint:errcheck
	return chatdb.New(engine, storage.NewMemoryKVStore(), chatdb.WithLogger(quietLogger()))
}

func createRouter(store backend.ChatStore, saver *chatdb.SessionSaver) chi.Router {
	service := backend.NewChatService(store, saver, quietLogger())
	router := chi.NewRouter()
	service.AddRoutes(router)
	return router
}

func doRequest(t *testing.T, router chi.Router, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var res T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res
}

func TestSessionEndpoints(t *testing.T) {
	router := createRouter(createChatDB(t), nil)

	rec := doRequest(t, router, http.MethodGet, "/session/messages", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "primary", rec.Header().Get(api.StorageHeader))
	assert.Empty(t, decode[api.SessionResponse](t, rec).Messages)

	msgs := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}
	rec = doRequest(t, router, http.MethodPut, "/session/messages", api.SetSessionRequest{Messages: msgs})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "primary", decode[api.StorageResponse](t, rec).Storage)

	rec = doRequest(t, router, http.MethodGet, "/session/messages", nil)
	assert.Equal(t, msgs, decode[api.SessionResponse](t, rec).Messages)

	rec = doRequest(t, router, http.MethodDelete, "/session/messages", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/session/messages", nil)
	assert.Empty(t, decode[api.SessionResponse](t, rec).Messages)
}

func TestSessionEndpoints_BadBody(t *testing.T) {
	router := createRouter(createChatDB(t), nil)

	req := httptest.NewRequest(http.MethodPut, "/session/messages", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionEndpoints_Debounced(t *testing.T) {
	store := createChatDB(t)
	saver := chatdb.NewSessionSaver(store, time.Hour)
	router := createRouter(store, saver)

	msgs := []models.Message{{Role: models.RoleUser, Content: "draft"}}
	rec := doRequest(t, router, http.MethodPut, "/session/messages", api.SetSessionRequest{Messages: msgs})
	assert.Equal(t, backend.PathQueued, decode[api.StorageResponse](t, rec).Storage)

	rec = doRequest(t, router, http.MethodGet, "/status", nil)
	assert.True(t, decode[api.StatusResponse](t, rec).PendingSave)

	// Reads flush the pending save first.
	rec = doRequest(t, router, http.MethodGet, "/session/messages", nil)
	assert.Equal(t, msgs, decode[api.SessionResponse](t, rec).Messages)
	assert.False(t, saver.Pending())

	doRequest(t, router, http.MethodPut, "/session/messages", api.SetSessionRequest{Messages: msgs})
	doRequest(t, router, http.MethodDelete, "/session/messages", nil)
	assert.False(t, saver.Pending())

	rec = doRequest(t, router, http.MethodGet, "/session/messages", nil)
	assert.Empty(t, decode[api.SessionResponse](t, rec).Messages)
}

func TestHistoryEndpoints(t *testing.T) {
	router := createRouter(createChatDB(t), nil)

	for _, e := range []models.HistoryEntry{
		{ID: "a", Title: "first", SavedAt: 100},
		{ID: "b", Title: "second", SavedAt: 300},
		{ID: "c", Title: "third", SavedAt: 200},
	} {
		rec := doRequest(t, router, http.MethodPost, "/history", e)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, router, http.MethodGet, "/history", nil)
	assert.Equal(t, "primary", rec.Header().Get(api.StorageHeader))
	res := decode[api.HistoryResponse](t, rec)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "b", res.Entries[0].ID)
	assert.Equal(t, "c", res.Entries[1].ID)
	assert.Equal(t, "a", res.Entries[2].ID)
	assert.Equal(t, []models.HistoryMessage{}, res.Entries[0].Messages)

	rec = doRequest(t, router, http.MethodDelete, "/history?ids=a&ids=b&ids=missing", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/history", nil)
	res = decode[api.HistoryResponse](t, rec)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "c", res.Entries[0].ID)

	rec = doRequest(t, router, http.MethodDelete, "/history/all", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/history", nil)
	assert.Empty(t, decode[api.HistoryResponse](t, rec).Entries)
}

func TestHistoryEndpoints_Validation(t *testing.T) {
	router := createRouter(createChatDB(t), nil)

	rec := doRequest(t, router, http.MethodPost, "/history", models.HistoryEntry{Title: "no id"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/history/save", api.SaveChatRequest{Model: "m"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, "/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "primary", decode[api.StorageResponse](t, rec).Storage)
}

func TestSaveChat(t *testing.T) {
	router := createRouter(createChatDB(t), nil)

	savedAt := int64(1_700_000_000_000)
	req := api.SaveChatRequest{
		Model:   "llama-3",
		SavedAt: &savedAt,
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "describe this", Attachments: []models.Attachment{{Type: "image", Name: "x.png", Data: "AAAA"}}},
			{Role: models.RoleAssistant, Content: "a picture"},
		},
	}
	rec := doRequest(t, router, http.MethodPost, "/history/save", req)
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[api.SaveChatResponse](t, rec)
	assert.Equal(t, "primary", saved.Storage)
	assert.NotEmpty(t, saved.Entry.ID)
	assert.Equal(t, "describe this", saved.Entry.Title)

	rec = doRequest(t, router, http.MethodGet, "/history", nil)
	entries := decode[api.HistoryResponse](t, rec).Entries
	require.Len(t, entries, 1)
	assert.Equal(t, saved.Entry.ID, entries[0].ID)
	assert.Equal(t, savedAt, entries[0].SavedAt)
	assert.Equal(t, []models.AttachmentRef{{Type: "image", Name: "x.png"}}, entries[0].Messages[0].Attachments)
}

func TestFallbackIsReported(t *testing.T) {
	engine := database.NewEngineWithOpener(func(ctx context.Context) (*gorm.DB, error) {
		return nil, errors.New("storage engine unavailable")
	}, quietLogger())
	store := chatdb.New(engine, storage.NewMemoryKVStore(), chatdb.WithLogger(quietLogger()))
	router := createRouter(store, nil)

	rec := doRequest(t, router, http.MethodPost, "/history", models.HistoryEntry{ID: "a", SavedAt: 1})
	assert.Equal(t, http.StatusOK, rec.Code)
	res := decode[api.StorageResponse](t, rec)
	assert.Equal(t, "fallback", res.Storage)
	assert.Contains(t, res.Error, "storage engine unavailable")

	rec = doRequest(t, router, http.MethodGet, "/history", nil)
	assert.Equal(t, "fallback", rec.Header().Get(api.StorageHeader))
	assert.Len(t, decode[api.HistoryResponse](t, rec).Entries, 1)

	rec = doRequest(t, router, http.MethodGet, "/status", nil)
	status := decode[api.StatusResponse](t, rec)
	assert.False(t, status.EngineAvailable)
	assert.Contains(t, status.EngineError, "storage engine unavailable")
}

func TestSessionEndpoints_DegradedFlushIsLogged(t *testing.T) {
	engine := database.NewEngineWithOpener(func(ctx context.Context) (*gorm.DB, error) {
		return nil, errors.New("storage engine unavailable")
	}, quietLogger())
	store := chatdb.New(engine, storage.NewMemoryKVStore(), chatdb.WithLogger(quietLogger()))
	saver := chatdb.NewSessionSaver(store, time.Hour)

	var logs bytes.Buffer
	service := backend.NewChatService(store, saver, slog.New(slog.NewTextHandler(&logs, nil)))
	router := chi.NewRouter()
	service.AddRoutes(router)

	msgs := []models.Message{{Role: models.RoleUser, Content: "draft"}}
	doRequest(t, router, http.MethodPut, "/session/messages", api.SetSessionRequest{Messages: msgs})
	assert.Empty(t, logs.String())

	rec := doRequest(t, router, http.MethodGet, "/session/messages", nil)
	assert.Equal(t, msgs, decode[api.SessionResponse](t, rec).Messages)
	assert.Contains(t, logs.String(), "pending session save was degraded")
	assert.Contains(t, logs.String(), "storage=fallback")
}
