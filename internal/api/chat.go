package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"chatvault/internal/chatdb"
	"chatvault/pkg/api"
	"chatvault/pkg/models"

	"github.com/go-chi/chi/v5"
)

// ChatStore is the storage facade served over HTTP. It is implemented by
// *chatdb.ChatDB.
type ChatStore interface {
	GetSessionMessages(ctx context.Context) ([]models.Message, chatdb.Outcome)
	SetSessionMessages(ctx context.Context, msgs []models.Message) chatdb.Outcome
	ClearSessionMessages(ctx context.Context) chatdb.Outcome
	GetAllHistory(ctx context.Context) ([]models.HistoryEntry, chatdb.Outcome)
	PutHistoryChat(ctx context.Context, entry models.HistoryEntry) chatdb.Outcome
	DeleteHistoryChats(ctx context.Context, ids []string) chatdb.Outcome
	ClearAllHistory(ctx context.Context) chatdb.Outcome
	Status(ctx context.Context) chatdb.Status
}

// PathQueued is reported for a session save that was accepted by the
// debouncer and has not been written yet.
const PathQueued = "queued"

type ChatService struct {
	store  ChatStore
	saver  *chatdb.SessionSaver
	logger *slog.Logger
	now    func() time.Time
}

// NewChatService serves store. When saver is non-nil, session saves are
// debounced through it; saver must wrap the same store. A nil logger means
// slog.Default().
func NewChatService(store ChatStore, saver *chatdb.SessionSaver, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{store: store, saver: saver, logger: logger, now: time.Now}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Get("/status", RestHandler(s.GetStatus))

	r.Route("/session", func(r chi.Router) {
		r.Get("/messages", RestHandler(s.GetSessionMessages))
		r.Put("/messages", RestHandler(s.SetSessionMessages))
		r.Delete("/messages", RestHandler(s.ClearSessionMessages))
	})

	r.Route("/history", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetHistory))
		r.Post("/", RestHandler(s.PutHistoryChat))
		r.Post("/save", RestHandler(s.SaveChat))
		r.Delete("/", RestHandler(s.DeleteHistoryChats))
		r.Delete("/all", RestHandler(s.ClearHistory))
	})
}

func storageResponse(outcome chatdb.Outcome) api.StorageResponse {
	res := api.StorageResponse{Storage: string(outcome.Path)}
	if outcome.Err != nil {
		res.Error = outcome.Err.Error()
	}
	return res
}

func (s *ChatService) flushPending(ctx context.Context) {
	if s.saver == nil {
		return
	}
	if outcome, wrote := s.saver.Flush(ctx); wrote && outcome.Degraded() {
		s.logger.Warn("pending session save was degraded", "storage", outcome.Path, "error", outcome.Err)
	}
}

func (s *ChatService) GetSessionMessages(r *http.Request) (any, error) {
	s.flushPending(r.Context())

	msgs, outcome := s.store.GetSessionMessages(r.Context())
	return api.SessionResponse{Messages: msgs, Storage: string(outcome.Path)}, nil
}

func (s *ChatService) SetSessionMessages(r *http.Request) (any, error) {
	req, err := ParseRequest[api.SetSessionRequest](r)
	if err != nil {
		return nil, err
	}

	if s.saver != nil {
		s.saver.Save(req.Messages)
		return api.StorageResponse{Storage: PathQueued}, nil
	}

	return storageResponse(s.store.SetSessionMessages(r.Context(), req.Messages)), nil
}

func (s *ChatService) ClearSessionMessages(r *http.Request) (any, error) {
	// A pending save must not land after the clear.
	s.flushPending(r.Context())

	return storageResponse(s.store.ClearSessionMessages(r.Context())), nil
}

func (s *ChatService) GetHistory(r *http.Request) (any, error) {
	entries, outcome := s.store.GetAllHistory(r.Context())
	return api.HistoryResponse{Entries: entries, Storage: string(outcome.Path)}, nil
}

func (s *ChatService) PutHistoryChat(r *http.Request) (any, error) {
	entry, err := ParseRequest[models.HistoryEntry](r)
	if err != nil {
		return nil, err
	}

	if entry.ID == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "history entry must have an id")
	}
	if entry.Messages == nil {
		entry.Messages = []models.HistoryMessage{}
	}

	return storageResponse(s.store.PutHistoryChat(r.Context(), entry)), nil
}

func (s *ChatService) SaveChat(r *http.Request) (any, error) {
	req, err := ParseRequest[api.SaveChatRequest](r)
	if err != nil {
		return nil, err
	}

	if len(req.Messages) == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "cannot save a chat without messages")
	}

	savedAt := s.now().UnixMilli()
	if req.SavedAt != nil {
		savedAt = *req.SavedAt
	}

	entry := models.NewHistoryEntry(req.Messages, req.Model, savedAt)
	outcome := s.store.PutHistoryChat(r.Context(), entry)

	return api.SaveChatResponse{Entry: entry, Storage: string(outcome.Path)}, nil
}

func (s *ChatService) DeleteHistoryChats(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.DeleteHistoryParams](r)
	if err != nil {
		return nil, err
	}

	return storageResponse(s.store.DeleteHistoryChats(r.Context(), params.Ids)), nil
}

func (s *ChatService) ClearHistory(r *http.Request) (any, error) {
	return storageResponse(s.store.ClearAllHistory(r.Context())), nil
}

func (s *ChatService) GetStatus(r *http.Request) (any, error) {
	status := s.store.Status(r.Context())

	res := api.StatusResponse{
		EngineAvailable:  status.EngineAvailable,
		EngineError:      status.EngineError,
		MigrationVersion: status.MigrationVersion,
		SessionStored:    status.SessionStored,
		HistoryEntries:   status.HistoryEntries,
	}
	if s.saver != nil {
		res.PendingSave = s.saver.Pending()
	}
	return res, nil
}
