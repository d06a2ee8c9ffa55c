package api

import "chatvault/pkg/models"

// StorageHeader carries the storage path that served a request.
const StorageHeader = "X-Storage-Path"

type SetSessionRequest struct {
	Messages []models.Message `json:"messages"`
}

type SessionResponse struct {
	Messages []models.Message `json:"messages"`
	Storage  string           `json:"storage"`
}

type SaveChatRequest struct {
	Messages []models.Message `json:"messages"`
	Model    string           `json:"model"`
	SavedAt  *int64           `json:"savedAt,omitempty"` // unix milliseconds, defaults to now
}

type SaveChatResponse struct {
	Entry   models.HistoryEntry `json:"entry"`
	Storage string              `json:"storage"`
}

type HistoryResponse struct {
	Entries []models.HistoryEntry `json:"entries"`
	Storage string                `json:"storage"`
}

type DeleteHistoryParams struct {
	Ids []string `schema:"ids"`
}

type StorageResponse struct {
	Storage string `json:"storage"`
	Error   string `json:"error,omitempty"`
}

type StatusResponse struct {
	EngineAvailable  bool   `json:"engine_available"`
	EngineError      string `json:"engine_error,omitempty"`
	MigrationVersion int    `json:"migration_version"`
	SessionStored    bool   `json:"session_stored"`
	HistoryEntries   int64  `json:"history_entries"`
	PendingSave      bool   `json:"pending_save"`
}

func (r SessionResponse) StoragePath() string { return r.Storage }

func (r SaveChatResponse) StoragePath() string { return r.Storage }

func (r HistoryResponse) StoragePath() string { return r.Storage }

func (r StorageResponse) StoragePath() string { return r.Storage }
