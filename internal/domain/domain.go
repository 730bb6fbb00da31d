package domain

import (
	"errors"
	"time"
)

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

type SummaryType string

const (
	SummaryTypeSingle   SummaryType = "single"
	SummaryTypeMultiple SummaryType = "multiple"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Document struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	OriginalName string            `json:"originalName"`
	StoredPath   string            `json:"storedPath"`
	Size         int64             `json:"size"`
	Status       DocumentStatus    `json:"status"`
	Text         string            `json:"text,omitempty"`
	PageCount    int               `json:"pageCount"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

type Summary struct {
	ID               string      `json:"id"`
	UserID           string      `json:"userId"`
	DocumentIDs      []string    `json:"documentIds"`
	Type             SummaryType `json:"type"`
	Content          string      `json:"content"`
	Model            string      `json:"model"`
	TokensUsed       int         `json:"tokensUsed"`
	ProcessingTimeMs int64       `json:"processingTimeMs"`
	Method           string      `json:"method"`
	ChunkCount       *int        `json:"chunkCount,omitempty"`
	DocumentCount    *int        `json:"documentCount,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// SummaryFilter narrows a per-user summary listing. Zero values match everything.
type SummaryFilter struct {
	DocumentID string
	Method     string
	Type       SummaryType
	Limit      int
}

func (f SummaryFilter) Match(s *Summary) bool {
	if f.Method != "" && s.Method != f.Method {
		return false
	}

	if f.Type != "" && s.Type != f.Type {
		return false
	}

	if f.DocumentID == "" {
		return true
	}

	for _, id := range s.DocumentIDs {
		if id == f.DocumentID {
			return true
		}
	}

	return false
}

// ErrInvalidInput reports a request that fails validation.
var ErrInvalidInput = errors.New("invalid input")
