package server

import (
	"time"
	"unicode/utf8"

	"docsummary/internal/domain"
	"docsummary/internal/summarizer"
	"docsummary/internal/summaries"
	"docsummary/internal/users"
)

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newUserView(u *domain.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type sessionView struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      userView  `json:"user"`
}

func newSessionView(s *users.Session) sessionView {
	return sessionView{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		User:      newUserView(s.User),
	}
}

// documentView omits the extracted text, which is served separately.
type documentView struct {
	ID           string                `json:"id"`
	OriginalName string                `json:"originalName"`
	Size         int64                 `json:"size"`
	Status       domain.DocumentStatus `json:"status"`
	PageCount    int                   `json:"pageCount"`
	TextLength   int                   `json:"textLength"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
	Error        string                `json:"error,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

func newDocumentView(d *domain.Document) documentView {
	return documentView{
		ID:           d.ID,
		OriginalName: d.OriginalName,
		Size:         d.Size,
		Status:       d.Status,
		PageCount:    d.PageCount,
		TextLength:   utf8.RuneCountInString(d.Text),
		Metadata:     d.Metadata,
		Error:        d.Error,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type outcomeView struct {
	Summary             *domain.Summary                `json:"summary"`
	IndividualSummaries []summarizer.IndividualSummary `json:"individualSummaries,omitempty"`
}

func newOutcomeView(o *summaries.Outcome) outcomeView {
	return outcomeView{
		Summary:             o.Summary,
		IndividualSummaries: o.Individual,
	}
}
