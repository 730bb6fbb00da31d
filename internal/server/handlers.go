package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"docsummary/internal/auth"
	"docsummary/internal/domain"
	"docsummary/internal/summarizer"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type profileRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type summaryOptions struct {
	Model           string   `json:"model"`
	Temperature     *float64 `json:"temperature"`
	MaxOutputTokens int64    `json:"maxOutputTokens"`
}

func (o *summaryOptions) callOptions() (summarizer.CallOptions, error) {
	if o == nil {
		return summarizer.CallOptions{}, nil
	}

	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		return summarizer.CallOptions{}, fmt.Errorf("%w: temperature must be in [0, 2]", domain.ErrInvalidInput)
	}
	if o.MaxOutputTokens < 0 {
		return summarizer.CallOptions{}, fmt.Errorf("%w: maxOutputTokens must not be negative", domain.ErrInvalidInput)
	}

	return summarizer.CallOptions{
		Model:           o.Model,
		Temperature:     o.Temperature,
		MaxOutputTokens: o.MaxOutputTokens,
	}, nil
}

type singleSummaryRequest struct {
	DocumentID string          `json:"documentId"`
	Options    *summaryOptions `json:"options"`
}

type multipleSummaryRequest struct {
	DocumentIDs []string        `json:"documentIds"`
	Options     *summaryOptions `json:"options"`
}

func (s *Server) register(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	session, err := s.users.Register(c.Request().Context(), req.Email, req.Password, req.Name)
	if err != nil {
		return err
	}

	return ok(c, http.StatusCreated, newSessionView(session))
}

func (s *Server) login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	session, err := s.users.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return ok(c, http.StatusOK, newSessionView(session))
}

func (s *Server) profile(c echo.Context) error {
	user, err := s.users.Profile(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}

	return ok(c, http.StatusOK, newUserView(user))
}

func (s *Server) updateProfile(c echo.Context) error {
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	user, err := s.users.UpdateProfile(c.Request().Context(), auth.UserID(c), req.Name, req.Password)
	if err != nil {
		return err
	}

	return ok(c, http.StatusOK, newUserView(user))
}

func (s *Server) uploadDocument(c echo.Context) error {
	if s.maxUploadBytes > 0 {
		c.Request().Body = http.MaxBytesReader(
			c.Response(),
			c.Request().Body,
			s.maxUploadBytes+multipartOverhead,
		)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("read upload: %w", err)
		}

		return fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrInvalidInput)
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.log.WarnContext(c.Request().Context(), "Failed to close upload",
				"error", closeErr)
		}
	}()

	doc, err := s.documents.Upload(c.Request().Context(), auth.UserID(c), fh.Filename, f)
	if err != nil {
		return err
	}

	return ok(c, http.StatusCreated, newDocumentView(doc))
}

func (s *Server) listDocuments(c echo.Context) error {
	docs, err := s.documents.List(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}

	views := make([]documentView, 0, len(docs))
	for i := range docs {
		views = append(views, newDocumentView(&docs[i]))
	}

	return ok(c, http.StatusOK, views)
}

func (s *Server) getDocument(c echo.Context) error {
	doc, err := s.documents.Get(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return err
	}

	return ok(c, http.StatusOK, newDocumentView(doc))
}

func (s *Server) getDocumentText(c echo.Context) error {
	text, err := s.documents.Text(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return err
	}

	return ok(c, http.StatusOK, map[string]string{"id": c.Param("id"), "text": text})
}

func (s *Server) deleteDocument(c echo.Context) error {
	if err := s.documents.Delete(c.Request().Context(), auth.UserID(c), c.Param("id")); err != nil {
		return err
	}

	return ok(c, http.StatusOK, map[string]string{"id": c.Param("id")})
}

func (s *Server) summarizeSingle(c echo.Context) error {
	var req singleSummaryRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	if strings.TrimSpace(req.DocumentID) == "" {
		return fmt.Errorf("%w: documentId is required", domain.ErrInvalidInput)
	}

	call, err := req.Options.callOptions()
	if err != nil {
		return err
	}

	out, err := s.summaries.SummarizeDocument(c.Request().Context(), auth.UserID(c), req.DocumentID, call)
	if err != nil {
		return err
	}

	return ok(c, http.StatusCreated, newOutcomeView(out))
}

func (s *Server) summarizeMultiple(c echo.Context) error {
	var req multipleSummaryRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	call, err := req.Options.callOptions()
	if err != nil {
		return err
	}

	out, err := s.summaries.SummarizeDocuments(c.Request().Context(), auth.UserID(c), req.DocumentIDs, call)
	if err != nil {
		return err
	}

	return ok(c, http.StatusCreated, newOutcomeView(out))
}

func (s *Server) listSummaries(c echo.Context) error {
	filter := domain.SummaryFilter{
		DocumentID: c.QueryParam("documentId"),
		Method:     c.QueryParam("method"),
		Type:       domain.SummaryType(c.QueryParam("type")),
	}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrInvalidInput)
		}
		filter.Limit = limit
	}

	list, err := s.summaries.List(c.Request().Context(), auth.UserID(c), filter)
	if err != nil {
		return err
	}

	if list == nil {
		list = []domain.Summary{}
	}

	return ok(c, http.StatusOK, list)
}

func (s *Server) getSummary(c echo.Context) error {
	summary, err := s.summaries.Get(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return err
	}

	return ok(c, http.StatusOK, summary)
}

func (s *Server) deleteSummary(c echo.Context) error {
	if err := s.summaries.Delete(c.Request().Context(), auth.UserID(c), c.Param("id")); err != nil {
		return err
	}

	return ok(c, http.StatusOK, map[string]string{"id": c.Param("id")})
}

func (s *Server) summaryStatus(c echo.Context) error {
	return ok(c, http.StatusOK, s.summaries.Status(c.Request().Context()))
}
