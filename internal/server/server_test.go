package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsummary/internal/auth"
	"docsummary/internal/documents"
	"docsummary/internal/domain"
	"docsummary/internal/metrics"
	"docsummary/internal/store"
	"docsummary/internal/store/jsonfile"
	"docsummary/internal/summaries"
	"docsummary/internal/summarizer"
	"docsummary/internal/upload"
	"docsummary/internal/users"
)

type nopQueue struct{}

func (nopQueue) Enqueue(context.Context, string) error { return nil }

type stubInvoker struct {
	err error
}

func (s *stubInvoker) Invoke(_ context.Context, req summarizer.Request) (*summarizer.Response, error) {
	if s.err != nil {
		return nil, s.err
	}

	return &summarizer.Response{Text: "summary via " + string(req.Step), Model: "stub-model"}, nil
}

type testServer struct {
	handler http.Handler
	store   store.Store
}

func newTestServer(t *testing.T, invoker summarizer.Invoker) *testServer {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := jsonfile.Open(context.Background(), t.TempDir(), log)
	require.NoError(t, err)

	storage, err := upload.New(t.TempDir(), 1<<20)
	require.NoError(t, err)

	issuer := auth.NewIssuer("test-secret", time.Hour)
	m := metrics.New()
	engine := summarizer.NewEngine(invoker, summarizer.DefaultOptions(), m, log)

	srv := New(Deps{
		Users:          users.New(s, issuer, log),
		Documents:      documents.New(s, storage, nopQueue{}, log),
		Summaries:      summaries.New(s, engine, time.Minute, log),
		Issuer:         issuer,
		Metrics:        m.Handler(),
		MaxUploadBytes: 1 << 20,
	}, log)

	return &testServer{handler: srv.Handler(), store: s}
}

type response struct {
	Status  int
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return ts.send(t, req, token)
}

func (ts *testServer) upload(t *testing.T, token, name string, content []byte) response {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	return ts.send(t, req, token)
}

func (ts *testServer) send(t *testing.T, req *http.Request, token string) response {
	t.Helper()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	resp := response{Status: rec.Code}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}

	return resp
}

func (ts *testServer) register(t *testing.T, email string) string {
	t.Helper()

	resp := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "secret1",
		"name":     "Tester",
	})
	require.Equal(t, http.StatusCreated, resp.Status)

	var session sessionView
	require.NoError(t, json.Unmarshal(resp.Data, &session))

	return session.Token
}

// completedDocument uploads a PDF and marks it extracted with text.
func (ts *testServer) completedDocument(t *testing.T, token, name, text string) string {
	t.Helper()

	resp := ts.upload(t, token, name, []byte("%PDF-1.4 test"))
	require.Equal(t, http.StatusCreated, resp.Status)

	var view documentView
	require.NoError(t, json.Unmarshal(resp.Data, &view))

	doc, err := ts.store.FindDocumentByID(context.Background(), view.ID)
	require.NoError(t, err)

	doc.Status = domain.DocumentStatusCompleted
	doc.Text = text
	require.NoError(t, ts.store.UpdateDocument(context.Background(), doc))

	return view.ID
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, &stubInvoker{})

	token := ts.register(t, "ada@example.com")

	resp := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "ADA@example.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.False(t, resp.Success)
	assert.Equal(t, "CONFLICT", resp.Error.Code)

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Status)

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.Status)
	assert.NotContains(t, string(resp.Data), "passwordHash")

	resp = ts.do(t, http.MethodGet, "/api/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, resp.Status)

	var user userView
	require.NoError(t, json.Unmarshal(resp.Data, &user))
	assert.Equal(t, "ada@example.com", user.Email)

	resp = ts.do(t, http.MethodPut, "/api/auth/profile", token, map[string]string{"name": "Ada L."})
	require.Equal(t, http.StatusOK, resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, &user))
	assert.Equal(t, "Ada L.", user.Name)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, &stubInvoker{})

	for _, path := range []string{"/api/auth/profile", "/api/documents", "/api/summaries", "/api/summaries/status"} {
		t.Run(path, func(t *testing.T) {
			resp := ts.do(t, http.MethodGet, path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)

			resp = ts.do(t, http.MethodGet, path, "garbage", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.Status)
		})
	}
}

func TestDocumentRoutes(t *testing.T) {
	ts := newTestServer(t, &stubInvoker{})
	token := ts.register(t, "ada@example.com")
	other := ts.register(t, "bob@example.com")

	resp := ts.upload(t, token, "notes.txt", []byte("%PDF-1.4"))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)

	resp = ts.upload(t, token, "fake.pdf", []byte("<html></html>"))
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = ts.upload(t, token, "report.pdf", []byte("%PDF-1.4 body"))
	require.Equal(t, http.StatusCreated, resp.Status)

	var doc documentView
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	assert.Equal(t, "report.pdf", doc.OriginalName)
	assert.Equal(t, domain.DocumentStatusPending, doc.Status)

	resp = ts.do(t, http.MethodGet, "/api/documents/"+doc.ID+"/text", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status, "text is not extracted yet")

	resp = ts.do(t, http.MethodGet, "/api/documents/"+doc.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	resp = ts.do(t, http.MethodGet, "/api/documents", token, nil)
	require.Equal(t, http.StatusOK, resp.Status)

	var docs []documentView
	require.NoError(t, json.Unmarshal(resp.Data, &docs))
	require.Len(t, docs, 1)

	resp = ts.do(t, http.MethodDelete, "/api/documents/"+doc.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.Status)

	resp = ts.do(t, http.MethodGet, "/api/documents/"+doc.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestSummaryRoutes(t *testing.T) {
	ts := newTestServer(t, &stubInvoker{})
	token := ts.register(t, "ada@example.com")

	first := ts.completedDocument(t, token, "first.pdf", "First document text.")
	second := ts.completedDocument(t, token, "second.pdf", "Second document text.")

	resp := ts.do(t, http.MethodGet, "/api/documents/"+first+"/text", token, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Data), "First document text.")

	resp = ts.do(t, http.MethodPost, "/api/summaries/single", token, map[string]any{
		"documentId": first,
		"options":    map[string]any{"temperature": 0, "maxOutputTokens": 500},
	})
	require.Equal(t, http.StatusCreated, resp.Status)

	var single outcomeView
	require.NoError(t, json.Unmarshal(resp.Data, &single))
	assert.Equal(t, "stuff", single.Summary.Method)
	assert.Equal(t, "summary via stuff", single.Summary.Content)

	resp = ts.do(t, http.MethodPost, "/api/summaries/multiple", token, map[string]any{
		"documentIds": []string{second, first},
	})
	require.Equal(t, http.StatusCreated, resp.Status)

	var multiple outcomeView
	require.NoError(t, json.Unmarshal(resp.Data, &multiple))
	assert.Equal(t, []string{second, first}, multiple.Summary.DocumentIDs)
	require.NotNil(t, multiple.Summary.DocumentCount)
	assert.Equal(t, 2, *multiple.Summary.DocumentCount)

	resp = ts.do(t, http.MethodPost, "/api/summaries/multiple", token, map[string]any{
		"documentIds": []string{first},
	})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = ts.do(t, http.MethodPost, "/api/summaries/single", token, map[string]any{
		"documentId": first,
		"options":    map[string]any{"temperature": 5},
	})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = ts.do(t, http.MethodGet, "/api/summaries?type=multiple", token, nil)
	require.Equal(t, http.StatusOK, resp.Status)

	var list []domain.Summary
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, multiple.Summary.ID, list[0].ID)

	resp = ts.do(t, http.MethodGet, "/api/summaries?limit=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = ts.do(t, http.MethodGet, "/api/summaries/"+single.Summary.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.Status)

	resp = ts.do(t, http.MethodDelete, "/api/summaries/"+single.Summary.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.Status)

	resp = ts.do(t, http.MethodGet, "/api/summaries/"+single.Summary.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	resp = ts.do(t, http.MethodGet, "/api/summaries/status", token, nil)
	require.Equal(t, http.StatusOK, resp.Status)

	var status summaries.Status
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.True(t, status.Configured)
	assert.True(t, status.Connection.Success)
}

func TestSummaryUpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		invoker    summarizer.Invoker
		wantStatus int
		wantCode   string
	}{
		{
			name:       "not configured",
			invoker:    nil,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "MODEL_UNAVAILABLE",
		},
		{
			name:       "upstream failure",
			invoker:    &stubInvoker{err: errors.Join(summarizer.ErrUpstreamError, errors.New("boom"))},
			wantStatus: http.StatusBadGateway,
			wantCode:   "MODEL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.invoker)
			token := ts.register(t, "ada@example.com")
			id := ts.completedDocument(t, token, "a.pdf", "Some text.")

			resp := ts.do(t, http.MethodPost, "/api/summaries/single", token, map[string]any{"documentId": id})
			assert.Equal(t, tt.wantStatus, resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)

			resp = ts.do(t, http.MethodGet, "/api/summaries", token, nil)
			require.Equal(t, http.StatusOK, resp.Status)
			assert.JSONEq(t, "[]", string(resp.Data))
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, &stubInvoker{})

	resp := ts.do(t, http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Success)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	resp = ts.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.False(t, resp.Success)
}
