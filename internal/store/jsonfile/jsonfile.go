// Package jsonfile keeps every collection as a JSON array file on disk. Each
// mutation rewrites the whole collection file.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"docsummary/internal/domain"
	"docsummary/internal/store"
)

const (
	usersFile     = "users.json"
	documentsFile = "documents.json"
	summariesFile = "summaries.json"
)

type Store struct {
	mu        sync.Mutex
	dir       string
	users     []domain.User
	documents []domain.Document
	summaries []domain.Summary
	log       *slog.Logger
}

var _ store.Store = (*Store)(nil)

func Open(ctx context.Context, dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{dir: dir, log: log}

	if err := readFile(filepath.Join(dir, usersFile), &s.users); err != nil {
		return nil, err
	}
	if err := readFile(filepath.Join(dir, documentsFile), &s.documents); err != nil {
		return nil, err
	}
	if err := readFile(filepath.Join(dir, summariesFile), &s.summaries); err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "JSON store is opened",
		"dataDir", dir,
		"users", len(s.users),
		"documents", len(s.documents),
		"summaries", len(s.summaries))

	return s, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ID == user.ID || strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("create user %q: %w", user.Email, store.ErrConflict)
		}
	}

	users := append(slices.Clip(s.users), *user)
	if err := s.write(usersFile, users); err != nil {
		return err
	}
	s.users = users

	return nil
}

func (s *Store) FindUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ID == id {
			return &u, nil
		}
	}

	return nil, fmt.Errorf("find user %s: %w", id, store.ErrNotFound)
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}

	return nil, fmt.Errorf("find user %q: %w", email, store.ErrNotFound)
}

func (s *Store) UpdateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.users, func(u domain.User) bool { return u.ID == user.ID })
	if i < 0 {
		return fmt.Errorf("update user %s: %w", user.ID, store.ErrNotFound)
	}

	users := slices.Clone(s.users)
	users[i] = *user
	if err := s.write(usersFile, users); err != nil {
		return err
	}
	s.users = users

	return nil
}

func (s *Store) CreateDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.documents, func(d domain.Document) bool { return d.ID == doc.ID }) {
		return fmt.Errorf("create document %s: %w", doc.ID, store.ErrConflict)
	}

	documents := append(slices.Clip(s.documents), store.CloneDocument(*doc))
	if err := s.write(documentsFile, documents); err != nil {
		return err
	}
	s.documents = documents

	return nil
}

func (s *Store) FindDocumentByID(_ context.Context, id string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.documents {
		if d.ID == id {
			doc := store.CloneDocument(d)
			return &doc, nil
		}
	}

	return nil, fmt.Errorf("find document %s: %w", id, store.ErrNotFound)
}

func (s *Store) UpdateDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.documents, func(d domain.Document) bool { return d.ID == doc.ID })
	if i < 0 {
		return fmt.Errorf("update document %s: %w", doc.ID, store.ErrNotFound)
	}

	documents := slices.Clone(s.documents)
	documents[i] = store.CloneDocument(*doc)
	if err := s.write(documentsFile, documents); err != nil {
		return err
	}
	s.documents = documents

	return nil
}

func (s *Store) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.documents, func(d domain.Document) bool { return d.ID == id })
	if i < 0 {
		return fmt.Errorf("delete document %s: %w", id, store.ErrNotFound)
	}

	documents := slices.Delete(slices.Clone(s.documents), i, i+1)
	if err := s.write(documentsFile, documents); err != nil {
		return err
	}
	s.documents = documents

	return nil
}

func (s *Store) FindDocumentsByUserID(_ context.Context, userID string) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []domain.Document
	for _, d := range s.documents {
		if d.UserID == userID {
			docs = append(docs, store.CloneDocument(d))
		}
	}

	store.SortDocumentsNewestFirst(docs)

	return docs, nil
}

func (s *Store) FindDocumentsByStatus(
	_ context.Context,
	statuses ...domain.DocumentStatus,
) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []domain.Document
	for _, d := range s.documents {
		if slices.Contains(statuses, d.Status) {
			docs = append(docs, store.CloneDocument(d))
		}
	}

	return docs, nil
}

func (s *Store) CreateSummary(_ context.Context, summary *domain.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.summaries, func(x domain.Summary) bool { return x.ID == summary.ID }) {
		return fmt.Errorf("create summary %s: %w", summary.ID, store.ErrConflict)
	}

	summaries := append(slices.Clip(s.summaries), store.CloneSummary(*summary))
	if err := s.write(summariesFile, summaries); err != nil {
		return err
	}
	s.summaries = summaries

	return nil
}

func (s *Store) FindSummaryByID(_ context.Context, id string) (*domain.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, x := range s.summaries {
		if x.ID == id {
			summary := store.CloneSummary(x)
			return &summary, nil
		}
	}

	return nil, fmt.Errorf("find summary %s: %w", id, store.ErrNotFound)
}

func (s *Store) FindSummariesByUserID(
	_ context.Context,
	userID string,
	filter domain.SummaryFilter,
) ([]domain.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summaries []domain.Summary
	for _, x := range s.summaries {
		if x.UserID == userID && filter.Match(&x) {
			summaries = append(summaries, store.CloneSummary(x))
		}
	}

	store.SortSummariesNewestFirst(summaries)

	if filter.Limit > 0 && len(summaries) > filter.Limit {
		summaries = summaries[:filter.Limit]
	}

	return summaries, nil
}

func (s *Store) DeleteSummary(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.summaries, func(x domain.Summary) bool { return x.ID == id })
	if i < 0 {
		return fmt.Errorf("delete summary %s: %w", id, store.ErrNotFound)
	}

	summaries := slices.Delete(slices.Clone(s.summaries), i, i+1)
	if err := s.write(summariesFile, summaries); err != nil {
		return err
	}
	s.summaries = summaries

	return nil
}

func (s *Store) DeleteSummariesByDocumentID(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := slices.DeleteFunc(slices.Clone(s.summaries), func(x domain.Summary) bool {
		return slices.Contains(x.DocumentIDs, documentID)
	})

	removed := len(s.summaries) - len(summaries)
	if removed == 0 {
		return 0, nil
	}

	if err := s.write(summariesFile, summaries); err != nil {
		return 0, err
	}
	s.summaries = summaries

	return removed, nil
}

// write replaces the collection file atomically through a temp file in the
// same directory.
func (s *Store) write(name string, records any) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)

		return fmt.Errorf("write %s: %w", name, err)
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("close %s: %w", name, err)
	}

	if err = os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("replace %s: %w", name, err)
	}

	return nil
}

func readFile(path string, records any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	if err = json.Unmarshal(data, records); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	return nil
}
