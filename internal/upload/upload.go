package upload

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"docsummary/internal/domain"
)

const (
	pdfExtension = ".pdf"
	dirPerm      = 0o750
	filePerm     = 0o600
)

var (
	pdfMagic = []byte("%PDF-")

	ErrTooLarge = errors.New("file is too large")
)

// Storage keeps uploaded PDFs under root/<userID>/<uuid>.pdf.
type Storage struct {
	root     string
	maxBytes int64
}

func New(root string, maxBytes int64) (*Storage, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	return &Storage{root: root, maxBytes: maxBytes}, nil
}

func (s *Storage) MaxBytes() int64 {
	return s.maxBytes
}

// Save validates and writes one upload. It returns the stored path and the
// number of bytes written.
func (s *Storage) Save(userID string, originalName string, r io.Reader) (string, int64, error) {
	if !strings.EqualFold(filepath.Ext(originalName), pdfExtension) {
		return "", 0, fmt.Errorf("%w: only PDF files are accepted, got %q", domain.ErrInvalidInput, originalName)
	}

	if userID == "" || strings.ContainsAny(userID, `/\.`) {
		return "", 0, fmt.Errorf("%w: user id %q is not a valid directory name", domain.ErrInvalidInput, userID)
	}

	br := bufio.NewReader(r)

	head, err := br.Peek(len(pdfMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return "", 0, fmt.Errorf("read upload: %w", err)
	}
	if !bytes.Equal(head, pdfMagic) {
		return "", 0, fmt.Errorf("%w: %q is not a PDF file", domain.ErrInvalidInput, originalName)
	}

	dir := filepath.Join(s.root, userID)
	if err = os.MkdirAll(dir, dirPerm); err != nil {
		return "", 0, fmt.Errorf("create user upload dir: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString()+pdfExtension)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}

	size, err := io.Copy(f, io.LimitReader(br, s.maxBytes+1))
	closeErr := f.Close()

	switch {
	case err != nil:
		err = fmt.Errorf("write upload file: %w", err)
	case closeErr != nil:
		err = fmt.Errorf("close upload file: %w", closeErr)
	case size > s.maxBytes:
		err = fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}

	if err != nil {
		_ = os.Remove(path)

		return "", 0, err
	}

	return path, size, nil
}

// Remove deletes a stored file; a missing file is not an error.
func (s *Storage) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload file: %w", err)
	}

	return nil
}
