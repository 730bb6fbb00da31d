package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"docsummary/internal/domain"
	"docsummary/internal/store"
)

type scanner interface {
	Scan(dest ...any) error
}

func (d *Database) CreateUser(ctx context.Context, user *domain.User) error {
	query := `insert into users (id, email, name, password_hash, created_at, updated_at)
	values (?, ?, ?, ?, ?, ?)`

	_, err := d.db.ExecContext(ctx, query,
		user.ID,
		strings.TrimSpace(user.Email),
		user.Name,
		user.PasswordHash,
		toUnix(user.CreatedAt),
		toUnix(user.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create user %q: %w", user.Email, mapError(err))
	}

	return nil
}

func (d *Database) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `select id, email, name, password_hash, created_at, updated_at
	from users
	where id = ?`

	user, err := scanUser(d.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}

	return user, nil
}

func (d *Database) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `select id, email, name, password_hash, created_at, updated_at
	from users
	where email = ?`

	user, err := scanUser(d.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", email, err)
	}

	return user, nil
}

func (d *Database) UpdateUser(ctx context.Context, user *domain.User) error {
	query := `update users
	set email = ?, name = ?, password_hash = ?, updated_at = ?
	where id = ?`

	res, err := d.db.ExecContext(ctx, query,
		strings.TrimSpace(user.Email),
		user.Name,
		user.PasswordHash,
		toUnix(user.UpdatedAt),
		user.ID)
	if err != nil {
		return fmt.Errorf("update user %s: %w", user.ID, mapError(err))
	}

	return expectAffected(res, "update user", user.ID)
}

func (d *Database) CreateDocument(ctx context.Context, doc *domain.Document) error {
	metadata, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	query := `insert into documents (
		id, user_id, original_name, stored_path, size, status,
		text, page_count, metadata, error, created_at, updated_at
	) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = d.db.ExecContext(ctx, query,
		doc.ID,
		doc.UserID,
		doc.OriginalName,
		doc.StoredPath,
		doc.Size,
		string(doc.Status),
		doc.Text,
		doc.PageCount,
		metadata,
		doc.Error,
		toUnix(doc.CreatedAt),
		toUnix(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create document %s: %w", doc.ID, mapError(err))
	}

	return nil
}

const documentColumns = `id, user_id, original_name, stored_path, size, status,
	text, page_count, metadata, error, created_at, updated_at`

func (d *Database) FindDocumentByID(ctx context.Context, id string) (*domain.Document, error) {
	query := `select ` + documentColumns + `
	from documents
	where id = ?`

	doc, err := scanDocument(d.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("find document %s: %w", id, err)
	}

	return doc, nil
}

func (d *Database) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	metadata, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	query := `update documents
	set original_name = ?, stored_path = ?, size = ?, status = ?, text = ?,
		page_count = ?, metadata = ?, error = ?, updated_at = ?
	where id = ?`

	res, err := d.db.ExecContext(ctx, query,
		doc.OriginalName,
		doc.StoredPath,
		doc.Size,
		string(doc.Status),
		doc.Text,
		doc.PageCount,
		metadata,
		doc.Error,
		toUnix(doc.UpdatedAt),
		doc.ID)
	if err != nil {
		return fmt.Errorf("update document %s: %w", doc.ID, err)
	}

	return expectAffected(res, "update document", doc.ID)
}

func (d *Database) DeleteDocument(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, "delete from documents where id = ?", id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}

	return expectAffected(res, "delete document", id)
}

func (d *Database) FindDocumentsByUserID(ctx context.Context, userID string) ([]domain.Document, error) {
	query := `select ` + documentColumns + `
	from documents
	where user_id = ?
	order by created_at desc`

	return d.queryDocuments(ctx, "FindDocumentsByUserID", query, userID)
}

func (d *Database) FindDocumentsByStatus(
	ctx context.Context,
	statuses ...domain.DocumentStatus,
) ([]domain.Document, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}

	query := `select ` + documentColumns + `
	from documents
	where status in (?` + strings.Repeat(", ?", len(statuses)-1) + `)
	order by created_at`

	return d.queryDocuments(ctx, "FindDocumentsByStatus", query, args...)
}

func (d *Database) queryDocuments(
	ctx context.Context,
	operation string,
	query string,
	args ...any,
) ([]domain.Document, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"operation", operation)
		}
	}()

	var docs []domain.Document
	for rows.Next() {
		doc, scanErr := scanDocument(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		docs = append(docs, *doc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return docs, nil
}

func (d *Database) CreateSummary(ctx context.Context, summary *domain.Summary) error {
	documentIDs, err := json.Marshal(summary.DocumentIDs)
	if err != nil {
		return fmt.Errorf("encode document IDs: %w", err)
	}

	query := `insert into summaries (
		id, user_id, document_ids, type, content, model, tokens_used,
		processing_time_ms, method, chunk_count, document_count, created_at
	) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = d.db.ExecContext(ctx, query,
		summary.ID,
		summary.UserID,
		string(documentIDs),
		string(summary.Type),
		summary.Content,
		summary.Model,
		summary.TokensUsed,
		summary.ProcessingTimeMs,
		summary.Method,
		nullInt(summary.ChunkCount),
		nullInt(summary.DocumentCount),
		toUnix(summary.CreatedAt))
	if err != nil {
		return fmt.Errorf("create summary %s: %w", summary.ID, mapError(err))
	}

	return nil
}

const summaryColumns = `id, user_id, document_ids, type, content, model, tokens_used,
	processing_time_ms, method, chunk_count, document_count, created_at`

func (d *Database) FindSummaryByID(ctx context.Context, id string) (*domain.Summary, error) {
	query := `select ` + summaryColumns + `
	from summaries
	where id = ?`

	summary, err := scanSummary(d.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("find summary %s: %w", id, err)
	}

	return summary, nil
}

func (d *Database) FindSummariesByUserID(
	ctx context.Context,
	userID string,
	filter domain.SummaryFilter,
) ([]domain.Summary, error) {
	var b strings.Builder
	b.WriteString(`select ` + summaryColumns + `
	from summaries
	where user_id = ?`)

	args := []any{userID}

	if filter.Method != "" {
		b.WriteString(" and method = ?")
		args = append(args, filter.Method)
	}
	if filter.Type != "" {
		b.WriteString(" and type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.DocumentID != "" {
		b.WriteString(" and exists (select 1 from json_each(summaries.document_ids) where json_each.value = ?)")
		args = append(args, filter.DocumentID)
	}

	b.WriteString(" order by created_at desc")

	if filter.Limit > 0 {
		b.WriteString(" limit ?")
		args = append(args, filter.Limit)
	}

	rows, err := d.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"userID", userID,
				"operation", "FindSummariesByUserID")
		}
	}()

	var summaries []domain.Summary
	for rows.Next() {
		summary, scanErr := scanSummary(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		summaries = append(summaries, *summary)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return summaries, nil
}

func (d *Database) DeleteSummary(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, "delete from summaries where id = ?", id)
	if err != nil {
		return fmt.Errorf("delete summary %s: %w", id, err)
	}

	return expectAffected(res, "delete summary", id)
}

func (d *Database) DeleteSummariesByDocumentID(ctx context.Context, documentID string) (int, error) {
	query := `delete from summaries
	where exists (select 1 from json_each(summaries.document_ids) where json_each.value = ?)`

	res, err := d.db.ExecContext(ctx, query, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete summaries of document %s: %w", documentID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get affected rows: %w", err)
	}

	return int(n), nil
}

func scanUser(row scanner) (*domain.User, error) {
	var (
		u                    domain.User
		createdAt, updatedAt int64
	)

	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)

	return &u, nil
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		doc                  domain.Document
		status, metadata     string
		createdAt, updatedAt int64
	)

	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.OriginalName,
		&doc.StoredPath,
		&doc.Size,
		&status,
		&doc.Text,
		&doc.PageCount,
		&metadata,
		&doc.Error,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	doc.CreatedAt = fromUnix(createdAt)
	doc.UpdatedAt = fromUnix(updatedAt)

	if metadata != "" && metadata != "{}" {
		if err = json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of document %s: %w", doc.ID, err)
		}
	}

	return &doc, nil
}

func scanSummary(row scanner) (*domain.Summary, error) {
	var (
		s                         domain.Summary
		documentIDs, summaryType  string
		chunkCount, documentCount sql.NullInt64
		createdAt                 int64
	)

	err := row.Scan(
		&s.ID,
		&s.UserID,
		&documentIDs,
		&summaryType,
		&s.Content,
		&s.Model,
		&s.TokensUsed,
		&s.ProcessingTimeMs,
		&s.Method,
		&chunkCount,
		&documentCount,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	if err = json.Unmarshal([]byte(documentIDs), &s.DocumentIDs); err != nil {
		return nil, fmt.Errorf("decode document IDs of summary %s: %w", s.ID, err)
	}

	s.Type = domain.SummaryType(summaryType)
	s.ChunkCount = intPtr(chunkCount)
	s.DocumentCount = intPtr(documentCount)
	s.CreatedAt = fromUnix(createdAt)

	return &s, nil
}

func expectAffected(res sql.Result, operation string, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%s %s: %w", operation, id, store.ErrNotFound)
	}

	return nil
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	return string(data), nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}

	n := int(v.Int64)

	return &n
}
