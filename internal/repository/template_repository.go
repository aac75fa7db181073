package repository

import (
	"context"
	"database/sql"
	"strings"

	appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
	"github.com/unclebandit/mailqueue-backend/internal/model"
)

// TemplateRepository stores email templates and renders them for the dispatcher.
type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) Create(ctx context.Context, t *model.EmailTemplate) error {
	query := `
		INSERT INTO templates (id, subject, html, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET subject=EXCLUDED.subject, html=EXCLUDED.html
		RETURNING created_at
	`
	return r.DB.QueryRowContext(ctx, query, t.ID, t.Subject, t.HTML).Scan(&t.CreatedAt)
}

// Render returns the subject and html body of a template.
func (r *TemplateRepository) Render(ctx context.Context, ref string) (string, string, error) {
	var subject, html string
	err := r.DB.QueryRowContext(ctx, `SELECT subject, html FROM templates WHERE id=$1`, ref).Scan(&subject, &html)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", "", appErrors.NewTemplateNotFound(ref)
		}
		return "", "", err
	}
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(html) == "" {
		return "", "", appErrors.ErrTemplateEmpty
	}
	return subject, html, nil
}

func (r *TemplateRepository) Exists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM templates WHERE id=$1)`, ref).Scan(&exists)
	return exists, err
}
