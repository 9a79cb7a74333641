package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/persistence"
)

// ContactRepository handles contact database operations.
type ContactRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewContactRepository creates a new contact repository.
func NewContactRepository(db *sql.DB, logger *slog.Logger) *ContactRepository {
	return &ContactRepository{db: db, logger: logger}
}

// GetByID retrieves a contact by its ID.
func (cr *ContactRepository) GetByID(ctx context.Context, id string) (*models.Contact, error) {
	row := cr.db.QueryRowContext(ctx, `
		SELECT id, project_id, email, first_name, last_name, data, created_at, updated_at
		FROM contacts
		WHERE id = $1
	`, id)

	var (
		contact  models.Contact
		dataJSON []byte
	)

	err := row.Scan(
		&contact.ID,
		&contact.ProjectID,
		&contact.Email,
		&contact.FirstName,
		&contact.LastName,
		&dataJSON,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrContactNotFound
		}

		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	contact.Data = make(map[string]any)

	if dataJSON != nil {
		err = json.Unmarshal(dataJSON, &contact.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal contact data: %w", err)
		}
	}

	return &contact, nil
}

// Save upserts a contact.
func (cr *ContactRepository) Save(ctx context.Context, contact *models.Contact) error {
	dataJSON, err := json.Marshal(contact.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal contact data: %w", err)
	}

	query := `
		INSERT INTO contacts (id, project_id, email, first_name, last_name, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`

	_, err = cr.db.ExecContext(ctx, query,
		contact.ID,
		contact.ProjectID,
		contact.Email,
		contact.FirstName,
		contact.LastName,
		dataJSON,
		contact.CreatedAt,
		contact.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}

	return nil
}

// MergeData merges fields into the contact's custom data as a JSONB
// concatenation, leaving keys the merge does not name untouched. Concurrent
// writers on other keys do not lose their updates.
func (cr *ContactRepository) MergeData(ctx context.Context, contactID string, fields map[string]any) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal merge fields: %w", err)
	}

	result, err := cr.db.ExecContext(ctx, `
		UPDATE contacts
		SET data = COALESCE(data, '{}'::jsonb) || $1::jsonb, updated_at = $2
		WHERE id = $3
	`, fieldsJSON, time.Now().UTC(), contactID)
	if err != nil {
		return fmt.Errorf("failed to merge contact data: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.ErrContactNotFound
	}

	return nil
}
