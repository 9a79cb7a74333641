package memory

import (
	"context"
	"time"

	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/persistence"
)

type contactRecord struct {
	contact *models.Contact
}

// ContactRepository stores contacts in memory.
type ContactRepository struct {
	persistence *Persistence
	contacts    map[string]*contactRecord
}

// GetByID returns a contact by ID.
func (cr *ContactRepository) GetByID(_ context.Context, id string) (*models.Contact, error) {
	cr.persistence.mu.RLock()
	defer cr.persistence.mu.RUnlock()

	record, ok := cr.contacts[id]
	if !ok {
		return nil, persistence.ErrContactNotFound
	}

	return copyContact(record.contact), nil
}

// Save upserts a contact.
func (cr *ContactRepository) Save(_ context.Context, contact *models.Contact) error {
	cr.persistence.mu.Lock()
	defer cr.persistence.mu.Unlock()

	cr.contacts[contact.ID] = &contactRecord{contact: copyContact(contact)}

	return nil
}

// MergeData merges fields into the contact's custom data without touching
// other keys.
func (cr *ContactRepository) MergeData(_ context.Context, contactID string, fields map[string]any) error {
	cr.persistence.mu.Lock()
	defer cr.persistence.mu.Unlock()

	record, ok := cr.contacts[contactID]
	if !ok {
		return persistence.ErrContactNotFound
	}

	contact := record.contact
	if contact.Data == nil {
		contact.Data = make(map[string]any, len(fields))
	}

	for key, value := range fields {
		contact.Data[key] = value
	}

	contact.UpdatedAt = time.Now().UTC()

	return nil
}

func copyContact(contact *models.Contact) *models.Contact {
	copied := *contact
	copied.Data = copyMap(contact.Data)

	return &copied
}
