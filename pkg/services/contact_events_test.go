package services

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/flowmail/journey/pkg/eventbus"
	"github.com/flowmail/journey/pkg/events"
	"github.com/flowmail/journey/pkg/mocks"
	"github.com/flowmail/journey/pkg/models"
	"github.com/flowmail/journey/pkg/persistence"
	"github.com/flowmail/journey/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newContactEventFixture(t *testing.T) (*ContactEventService, *memory.Persistence, *mocks.MockEventBus) {
	t.Helper()

	store := memory.NewPersistence()
	publisher := &mocks.MockEventBus{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	err := store.ContactRepository().Save(t.Context(), &models.Contact{
		ID:        "contact-1",
		ProjectID: "project-1",
		Email:     "ada@example.com",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	return NewContactEventService(store, publisher, logger), store, publisher
}

func TestContactEventService_RecordEvent(t *testing.T) {
	service, _, publisher := newContactEventFixture(t)

	publisher.On("Publish", mock.Anything, "contact-1", mock.MatchedBy(func(event eventbus.Event) bool {
		recorded, ok := event.(events.ContactEventRecorded)

		return ok &&
			recorded.ContactID == "contact-1" &&
			recorded.Name == "order.placed" &&
			recorded.Payload["order_id"] == "order-42"
	})).Return(nil)

	err := service.RecordEvent(t.Context(), "contact-1", "order.placed", map[string]any{
		"order_id": "order-42",
	})

	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestContactEventService_RecordEvent_RequiresName(t *testing.T) {
	service, _, _ := newContactEventFixture(t)

	err := service.RecordEvent(t.Context(), "contact-1", "", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestContactEventService_RecordEvent_UnknownContact(t *testing.T) {
	service, _, _ := newContactEventFixture(t)

	err := service.RecordEvent(t.Context(), "no-such-contact", "order.placed", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrContactNotFound)
}
