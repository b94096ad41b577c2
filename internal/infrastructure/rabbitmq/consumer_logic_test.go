package rabbitmq

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/societyhub/registration-service/internal/contracts/event"
	"github.com/societyhub/registration-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSnapshotStore struct {
	mock.Mock
}

func (m *mockSnapshotStore) ProcessOnce(ctx context.Context, messageID, handlerName string, fn func(tx pgx.Tx) error) (bool, error) {
	args := m.Called(ctx, messageID, handlerName)
	if args.Bool(0) {
		if err := fn(nil); err != nil {
			return true, err
		}
	}
	return args.Bool(0), args.Error(1)
}

func (m *mockSnapshotStore) UpsertEventSnapshotTx(ctx context.Context, tx pgx.Tx, snap domain.EventSnapshot) error {
	args := m.Called(ctx, tx, snap)
	return args.Error(0)
}

func (m *mockSnapshotStore) CancelEventTx(ctx context.Context, tx pgx.Tx, traceID string, eventID uuid.UUID, reason string) error {
	args := m.Called(ctx, tx, traceID, eventID, reason)
	return args.Error(0)
}

func loggerStub() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestApplySnapshotTxPublished(t *testing.T) {
	repo := new(mockSnapshotStore)
	ctx := context.Background()

	eid := uuid.New()
	capacity := 100
	starts := time.Date(2026, 9, 12, 18, 0, 0, 0, time.UTC)
	payload := event.EventSnapshotPayload{
		EventID:         eid.String(),
		Title:           "Robotics Demo Night",
		Venue:           "Hall B",
		Date:            starts.Format(time.RFC3339),
		Status:          "upcoming",
		MaxParticipants: &capacity,
		EmailDomain:     "@Stu.Example.EDU",
	}
	payloadBytes, _ := json.Marshal(payload)

	repo.On("UpsertEventSnapshotTx", ctx, mock.Anything, mock.MatchedBy(func(snap domain.EventSnapshot) bool {
		return snap.EventID == eid &&
			snap.Title == "Robotics Demo Night" &&
			snap.Capacity != nil && *snap.Capacity == 100 &&
			snap.EmailDomain == "@stu.example.edu" &&
			snap.StartsAt != nil && snap.StartsAt.Equal(starts)
	})).Return(nil).Once()

	applied, err := applySnapshotTx(ctx, repo, nil, "event.published", payloadBytes, "trace-1", loggerStub())
	require.NoError(t, err)
	assert.True(t, applied)
	repo.AssertExpectations(t)
}

func TestApplySnapshotTxCancelled(t *testing.T) {
	repo := new(mockSnapshotStore)
	ctx := context.Background()
	eid := uuid.New()

	payload := event.EventCancelledPayload{EventID: eid.String(), Reason: "venue flooded"}
	payloadBytes, _ := json.Marshal(payload)

	repo.On("CancelEventTx", ctx, mock.Anything, "trace-1", eid, "venue flooded").Return(nil).Once()

	applied, err := applySnapshotTx(ctx, repo, nil, "event.cancelled", payloadBytes, "trace-1", loggerStub())
	require.NoError(t, err)
	assert.True(t, applied)
	repo.AssertExpectations(t)
}

func TestApplySnapshotTxCancelledLegacyID(t *testing.T) {
	repo := new(mockSnapshotStore)
	ctx := context.Background()
	eid := uuid.New()

	// older producer put the id in "id" and omitted the reason
	payloadBytes, _ := json.Marshal(map[string]string{"id": eid.String()})

	repo.On("CancelEventTx", ctx, mock.Anything, "", eid, "event_cancelled").Return(nil).Once()

	applied, err := applySnapshotTx(ctx, repo, nil, "event.cancelled", payloadBytes, "", loggerStub())
	require.NoError(t, err)
	assert.True(t, applied)
	repo.AssertExpectations(t)
}

func TestApplySnapshotTxPoisonPayloadDropped(t *testing.T) {
	repo := new(mockSnapshotStore)
	ctx := context.Background()

	cases := []struct {
		name string
		rk   string
		body []byte
	}{
		{"not json", "event.published", []byte("{nope")},
		{"missing event_id", "event.published", []byte(`{"title":"x"}`)},
		{"bad uuid", "event.updated", []byte(`{"event_id":"not-a-uuid"}`)},
		{"unknown routing key", "event.archived", []byte(`{"event_id":"x"}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			applied, err := applySnapshotTx(ctx, repo, nil, tc.rk, tc.body, "", loggerStub())
			assert.NoError(t, err)
			assert.False(t, applied)
		})
	}
	repo.AssertNotCalled(t, "UpsertEventSnapshotTx", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "CancelEventTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestParseSnapshotNilCapacityPreserved(t *testing.T) {
	eid := uuid.New()
	payloadBytes, _ := json.Marshal(map[string]string{"event_id": eid.String(), "status": "Upcoming"})

	snap, ok := parseSnapshot(payloadBytes, loggerStub())
	require.True(t, ok)
	assert.Nil(t, snap.Capacity)
	assert.Equal(t, domain.StatusUpcoming, snap.Status)
}
