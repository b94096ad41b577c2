package service

import (
	"context"
	"testing"
	"time"

	"github.com/societyhub/registration-service/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct{ mock.Mock }

func (m *mockRepo) FetchEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).(domain.Event), args.Error(1)
}

func (m *mockRepo) RegisterParticipant(ctx context.Context, traceID string, eventID uuid.UUID, req domain.RegistrationRequest) (domain.Participant, domain.Availability, error) {
	args := m.Called(ctx, traceID, eventID, req)
	return args.Get(0).(domain.Participant), args.Get(1).(domain.Availability), args.Error(2)
}

func (m *mockRepo) ListParticipants(ctx context.Context, eventID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	args := m.Called(ctx, eventID, limit, cursor)
	var next *domain.KeysetCursor
	if v := args.Get(1); v != nil {
		next = v.(*domain.KeysetCursor)
	}
	return args.Get(0).([]domain.Participant), next, args.Error(2)
}

func (m *mockRepo) GetEventOrganizerID(ctx context.Context, eventID uuid.UUID) (uuid.UUID, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockRepo) UpsertEventSnapshot(ctx context.Context, snap domain.EventSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *mockRepo) CancelEvent(ctx context.Context, traceID string, eventID uuid.UUID, reason string) error {
	args := m.Called(ctx, traceID, eventID, reason)
	return args.Error(0)
}

type mockCache struct{ mock.Mock }

func (m *mockCache) GetAvailability(ctx context.Context, eventID uuid.UUID) (domain.Availability, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).(domain.Availability), args.Error(1)
}

func (m *mockCache) SetAvailability(ctx context.Context, eventID uuid.UUID, avail domain.Availability) error {
	args := m.Called(ctx, eventID, avail)
	return args.Error(0)
}

func (m *mockCache) DropAvailability(ctx context.Context, eventID uuid.UUID) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *mockCache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, ip, limit, window)
	return args.Bool(0), args.Error(1)
}

func openEvent(max int) domain.Event {
	return domain.Event{
		ID:              uuid.New(),
		Title:           "Tech Talk",
		Status:          domain.StatusUpcoming,
		MaxParticipants: max,
		RegisteredCount: 0,
	}
}

func newService(repo *mockRepo, cache *mockCache) *RegistrationService {
	return NewRegistrationService(repo, cache, nil, "http://localhost:3000/")
}

func TestRegisterSuccess(t *testing.T) {
	repo := new(mockRepo)
	cache := new(mockCache)
	svc := newService(repo, cache)

	ev := openEvent(50)
	want := domain.Participant{ID: uuid.New(), EventID: ev.ID, Email: "alice@example.com"}
	avail := domain.ComputeAvailability(1, 50)

	cache.On("GetAvailability", mock.Anything, ev.ID).Return(domain.Availability{}, domain.ErrCacheMiss)
	cache.On("SetAvailability", mock.Anything, ev.ID, avail).Return(nil)
	repo.On("FetchEvent", mock.Anything, ev.ID).Return(ev, nil)
	repo.On("RegisterParticipant", mock.Anything, "t-1", ev.ID, mock.MatchedBy(func(req domain.RegistrationRequest) bool {
		// input is normalized before it reaches the store
		return req.Email == "alice@example.com" && req.Name == "Alice"
	})).Return(want, avail, nil)

	got, gotAvail, err := svc.Register(context.Background(), "t-1", ev.ID, domain.RegistrationRequest{
		Name:  "  Alice  ",
		Email: " ALICE@Example.COM ",
	})

	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, 49, gotAvail.AvailableSlots)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestRegisterValidationNeverHitsStore(t *testing.T) {
	cases := []struct {
		name string
		req  domain.RegistrationRequest
		want error
	}{
		{"empty name", domain.RegistrationRequest{Name: "   ", Email: "a@b.com"}, domain.ErrInvalidName},
		{"malformed email", domain.RegistrationRequest{Name: "Bob", Email: "not-an-email"}, domain.ErrInvalidEmail},
		{"short phone", domain.RegistrationRequest{Name: "Bob", Email: "b@c.com", Phone: "12345"}, domain.ErrInvalidPhone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(mockRepo)
			cache := new(mockCache)
			svc := newService(repo, cache)
			ev := openEvent(10)

			cache.On("GetAvailability", mock.Anything, ev.ID).Return(domain.Availability{}, domain.ErrCacheMiss)
			repo.On("FetchEvent", mock.Anything, ev.ID).Return(ev, nil)

			_, _, err := svc.Register(context.Background(), "t-1", ev.ID, tc.req)

			assert.ErrorIs(t, err, tc.want)
			repo.AssertNotCalled(t, "RegisterParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRegisterEventFull(t *testing.T) {
	repo := new(mockRepo)
	cache := new(mockCache)
	svc := newService(repo, cache)
	ev := openEvent(2)

	cache.On("GetAvailability", mock.Anything, ev.ID).Return(domain.Availability{}, domain.ErrCacheMiss)
	repo.On("FetchEvent", mock.Anything, ev.ID).Return(ev, nil)
	repo.On("RegisterParticipant", mock.Anything, "t-1", ev.ID, mock.Anything).
		Return(domain.Participant{}, domain.Availability{}, domain.ErrEventFull)

	_, _, err := svc.Register(context.Background(), "t-1", ev.ID, domain.RegistrationRequest{Name: "Carol", Email: "c@d.com"})
	assert.ErrorIs(t, err, domain.ErrEventFull)
	cache.AssertNotCalled(t, "SetAvailability", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := new(mockRepo)
	cache := new(mockCache)
	svc := newService(repo, cache)
	ev := openEvent(10)

	cache.On("GetAvailability", mock.Anything, ev.ID).Return(domain.Availability{}, domain.ErrCacheMiss)
	repo.On("FetchEvent", mock.Anything, ev.ID).Return(ev, nil)
	repo.On("RegisterParticipant", mock.Anything, "t-1", ev.ID, mock.Anything).
		Return(domain.Participant{}, domain.Availability{}, domain.ErrAlreadyRegistered)

	_, _, err := svc.Register(context.Background(), "t-1", ev.ID, domain.RegistrationRequest{Name: "Dave", Email: "d@e.com"})
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)
}

func TestRegisterClosedEvent(t *testing.T) {
	repo := new(mockRepo)
	cache := new(mockCache)
	svc := newService(repo, cache)

	ev := openEvent(10)
	ev.Status = domain.StatusCompleted

	cache.On("GetAvailability", mock.Anything, ev.ID).Return(domain.Availability{}, domain.ErrCacheMiss)
	repo.On("FetchEvent", mock.Anything, ev.ID).Return(ev, nil)

	_, _, err := svc.Register(context.Background(), "t-1", ev.ID, domain.RegistrationRequest{Name: "Eve", Email: "e@f.com"})
	assert.ErrorIs(t, err, domain.ErrRegistrationClosed)
	repo.AssertNotCalled(t, "RegisterParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterCacheFastFail(t *testing.T) {
	repo := new(mockRepo)
	cache := new(mockCache)
	svc := newService(repo, cache)
	eventID := uuid.New()

	cache.On("GetAvailability", mock.Anything, eventID).Return(domain.Availability{Closed: true}, nil)

	_, _, err := svc.Register(context.Background(), "t-1", eventID, domain.RegistrationRequest{Name: "Frank", Email: "f@g.com"})
	assert.ErrorIs(t, err, domain.ErrRegistrationClosed)
	repo.AssertNotCalled(t, "FetchEvent", mock.Anything, mock.Anything)
}

func TestRegisterEventNotFound(t *testing.T) {
	repo := new(mockRepo)
	cache := new(mockCache)
	svc := newService(repo, cache)
	eventID := uuid.New()

	cache.On("GetAvailability", mock.Anything, eventID).Return(domain.Availability{}, domain.ErrCacheMiss)
	repo.On("FetchEvent", mock.Anything, eventID).Return(domain.Event{}, domain.ErrEventNotFound)

	_, _, err := svc.Register(context.Background(), "t-1", eventID, domain.RegistrationRequest{Name: "Gina", Email: "g@h.com"})
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestAvailabilityCacheHit(t *testing.T) {
	repo := new(mockRepo)
	cache := new(mockCache)
	svc := newService(repo, cache)
	eventID := uuid.New()

	cached := domain.ComputeAvailability(30, 50)
	cache.On("GetAvailability", mock.Anything, eventID).Return(cached, nil)

	got, err := svc.Availability(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	repo.AssertNotCalled(t, "FetchEvent", mock.Anything, mock.Anything)
}

func TestAvailabilityCacheMissFallsThrough(t *testing.T) {
	repo := new(mockRepo)
	cache := new(mockCache)
	svc := newService(repo, cache)

	ev := openEvent(40)
	ev.RegisteredCount = 10

	cache.On("GetAvailability", mock.Anything, ev.ID).Return(domain.Availability{}, domain.ErrCacheMiss)
	cache.On("SetAvailability", mock.Anything, ev.ID, ev.Availability()).Return(nil)
	repo.On("FetchEvent", mock.Anything, ev.ID).Return(ev, nil)

	got, err := svc.Availability(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, got.AvailableSlots)
	assert.InDelta(t, 25.0, got.CapacityPercentage, 0.01)
	cache.AssertExpectations(t)
}

func TestRegistrationLink(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo, nil)
	ev := openEvent(10)

	repo.On("FetchEvent", mock.Anything, ev.ID).Return(ev, nil)

	link, err := svc.RegistrationLink(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/events/"+ev.ID.String()+"/register", link)
}

func TestListParticipantsOrganizerOnly(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo, nil)
	eventID := uuid.New()
	organizer := uuid.New()
	stranger := uuid.New()

	repo.On("GetEventOrganizerID", mock.Anything, eventID).Return(organizer, nil)

	_, _, err := svc.ListParticipants(context.Background(), eventID, stranger, "society_head", 20, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	repo.AssertNotCalled(t, "ListParticipants", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListParticipantsAdminBypassesOwnership(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo, nil)
	eventID := uuid.New()

	want := []domain.Participant{{ID: uuid.New(), EventID: eventID, Email: "x@y.com"}}
	repo.On("ListParticipants", mock.Anything, eventID, 20, (*domain.KeysetCursor)(nil)).Return(want, nil, nil)

	got, next, err := svc.ListParticipants(context.Background(), eventID, uuid.New(), "admin", 20, nil)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Equal(t, want, got)
	repo.AssertNotCalled(t, "GetEventOrganizerID", mock.Anything, mock.Anything)
}
