package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentpilot-ai/contentpilot/internal/dispatch"
	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
)

type mockSubscriptions struct {
	balance    int
	consumeOK  bool
	granted    int
	sub        *models.Subscription
	subErr     error
	consumeErr error
}

func (m *mockSubscriptions) FindByOwnerID(_ context.Context, _ uuid.UUID) (*models.Subscription, error) {
	if m.subErr != nil {
		return nil, m.subErr
	}
	return m.sub, nil
}

func (m *mockSubscriptions) CreditsAvailable(_ context.Context, _ uuid.UUID) (int, error) {
	return m.balance, nil
}

func (m *mockSubscriptions) ConsumeCredit(_ context.Context, _ uuid.UUID) (bool, error) {
	if m.consumeErr != nil {
		return false, m.consumeErr
	}
	if m.consumeOK {
		m.balance--
	}
	return m.consumeOK, nil
}

func (m *mockSubscriptions) GrantCredits(_ context.Context, _ uuid.UUID, amount int) error {
	m.granted += amount
	m.balance += amount
	return nil
}

type mockPauser struct {
	paused map[uuid.UUID]string
}

func newMockPauser() *mockPauser {
	return &mockPauser{paused: make(map[uuid.UUID]string)}
}

func (m *mockPauser) Deactivate(_ context.Context, id uuid.UUID, reason string) error {
	m.paused[id] = reason
	return nil
}

func testSchedule() *models.Schedule {
	return &models.Schedule{ID: uuid.New(), OwnerID: uuid.New()}
}

func TestCreditService_Reserve_Allows(t *testing.T) {
	pauser := newMockPauser()
	svc := NewCreditService(&mockSubscriptions{balance: 3}, pauser)

	err := svc.Reserve(context.Background(), testSchedule())

	require.NoError(t, err)
	assert.Empty(t, pauser.paused)
}

func TestCreditService_Reserve_DeniesAndPauses(t *testing.T) {
	pauser := newMockPauser()
	svc := NewCreditService(&mockSubscriptions{balance: 0}, pauser)
	schedule := testSchedule()

	err := svc.Reserve(context.Background(), schedule)

	require.ErrorIs(t, err, dispatch.ErrCreditsExhausted)
	assert.Equal(t, "credits exhausted", pauser.paused[schedule.ID])
}

func TestCreditService_Commit_Decrements(t *testing.T) {
	pauser := newMockPauser()
	svc := NewCreditService(&mockSubscriptions{balance: 3, consumeOK: true}, pauser)

	remaining, err := svc.Commit(context.Background(), testSchedule())

	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
	assert.Empty(t, pauser.paused)
}

func TestCreditService_Commit_LastCreditPauses(t *testing.T) {
	pauser := newMockPauser()
	svc := NewCreditService(&mockSubscriptions{balance: 1, consumeOK: true}, pauser)
	schedule := testSchedule()

	remaining, err := svc.Commit(context.Background(), schedule)

	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.Equal(t, "credits exhausted", pauser.paused[schedule.ID])
}

func TestCreditService_Commit_RaceLostIsNotAnError(t *testing.T) {
	svc := NewCreditService(&mockSubscriptions{balance: 0, consumeOK: false}, newMockPauser())

	remaining, err := svc.Commit(context.Background(), testSchedule())

	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestCreditService_RolloverPeriod(t *testing.T) {
	subs := &mockSubscriptions{
		balance: 0,
		sub: &models.Subscription{
			OwnerID:          uuid.New(),
			CreditsAvailable: 5,
			CurrentPeriodEnd: time.Now(),
		},
	}
	svc := NewCreditService(subs, newMockPauser())

	require.NoError(t, svc.RolloverPeriod(context.Background(), subs.sub.OwnerID, 30))
	assert.Equal(t, 25, subs.granted)
}

func TestCreditService_RolloverPeriod_NoClawback(t *testing.T) {
	subs := &mockSubscriptions{
		sub: &models.Subscription{OwnerID: uuid.New(), CreditsAvailable: 50},
	}
	svc := NewCreditService(subs, newMockPauser())

	require.NoError(t, svc.RolloverPeriod(context.Background(), subs.sub.OwnerID, 30))
	assert.Zero(t, subs.granted)
}
