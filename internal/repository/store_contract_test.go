package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/event-registration/internal/domain"
)

// storeFactory returns fresh repositories backed by an empty store
type storeFactory func(t *testing.T) (EventRepository, RegistrationRepository)

func newTestEvent(t *testing.T, name string, date time.Time, capacity int) *domain.Event {
	t.Helper()
	e, err := domain.NewEvent(name, "description of "+name, date, "Bangkok", "Tech", capacity, "organizer")
	require.NoError(t, err)
	return e
}

func newTestRegistration(t *testing.T, userID, eventID string) *domain.Registration {
	t.Helper()
	r, err := domain.NewRegistration(userID, eventID)
	require.NoError(t, err)
	return r
}

func runStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("AdmitUnknownEvent", func(t *testing.T) {
		_, regs := newStore(t)
		err := regs.Admit(ctx, newTestRegistration(t, "u1", uuid.NewString()))
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	})

	t.Run("AdmitUntilFull", func(t *testing.T) {
		events, regs := newStore(t)
		e := newTestEvent(t, "Go Meetup", time.Now().Add(48*time.Hour), 2)
		require.NoError(t, events.Create(ctx, e))

		require.NoError(t, regs.Admit(ctx, newTestRegistration(t, "u1", e.ID)))
		require.NoError(t, regs.Admit(ctx, newTestRegistration(t, "u2", e.ID)))
		err := regs.Admit(ctx, newTestRegistration(t, "u3", e.ID))
		assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

		n, err := regs.CountByEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("ZeroCapacityAdmitsNobody", func(t *testing.T) {
		events, regs := newStore(t)
		e := newTestEvent(t, "Closed", time.Now().Add(time.Hour), 0)
		require.NoError(t, events.Create(ctx, e))

		err := regs.Admit(ctx, newTestRegistration(t, "u1", e.ID))
		assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	})

	t.Run("DuplicateRejected", func(t *testing.T) {
		events, regs := newStore(t)
		e := newTestEvent(t, "Workshop", time.Now().Add(time.Hour), 10)
		require.NoError(t, events.Create(ctx, e))

		require.NoError(t, regs.Admit(ctx, newTestRegistration(t, "u1", e.ID)))
		err := regs.Admit(ctx, newTestRegistration(t, "u1", e.ID))
		assert.ErrorIs(t, err, domain.ErrDuplicateRegistration)

		n, err := regs.CountByEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("CapacityCheckedBeforeDuplicate", func(t *testing.T) {
		events, regs := newStore(t)
		e := newTestEvent(t, "Tiny", time.Now().Add(time.Hour), 1)
		require.NoError(t, events.Create(ctx, e))

		require.NoError(t, regs.Admit(ctx, newTestRegistration(t, "u1", e.ID)))
		err := regs.Admit(ctx, newTestRegistration(t, "u1", e.ID))
		assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	})

	t.Run("RemoveFreesSeatAndAllowsReregister", func(t *testing.T) {
		events, regs := newStore(t)
		e := newTestEvent(t, "Conf", time.Now().Add(time.Hour), 1)
		require.NoError(t, events.Create(ctx, e))

		reg := newTestRegistration(t, "u1", e.ID)
		require.NoError(t, regs.Admit(ctx, reg))

		removed, err := regs.Remove(ctx, "u1", e.ID)
		require.NoError(t, err)
		assert.Equal(t, reg.ID, removed.ID)

		n, err := regs.CountByEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, regs.Admit(ctx, newTestRegistration(t, "u1", e.ID)))
	})

	t.Run("RemoveMissing", func(t *testing.T) {
		events, regs := newStore(t)
		e := newTestEvent(t, "Conf", time.Now().Add(time.Hour), 1)
		require.NoError(t, events.Create(ctx, e))

		_, err := regs.Remove(ctx, "u1", e.ID)
		assert.ErrorIs(t, err, domain.ErrRegistrationNotFound)
		_, err = regs.Remove(ctx, "u1", uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrRegistrationNotFound)
	})

	t.Run("ListByUserNewestFirst", func(t *testing.T) {
		events, regs := newStore(t)
		base := time.Now().UTC().Truncate(time.Millisecond)
		var ids []string
		for i := 0; i < 3; i++ {
			e := newTestEvent(t, fmt.Sprintf("Event %d", i), base.Add(time.Duration(i+1)*time.Hour), 5)
			require.NoError(t, events.Create(ctx, e))
			reg := newTestRegistration(t, "u1", e.ID)
			reg.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, regs.Admit(ctx, reg))
			ids = append(ids, reg.ID)
		}
		other := newTestEvent(t, "Other", base.Add(time.Hour), 5)
		require.NoError(t, events.Create(ctx, other))
		require.NoError(t, regs.Admit(ctx, newTestRegistration(t, "u2", other.ID)))

		got, err := regs.ListByUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{got[0].ID, got[1].ID, got[2].ID})

		none, err := regs.ListByUser(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ListEventsFiltered", func(t *testing.T) {
		events, _ := newStore(t)
		base := time.Now().UTC().Truncate(time.Millisecond)

		late := newTestEvent(t, "Golang Summit", base.Add(72*time.Hour), 100)
		early := newTestEvent(t, "Go Night", base.Add(24*time.Hour), 10)
		past := newTestEvent(t, "Old Go Meetup", base.Add(-24*time.Hour), 10)
		music := newTestEvent(t, "Jazz Evening", base.Add(48*time.Hour), 10)
		music.Category = "Music"
		music.Location = "Chiang Mai"
		for _, e := range []*domain.Event{late, early, past, music} {
			require.NoError(t, events.Create(ctx, e))
		}

		all, err := events.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, past.ID, all[0].ID)
		assert.Equal(t, late.ID, all[3].ID)

		got, err := events.List(ctx, &EventFilter{Search: "GO"})
		require.NoError(t, err)
		assert.Len(t, got, 3)

		from := base
		got, err = events.List(ctx, &EventFilter{Search: "go", From: &from})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, early.ID, got[0].ID)

		got, err = events.List(ctx, &EventFilter{Category: "mus", Location: "chiang"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, music.ID, got[0].ID)

		got, err = events.List(ctx, &EventFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, early.ID, got[0].ID)
	})

	t.Run("DeleteAllRemovesRegistrations", func(t *testing.T) {
		events, regs := newStore(t)
		e := newTestEvent(t, "Gone", time.Now().Add(time.Hour), 3)
		require.NoError(t, events.Create(ctx, e))
		require.NoError(t, regs.Admit(ctx, newTestRegistration(t, "u1", e.ID)))

		n, err := events.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = events.GetByID(ctx, e.ID)
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
		got, err := regs.ListByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ConcurrentBurstNeverOvershoots", func(t *testing.T) {
		events, regs := newStore(t)
		const capacity, attempts = 5, 50
		e := newTestEvent(t, "Hot Ticket", time.Now().Add(time.Hour), capacity)
		require.NoError(t, events.Create(ctx, e))

		var admitted, full atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := regs.Admit(ctx, newTestRegistration(t, fmt.Sprintf("user-%d", i), e.ID))
				switch {
				case err == nil:
					admitted.Add(1)
				case errors.Is(err, domain.ErrCapacityExceeded):
					full.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(capacity), admitted.Load())
		assert.Equal(t, int32(attempts-capacity), full.Load())
		n, err := regs.CountByEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, capacity, n)
	})

	t.Run("ConcurrentSameUserAdmittedOnce", func(t *testing.T) {
		events, regs := newStore(t)
		e := newTestEvent(t, "Popular", time.Now().Add(time.Hour), 100)
		require.NoError(t, events.Create(ctx, e))

		var admitted atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := regs.Admit(ctx, newTestRegistration(t, "same-user", e.ID))
				if err == nil {
					admitted.Add(1)
				} else if !errors.Is(err, domain.ErrDuplicateRegistration) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), admitted.Load())
	})
}
