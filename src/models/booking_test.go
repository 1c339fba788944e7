package models

import (
	"sps/src/types"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverlaps(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	booking := Booking{StartTime: start, EndTime: end}

	cases := []struct {
		name     string
		start    time.Time
		end      time.Time
		overlaps bool
	}{
		{"identical window", start, end, true},
		{"contained window", start.Add(30 * time.Minute), end.Add(-30 * time.Minute), true},
		{"straddles start", start.Add(-time.Hour), start.Add(time.Hour), true},
		{"straddles end", end.Add(-time.Hour), end.Add(time.Hour), true},
		{"ends at start", start.Add(-2 * time.Hour), start, false},
		{"starts at end", end, end.Add(2 * time.Hour), false},
		{"fully before", start.Add(-4 * time.Hour), start.Add(-2 * time.Hour), false},
		{"fully after", end.Add(2 * time.Hour), end.Add(4 * time.Hour), false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.overlaps, booking.Overlaps(c.start, c.end))
		})
	}
}

func TestEntryScan(t *testing.T) {
	now := time.Now()

	t.Run("pending arrival moves to in_parking", func(t *testing.T) {
		b := Booking{ID: 1, Status: types.BOOKING_PENDING_ARRIVAL}
		err := b.ApplyEntryScan(now)
		assert.Nil(t, err)
		assert.Equal(t, types.BOOKING_IN_PARKING, b.Status)
		assert.True(t, b.EntryScanned)
		assert.Equal(t, now, *b.EntryTime)
	})

	t.Run("active booking can enter", func(t *testing.T) {
		b := Booking{ID: 2, Status: types.BOOKING_ACTIVE}
		assert.Nil(t, b.ApplyEntryScan(now))
	})

	t.Run("second entry scan is rejected", func(t *testing.T) {
		b := Booking{ID: 3, Status: types.BOOKING_PENDING_ARRIVAL}
		assert.Nil(t, b.ApplyEntryScan(now))

		err := b.ApplyEntryScan(now.Add(time.Minute))
		var aerr *types.AlreadyScannedError
		assert.ErrorAs(t, err, &aerr)
		assert.Equal(t, "entry", aerr.Gate)
	})

	t.Run("cancelled booking cannot enter", func(t *testing.T) {
		b := Booking{ID: 4, Status: types.BOOKING_CANCELLED}
		var ierr *types.InvalidStateError
		assert.ErrorAs(t, b.ApplyEntryScan(now), &ierr)
	})

	t.Run("completed booking cannot enter", func(t *testing.T) {
		b := Booking{ID: 5, Status: types.BOOKING_COMPLETED}
		var ierr *types.InvalidStateError
		assert.ErrorAs(t, b.ApplyEntryScan(now), &ierr)
	})
}

func TestExitScan(t *testing.T) {
	now := time.Now()

	t.Run("exit after entry completes the booking", func(t *testing.T) {
		b := Booking{ID: 1, Status: types.BOOKING_PENDING_ARRIVAL}
		assert.Nil(t, b.ApplyEntryScan(now))

		stay, err := b.ApplyExitScan(now.Add(90 * time.Minute))
		assert.Nil(t, err)
		assert.Equal(t, 90*time.Minute, stay)
		assert.Equal(t, types.BOOKING_COMPLETED, b.Status)
		assert.True(t, b.ExitScanned)
	})

	t.Run("exit before entry is rejected", func(t *testing.T) {
		b := Booking{ID: 2, Status: types.BOOKING_PENDING_ARRIVAL}
		_, err := b.ApplyExitScan(now)
		var eerr *types.EntryNotScannedError
		assert.ErrorAs(t, err, &eerr)
	})

	t.Run("second exit scan is rejected", func(t *testing.T) {
		b := Booking{ID: 3, Status: types.BOOKING_PENDING_ARRIVAL}
		assert.Nil(t, b.ApplyEntryScan(now))
		_, err := b.ApplyExitScan(now.Add(time.Hour))
		assert.Nil(t, err)

		_, err = b.ApplyExitScan(now.Add(2 * time.Hour))
		var aerr *types.AlreadyScannedError
		assert.ErrorAs(t, err, &aerr)
		assert.Equal(t, "exit", aerr.Gate)
	})
}

func TestCanCancel(t *testing.T) {
	for _, status := range []types.BookingStatus{
		types.BOOKING_PENDING_ARRIVAL,
		types.BOOKING_ACTIVE,
		types.BOOKING_IN_PARKING,
	} {
		b := Booking{ID: 1, Status: status}
		assert.Nil(t, b.CanCancel(), string(status))
	}

	for _, status := range []types.BookingStatus{
		types.BOOKING_COMPLETED,
		types.BOOKING_CANCELLED,
	} {
		b := Booking{ID: 1, Status: status}
		var ierr *types.InvalidStateError
		assert.ErrorAs(t, b.CanCancel(), &ierr, string(status))
	}
}
