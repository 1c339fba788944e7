package models

import (
	"sps/src/types"
	"time"
)

type Booking struct {
	ID           uint                `gorm:"primarykey" json:"id"`
	LotID        uint                `json:"lot_id,omitempty"`
	UserID       uint                `json:"user_id,omitempty"`
	StartTime    time.Time           `json:"start_time"`
	EndTime      time.Time           `json:"end_time"`
	Status       types.BookingStatus `json:"status,omitempty"`
	IsAdvance    bool                `json:"is_advance,omitempty"`
	EntryScanned bool                `json:"entry_scanned"`
	ExitScanned  bool                `json:"exit_scanned"`
	EntryTime    *time.Time          `json:"entry_time,omitempty"`
	ExitTime     *time.Time          `json:"exit_time,omitempty"`
	Amount       float32             `json:"amount,omitempty"`
	FinalAmount  *float32            `json:"final_amount,omitempty"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
	Metadata     *types.Metadata     `gorm:"type:jsonb" json:"-"`

	Lot  *Lot  `gorm:"foreignKey:lot_id" json:"lot,omitempty"`
	User *User `gorm:"foreignKey:user_id" json:"user,omitempty"`

	types.Timestamps
}

// Overlaps applies the half-open interval rule against another window.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return start.Before(b.EndTime) && end.After(b.StartTime)
}

func (b *Booking) CanCancel() error {
	if b.Status.Terminal() {
		return &types.InvalidStateError{BookingID: b.ID, Status: b.Status}
	}
	return nil
}

// ApplyEntryScan moves the booking to in_parking. The spot hold taken at
// acceptance carries over; no inventory change happens here.
func (b *Booking) ApplyEntryScan(at time.Time) error {
	if b.EntryScanned {
		return &types.AlreadyScannedError{BookingID: b.ID, Gate: "entry"}
	}
	if b.Status != types.BOOKING_PENDING_ARRIVAL && b.Status != types.BOOKING_ACTIVE {
		return &types.InvalidStateError{BookingID: b.ID, Status: b.Status}
	}
	b.EntryScanned = true
	b.EntryTime = &at
	b.Status = types.BOOKING_IN_PARKING
	return nil
}

// ApplyExitScan completes the booking and reports the realized stay.
func (b *Booking) ApplyExitScan(at time.Time) (time.Duration, error) {
	if !b.EntryScanned {
		return 0, &types.EntryNotScannedError{BookingID: b.ID}
	}
	if b.ExitScanned {
		return 0, &types.AlreadyScannedError{BookingID: b.ID, Gate: "exit"}
	}
	if b.Status != types.BOOKING_IN_PARKING {
		return 0, &types.InvalidStateError{BookingID: b.ID, Status: b.Status}
	}
	b.ExitScanned = true
	b.ExitTime = &at
	b.Status = types.BOOKING_COMPLETED
	return at.Sub(*b.EntryTime), nil
}
