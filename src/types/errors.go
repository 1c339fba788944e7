package types

import (
	"fmt"
	"time"
)

// ValidationError covers malformed input: bad durations, out-of-range start
// times, QR payloads missing fields. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ConflictError reports a double-booking attempt together with the window it
// collided with so the caller can pick another slot.
type ConflictError struct {
	LotID     uint
	BookingID uint
	Start     time.Time
	End       time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("lot [%d] already has booking [%d] between %s and %s",
		e.LotID, e.BookingID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// CapacityError means the delta about to be applied would leave the lot's
// available count outside [0, total].
type CapacityError struct {
	LotID     uint
	Available int
	Total     int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("lot [%d] cannot absorb delta: %d of %d spots available", e.LotID, e.Available, e.Total)
}

// StaleReadError wraps a failed conflict scan. Bookings fail closed on it.
type StaleReadError struct {
	LotID uint
	Err   error
}

func (e *StaleReadError) Error() string {
	return fmt.Sprintf("conflict scan for lot [%d] unavailable: %s", e.LotID, e.Err.Error())
}
func (e *StaleReadError) Unwrap() error { return e.Err }

type AlreadyScannedError struct {
	BookingID uint
	Gate      string
}

func (e *AlreadyScannedError) Error() string {
	return fmt.Sprintf("booking [%d] was already scanned at %s", e.BookingID, e.Gate)
}

type EntryNotScannedError struct {
	BookingID uint
}

func (e *EntryNotScannedError) Error() string {
	return fmt.Sprintf("booking [%d] has not been scanned at entry", e.BookingID)
}

type InvalidStateError struct {
	BookingID uint
	Status    BookingStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("booking [%d] is in state [%s] which does not allow this operation", e.BookingID, e.Status)
}
