package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type Metadata map[string]any

func (a Metadata) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *Metadata) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type Env string

const (
	Local      Env = "local"
	Test       Env = "test"
	Production Env = "production"
)

type Role string

const (
	ROLE_DRIVER    Role = "driver"
	ROLE_AUTHORITY Role = "authority"
)

type BookingStatus string

const (
	BOOKING_PENDING_ARRIVAL BookingStatus = "pending_arrival"
	BOOKING_ACTIVE          BookingStatus = "active"
	BOOKING_IN_PARKING      BookingStatus = "in_parking"
	BOOKING_COMPLETED       BookingStatus = "completed"
	BOOKING_CANCELLED       BookingStatus = "cancelled"
)

func (s BookingStatus) Terminal() bool {
	return s == BOOKING_COMPLETED || s == BOOKING_CANCELLED
}

// NonTerminalBookingStatuses feed IN clauses on conflict and listing queries.
var NonTerminalBookingStatuses = []any{
	BOOKING_PENDING_ARRIVAL,
	BOOKING_ACTIVE,
	BOOKING_IN_PARKING,
}

type CreateLotRequestBody struct {
	Name         string  `json:"name" binding:"required"`
	Address      string  `json:"address" binding:"required"`
	Latitude     float64 `json:"latitude" binding:"required"`
	Longitude    float64 `json:"longitude" binding:"required"`
	TotalSpots   int     `json:"total_spots" binding:"required,gt=0"`
	PricePerHour float32 `json:"price_per_hour" binding:"required,gt=0"`
	Rating       float32 `json:"rating,omitempty" binding:"omitempty,gte=0,lte=5"`
}

type AdjustSpotsRequestBody struct {
	Delta int `json:"delta" binding:"required,oneof=-1 1"`
}

type CreateBookingRequestBody struct {
	LotID     uint   `json:"lot" binding:"required"`
	StartTime string `json:"start_time" binding:"required,bookabledate" time_format:"2006-01-02 15:04:05 -07:00"`
	EndTime   string `json:"end_time" binding:"required,gtdate=StartTime" time_format:"2006-01-02 15:04:05 -07:00"`
	IsAdvance bool   `json:"is_advance,omitempty"`
}

type ScanRequestBody struct {
	Code string `json:"code" binding:"required"`
}

type SearchRequestBody struct {
	Query  string  `json:"query" binding:"required"`
	Lat    float64 `json:"lat,omitempty"`
	Lng    float64 `json:"lng,omitempty"`
	Radius float64 `json:"radius,omitempty"`
}

type NearbyQueryParams struct {
	Lat    float64 `form:"lat" binding:"required"`
	Lng    float64 `form:"lng" binding:"required"`
	Radius float64 `form:"radius,omitempty"`
}

type RegisterUserRequestBody struct {
	Email string `json:"email" binding:"required"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty" binding:"omitempty,oneof=driver authority"`
}

type LoginUserRequestBody struct {
	Email string `json:"email" binding:"required"`
	// DeviceToken is an optional FCM registration token for expiry pushes.
	DeviceToken string `json:"device_token"`
}

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type LotQueryFilters struct {
	Mine bool `form:"mine,omitempty" binding:"omitempty"`
}

type AvailabilityResponse struct {
	LotID          uint `json:"lot_id"`
	AvailableSpots int  `json:"available_spots"`
	TotalSpots     int  `json:"total_spots"`
}

// PassPayload is the object serialized into a gate QR code. The gate rejects
// payloads missing either field.
type PassPayload struct {
	BookingID    uint `json:"bookingId"`
	ParkingLotID uint `json:"parkingLotId"`
}

type RouteExtraction struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// CurrentLocationSentinel marks an origin that should resolve to the caller's
// device position instead of a geocoded place.
const CurrentLocationSentinel = "CURRENT_LOCATION"
