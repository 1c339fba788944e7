package models

import "sps/src/types"

// Lot holds a parking lot's fixed layout and its live available-spot count.
// AvailableSpots is mutated only through utils.ApplyDelta so the [0, total]
// bound holds after every write.
type Lot struct {
	ID             uint    `gorm:"primarykey" json:"id"`
	Name           string  `json:"name,omitempty"`
	Slug           string  `gorm:"uniqueIndex" json:"slug,omitempty"`
	Address        string  `json:"address,omitempty"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	TotalSpots     int     `json:"total_spots"`
	AvailableSpots int     `json:"available_spots"`
	PricePerHour   float32 `json:"price_per_hour,omitempty"`
	Rating         float32 `json:"rating,omitempty"`
	ManagerID      uint    `json:"manager_id,omitempty"`

	Manager  *User     `gorm:"foreignKey:manager_id" json:"manager,omitempty"`
	Bookings []Booking `gorm:"foreignKey:lot_id" json:"bookings,omitempty"`

	types.Timestamps
}
