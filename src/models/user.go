package models

import (
	"sps/src/types"
	"time"
)

type User struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	Name          string          `json:"name,omitempty"`
	Email         string          `json:"email,omitempty"`
	Role          types.Role      `gorm:"default:'driver'" json:"role,omitempty"`
	UID           string          `json:"uid,omitempty"`
	EmailVerified bool            `json:"email_verified,omitempty"`
	VerifiedAt    time.Time       `json:"verified_at,omitempty"`
	LastActive    *time.Time      `json:"last_active,omitempty"`
	Metadata      *types.Metadata `gorm:"type:jsonb" json:"-"`

	Bookings []Booking `gorm:"foreignKey:user_id" json:"bookings,omitempty"`
	Lots     []Lot     `gorm:"foreignKey:manager_id" json:"lots,omitempty"`

	types.Timestamps
}
