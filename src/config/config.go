package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

const TIME_PARSE_FORMAT = "2006-01-02 15:04:05 -07:00"

var (
	API_ENV        = os.Getenv("API_ENV")
	API_SECRET     = os.Getenv("JWT_SECRET")
	API_QRC_SECRET = os.Getenv("API_QRC_SECRET")
	GAPI_API_KEY   = os.Getenv("GAPI_API_KEY")
	GENAI_API_KEY  = os.Getenv("GENAI_API_KEY")
	GENAI_MODEL    = os.Getenv("GENAI_MODEL")
)

// BookingGracePeriod is how long after its start time an unscanned advance
// booking keeps its spot before being expired.
func BookingGracePeriod() time.Duration {
	mins, err := strconv.Atoi(os.Getenv("API_BOOKING_GRACE"))
	if err != nil || mins <= 0 {
		mins = 30
	}
	return time.Duration(mins) * time.Minute
}
