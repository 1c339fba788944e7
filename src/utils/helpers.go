package utils

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sps/src/config"
	"sps/src/db"
	"sps/src/lib"
	"sps/src/models"
	"sps/src/types"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MinBookingDuration = 1 * time.Hour
	MaxBookingDuration = 24 * time.Hour
	AdvanceHorizon     = 7 * 24 * time.Hour

	// immediateStartSkew absorbs clock drift between client and server for
	// bookings that start now.
	immediateStartSkew = 5 * time.Minute
)

func IsProd() bool {
	return config.API_ENV == string(types.Production)
}

// ApplyDelta adjusts a lot's available-spot count inside the caller's
// transaction. The row lock serializes concurrent deltas per lot; the bound
// check keeps the count inside [0, total].
func ApplyDelta(tx *gorm.DB, lotID uint, delta int) (int, error) {
	var lot models.Lot
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(&models.Lot{ID: lotID}).
		First(&lot).
		Error
	if err != nil {
		return 0, err
	}
	next := lot.AvailableSpots + delta
	if next < 0 || next > lot.TotalSpots {
		return lot.AvailableSpots, &types.CapacityError{
			LotID:     lotID,
			Available: lot.AvailableSpots,
			Total:     lot.TotalSpots,
		}
	}
	err = tx.
		Model(&models.Lot{}).
		Where("id = ?", lotID).
		Update("available_spots", gorm.Expr("available_spots + ?", delta)).
		Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func GetAvailability(lotID uint) (*types.AvailabilityResponse, error) {
	db := db.GetDb()
	var lot models.Lot
	err := db.
		Model(&models.Lot{}).
		Select("id", "total_spots", "available_spots").
		Where(&models.Lot{ID: lotID}).
		First(&lot).
		Error
	if err != nil {
		return nil, err
	}
	return &types.AvailabilityResponse{
		LotID:          lot.ID,
		AvailableSpots: lot.AvailableSpots,
		TotalSpots:     lot.TotalSpots,
	}, nil
}

// ValidateBookingWindow enforces the duration and horizon rules before any
// database work happens.
func ValidateBookingWindow(start, end time.Time, isAdvance bool, now time.Time) error {
	if !end.After(start) {
		return &types.ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	duration := end.Sub(start)
	if duration < MinBookingDuration {
		return &types.ValidationError{Field: "end_time", Reason: "booking must last at least 1 hour"}
	}
	if duration > MaxBookingDuration {
		return &types.ValidationError{Field: "end_time", Reason: "booking cannot last longer than 24 hours"}
	}
	if isAdvance {
		if !start.After(now) {
			return &types.ValidationError{Field: "start_time", Reason: "advance booking must start in the future"}
		}
		if start.Sub(now) > AdvanceHorizon {
			return &types.ValidationError{Field: "start_time", Reason: "advance booking cannot start more than 7 days ahead"}
		}
		return nil
	}
	skew := start.Sub(now)
	if skew < -immediateStartSkew || skew > immediateStartSkew {
		return &types.ValidationError{Field: "start_time", Reason: "immediate booking must start now"}
	}
	return nil
}

// CreateBooking runs the conflict scan, the spot decrement, and the insert as
// one transaction serialized on the lot row. A failed conflict scan rejects
// the booking rather than proceeding without the overlap guarantee.
func CreateBooking(params *types.CreateBookingRequestBody, userId uint, requestId string) (*models.Booking, error) {
	start, err := time.Parse(config.TIME_PARSE_FORMAT, params.StartTime)
	if err != nil {
		return nil, &types.ValidationError{Field: "start_time", Reason: err.Error()}
	}
	end, err := time.Parse(config.TIME_PARSE_FORMAT, params.EndTime)
	if err != nil {
		return nil, &types.ValidationError{Field: "end_time", Reason: err.Error()}
	}
	now := time.Now()
	if err := ValidateBookingWindow(start, end, params.IsAdvance, now); err != nil {
		return nil, err
	}

	metadata := types.Metadata{}
	if requestId != "" {
		metadata["requestId"] = requestId
	}

	var booking models.Booking
	db := db.GetDb()
	err = db.Transaction(func(tx *gorm.DB) error {
		var lot models.Lot
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(&models.Lot{ID: params.LotID}).
			First(&lot).
			Error
		if err != nil {
			return err
		}

		var conflict models.Booking
		err = tx.
			Model(&models.Booking{}).
			Where(&models.Booking{LotID: params.LotID}).
			Where(clause.IN{Column: "status", Values: types.NonTerminalBookingStatuses}).
			Where("start_time < ? AND end_time > ?", end, start).
			First(&conflict).
			Error
		if err == nil {
			return &types.ConflictError{
				LotID:     params.LotID,
				BookingID: conflict.ID,
				Start:     conflict.StartTime,
				End:       conflict.EndTime,
			}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return &types.StaleReadError{LotID: params.LotID, Err: err}
		}

		if _, err := ApplyDelta(tx, params.LotID, -1); err != nil {
			return err
		}

		status := types.BOOKING_ACTIVE
		var expiresAt *time.Time
		if params.IsAdvance {
			status = types.BOOKING_PENDING_ARRIVAL
			exp := start.Add(config.BookingGracePeriod())
			expiresAt = &exp
		}
		amount := float32(end.Sub(start).Hours()) * lot.PricePerHour
		booking = models.Booking{
			LotID:     params.LotID,
			UserID:    userId,
			StartTime: start,
			EndTime:   end,
			Status:    status,
			IsAdvance: params.IsAdvance,
			Amount:    amount,
			ExpiresAt: expiresAt,
			Metadata:  &metadata,
		}
		if err := tx.Create(&booking).Error; err != nil {
			return fmt.Errorf("error in Booking transaction: %s", err.Error())
		}
		booking.Lot = &lot
		return nil
	})
	if err != nil {
		log.Printf("CreateBooking failed: %s\n", err.Error())
		return nil, err
	}

	if booking.ExpiresAt != nil {
		go scheduleBookingExpiry(&booking)
	}
	go PublishLotSnapshot(booking.LotID)
	go PublishBookingSnapshot(booking.ID)

	return &booking, nil
}

// CancelBooking releases the held spot exactly once and publishes fresh
// snapshots to the live views.
func CancelBooking(bookingID uint, userId uint) error {
	db := db.GetDb()
	var lotID uint
	err := db.Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(&models.Booking{ID: bookingID}).
			First(&booking).
			Error
		if err != nil {
			return err
		}
		if booking.UserID != userId {
			return gorm.ErrRecordNotFound
		}
		if err := booking.CanCancel(); err != nil {
			return err
		}
		err = tx.
			Model(&models.Booking{}).
			Where(&models.Booking{ID: bookingID}).
			Update("status", types.BOOKING_CANCELLED).
			Error
		if err != nil {
			return err
		}
		if _, err := ApplyDelta(tx, booking.LotID, +1); err != nil {
			return err
		}
		lotID = booking.LotID
		return nil
	})
	if err != nil {
		return err
	}
	go PublishLotSnapshot(lotID)
	go PublishBookingSnapshot(bookingID)
	return nil
}

// ScanBookingEntry admits a driver. The hold taken at acceptance is consumed,
// not re-decremented, so no inventory delta runs here.
func ScanBookingEntry(bookingID, lotID uint) (*models.Booking, error) {
	db := db.GetDb()
	var booking models.Booking
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(&models.Booking{ID: bookingID, LotID: lotID}).
			First(&booking).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &types.ValidationError{Field: "code", Reason: "no booking matches this pass"}
			}
			return err
		}
		if err := booking.ApplyEntryScan(time.Now()); err != nil {
			return err
		}
		return tx.
			Model(&models.Booking{}).
			Where(&models.Booking{ID: bookingID}).
			Updates(map[string]any{
				"entry_scanned": booking.EntryScanned,
				"entry_time":    booking.EntryTime,
				"status":        booking.Status,
			}).
			Error
	})
	if err != nil {
		return nil, err
	}
	go PublishBookingSnapshot(bookingID)
	return &booking, nil
}

// ScanBookingExit completes the stay, recomputes the amount from the realized
// duration, and returns the spot to the lot.
func ScanBookingExit(bookingID, lotID uint) (*models.Booking, error) {
	db := db.GetDb()
	var booking models.Booking
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(&models.Booking{ID: bookingID, LotID: lotID}).
			Preload("Lot").
			First(&booking).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &types.ValidationError{Field: "code", Reason: "no booking matches this pass"}
			}
			return err
		}
		stay, err := booking.ApplyExitScan(time.Now())
		if err != nil {
			return err
		}
		hours := math.Ceil(stay.Hours())
		if hours < 1 {
			hours = 1
		}
		final := float32(hours) * booking.Lot.PricePerHour
		booking.FinalAmount = &final
		err = tx.
			Model(&models.Booking{}).
			Where(&models.Booking{ID: bookingID}).
			Updates(map[string]any{
				"exit_scanned": booking.ExitScanned,
				"exit_time":    booking.ExitTime,
				"status":       booking.Status,
				"final_amount": booking.FinalAmount,
			}).
			Error
		if err != nil {
			return err
		}
		if _, err := ApplyDelta(tx, booking.LotID, +1); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	go PublishLotSnapshot(lotID)
	go PublishBookingSnapshot(bookingID)
	return &booking, nil
}

// ExpireBooking is the sweep target for advance bookings never scanned in.
// Bookings that moved on since the job was scheduled are left alone.
func ExpireBooking(bookingID uint) error {
	db := db.GetDb()
	var lotID uint
	released := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(&models.Booking{ID: bookingID}).
			First(&booking).
			Error
		if err != nil {
			return err
		}
		if booking.Status != types.BOOKING_PENDING_ARRIVAL || booking.EntryScanned {
			return nil
		}
		err = tx.
			Model(&models.Booking{}).
			Where(&models.Booking{ID: bookingID}).
			Update("status", types.BOOKING_CANCELLED).
			Error
		if err != nil {
			return err
		}
		if _, err := ApplyDelta(tx, booking.LotID, +1); err != nil {
			return err
		}
		lotID = booking.LotID
		released = true
		return nil
	})
	if err != nil {
		return err
	}
	if released {
		go PublishLotSnapshot(lotID)
		go PublishBookingSnapshot(bookingID)
		go NotifyBookingExpired(bookingID)
	}
	return nil
}

// NotifyBookingExpired pushes an FCM notification to the driver's device if a
// token was registered at login.
func NotifyBookingExpired(bookingID uint) {
	db := db.GetDb()
	var booking models.Booking
	err := db.
		Preload("User").
		Where(&models.Booking{ID: bookingID}).
		First(&booking).
		Error
	if err != nil {
		log.Printf("Error loading booking for notification: %s\n", err.Error())
		return
	}
	if booking.User.Metadata == nil {
		return
	}
	token, ok := (*booking.User.Metadata)["fcm_token"].(string)
	if !ok || token == "" {
		return
	}
	client, err := lib.GetFirebaseMessaging()
	if err != nil {
		log.Printf("Error getting messaging client: %s\n", err.Error())
		return
	}
	_, err = client.Send(context.Background(), &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: "Booking expired",
			Body:  "Your booking was cancelled because the grace period elapsed before entry",
		},
	})
	if err != nil {
		log.Printf("Error sending expiry notification: %s\n", err.Error())
	}
}

func GetOwnBookings(userId uint) ([]models.Booking, error) {
	db := db.GetDb()
	var bookings []models.Booking
	err := db.
		Model(&models.Booking{}).
		Where(&models.Booking{UserID: userId}).
		Preload("Lot").
		Order("created_at DESC").
		Limit(20).
		Find(&bookings).
		Error
	return bookings, err
}

func GetManagedBookings(managerId uint) ([]models.Booking, error) {
	db := db.GetDb()
	var bookings []models.Booking
	err := db.
		Model(&models.Booking{}).
		Joins("JOIN lots ON lots.id = bookings.lot_id").
		Where("lots.manager_id = ?", managerId).
		Preload("Lot").
		Preload("User").
		Order("bookings.created_at DESC").
		Find(&bookings).
		Error
	return bookings, err
}

func scheduleBookingExpiry(booking *models.Booking) {
	runsAt := booking.ExpiresAt.UTC()
	runDate := time.Date(
		runsAt.Year(),
		runsAt.Month(),
		runsAt.Day(),
		runsAt.Hour(),
		runsAt.Minute(),
		0,
		0,
		runsAt.Location(),
	)
	jobTaskID := uuid.New()
	payloadId := jobTaskID.String()
	jobTask := models.JobTask{
		Name:    fmt.Sprintf("Booking_%d_Expiry", booking.ID),
		JobType: "OneTimeJobStartDateTime",
		RunsAt:  runDate,
		PayloadID: payloadId,
		Payload: map[string]any{
			"payloadId":        payloadId,
			"id":               booking.ID,
			"producerClientId": "BookingsToExpireProducer",
			"topic":            "BookingsToExpire",
			"table":            "bookings",
		},
		Source:     "Booking",
		SourceType: "table",
		Topic:      "BookingsToExpire",
	}
	id, err := jobTask.CreateAndEnqueueJobTask(jobTask)
	if err != nil {
		log.Printf("Error creating job for Booking: id=%d error=%s\n", booking.ID, err.Error())
		return
	}
	log.Printf("Created job for Booking[%d] with ID %s\n", booking.ID, id)
}

// PublishLotSnapshot pushes the lot's full current state. Consumers apply
// last-write-wins per lot id, so a whole entity goes out on every change.
func PublishLotSnapshot(lotID uint) {
	db := db.GetDb()
	var lot models.Lot
	if err := db.Where(&models.Lot{ID: lotID}).First(&lot).Error; err != nil {
		log.Printf("Could not load lot [%d] for publish: %s\n", lotID, err.Error())
		return
	}
	p := lib.GetPusherClient()
	if err := p.Trigger("lots", "updated", &lot); err != nil {
		log.Printf("Error publishing lot snapshot: %s\n", err.Error())
	}
}

// PublishBookingSnapshot pushes the booking's full current state to both the
// driver's and the lot manager's channels.
func PublishBookingSnapshot(bookingID uint) {
	db := db.GetDb()
	var booking models.Booking
	if err := db.Where(&models.Booking{ID: bookingID}).Preload("Lot").First(&booking).Error; err != nil {
		log.Printf("Could not load booking [%d] for publish: %s\n", bookingID, err.Error())
		return
	}
	p := lib.GetPusherClient()
	driverChannel := fmt.Sprintf("bookings-driver-%d", booking.UserID)
	if err := p.Trigger(driverChannel, "updated", &booking); err != nil {
		log.Printf("Error publishing booking snapshot: %s\n", err.Error())
	}
	if booking.Lot != nil {
		authorityChannel := fmt.Sprintf("bookings-authority-%d", booking.Lot.ManagerID)
		if err := p.Trigger(authorityChannel, "updated", &booking); err != nil {
			log.Printf("Error publishing booking snapshot: %s\n", err.Error())
		}
	}
}

// BuildPassPayload serializes and encrypts the QR object handed to drivers.
func BuildPassPayload(bookingID, lotID uint) (string, error) {
	payload := types.PassPayload{BookingID: bookingID, ParkingLotID: lotID}
	raw, err := json.Marshal(&payload)
	if err != nil {
		return "", err
	}
	key, err := hex.DecodeString(config.API_QRC_SECRET)
	if err != nil {
		log.Printf("Could not read key from string: %s\n", err.Error())
		return "", err
	}
	return EncryptMessage(key, string(raw))
}

// ParsePassPayload decrypts a scanned code and rejects payloads missing
// either field.
func ParsePassPayload(code string) (bookingID uint, lotID uint, err error) {
	key, err := hex.DecodeString(config.API_QRC_SECRET)
	if err != nil {
		log.Printf("Could not read key from string: %s\n", err.Error())
		return 0, 0, err
	}
	raw, err := DecryptMessage(key, code)
	if err != nil {
		return 0, 0, &types.ValidationError{Field: "code", Reason: "pass could not be decoded"}
	}
	if !gjson.Valid(*raw) {
		return 0, 0, &types.ValidationError{Field: "code", Reason: "pass is not a valid payload"}
	}
	bid := gjson.Get(*raw, "bookingId")
	lid := gjson.Get(*raw, "parkingLotId")
	if !bid.Exists() || bid.Uint() == 0 {
		return 0, 0, &types.ValidationError{Field: "bookingId", Reason: "missing from pass payload"}
	}
	if !lid.Exists() || lid.Uint() == 0 {
		return 0, 0, &types.ValidationError{Field: "parkingLotId", Reason: "missing from pass payload"}
	}
	return uint(bid.Uint()), uint(lid.Uint()), nil
}

func GenerateJWT(email string, userId uint, role types.Role) (string, error) {
	claims := types.Claims{
		Username: email,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userId),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	return token.SignedString([]byte(config.API_SECRET))
}

const earthRadiusMeters = 6371000

// DistanceMeters is the haversine great-circle distance between two
// coordinates.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func EncryptMessage(key []byte, message string) (string, error) {
	plaintext := []byte(message)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	cipherText := gcm.Seal(nonce, nonce, plaintext, nil)
	encodedString := hex.EncodeToString(cipherText)

	return encodedString, nil
}

func DecryptMessage(key []byte, message string) (*string, error) {
	cipherText, err := hex.DecodeString(message)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(cipherText) < gcm.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	decryptedData, err := gcm.Open(nil, cipherText[:gcm.NonceSize()], cipherText[gcm.NonceSize():], nil)
	if err != nil {
		return nil, err
	}
	decodedString := string(decryptedData)

	return &decodedString, nil
}
