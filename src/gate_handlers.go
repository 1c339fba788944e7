package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path"
	"sps/src/db"
	"sps/src/lib"
	"sps/src/middlewares"
	"sps/src/models"
	"sps/src/types"
	"sps/src/utils"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeqown/go-qrcode"
	"gorm.io/gorm"
)

func gateHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	gate := g.Group("/gate")
	gate.Use(middlewares.AuthorityOnly)
	gate.
		POST("/entry", func(ctx *gin.Context) {
			var body types.ScanRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			bookingID, lotID, err := utils.ParsePassPayload(body.Code)
			if err != nil {
				abortWithDomainError(ctx, err)
				return
			}
			booking, err := utils.ScanBookingEntry(bookingID, lotID)
			if err != nil {
				abortWithDomainError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		POST("/exit", func(ctx *gin.Context) {
			var body types.ScanRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			bookingID, lotID, err := utils.ParsePassPayload(body.Code)
			if err != nil {
				abortWithDomainError(ctx, err)
				return
			}
			booking, err := utils.ScanBookingExit(bookingID, lotID)
			if err != nil {
				abortWithDomainError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		})
	return g
}

func getBookingForUser(bookingID, userId uint, role string) (*models.Booking, error) {
	db := db.GetDb()
	var booking models.Booking
	err := db.
		Model(&models.Booking{}).
		Where(&models.Booking{ID: bookingID}).
		Preload("Lot").
		First(&booking).
		Error
	if err != nil {
		return nil, err
	}
	if role == string(types.ROLE_AUTHORITY) {
		if booking.Lot == nil || booking.Lot.ManagerID != userId {
			return nil, gorm.ErrRecordNotFound
		}
		return &booking, nil
	}
	if booking.UserID != userId {
		return nil, gorm.ErrRecordNotFound
	}
	return &booking, nil
}

// servePassImage renders the booking's encrypted payload as a QR jpeg. The
// payload string is cached so the scanner sees a stable code across reloads,
// and echoed in a header for clients that render their own code.
func servePassImage(ctx *gin.Context, booking *models.Booking) {
	rd := lib.GetRedisClient()
	cacheKey := fmt.Sprintf("pass:%d", booking.ID)
	code := rd.Get(context.Background(), cacheKey).Val()
	if code == "" {
		var err error
		code, err = utils.BuildPassPayload(booking.ID, booking.LotID)
		if err != nil {
			log.Printf("Error building pass payload: %s\n", err.Error())
			ctx.Status(http.StatusInternalServerError)
			return
		}
		rd.SetEx(context.Background(), cacheKey, code, 2*time.Hour)
	}
	qrc, err := qrcode.New(code)
	if err != nil {
		log.Printf("Error generating qrcode: %s\n", err.Error())
		ctx.Status(http.StatusInternalServerError)
		return
	}
	tempdir := os.Getenv("TEMP_DIR")
	filepath := path.Join(tempdir, fmt.Sprintf("pass-%d.jpeg", booking.ID))
	if err = qrc.Save(filepath); err != nil {
		log.Printf("Could not save qrcode to file [%s]: %s\n", filepath, err.Error())
		ctx.Status(http.StatusInternalServerError)
		return
	}
	ctx.Header("X-Pass-Code", code)
	ctx.File(filepath)
}
