package main

import (
	"errors"
	"log"
	"net/http"
	"sps/src/types"
	"sps/src/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// abortWithDomainError maps the error taxonomy onto HTTP statuses. Conflict
// responses carry the colliding window so the caller can pick another slot.
func abortWithDomainError(ctx *gin.Context, err error) {
	var verr *types.ValidationError
	var cerr *types.ConflictError
	var caperr *types.CapacityError
	var serr *types.StaleReadError
	var aerr *types.AlreadyScannedError
	var eerr *types.EntryNotScannedError
	var ierr *types.InvalidStateError
	switch {
	case errors.As(err, &verr):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.As(err, &cerr):
		ctx.JSON(http.StatusConflict, gin.H{
			"error": cerr.Error(),
			"conflict": gin.H{
				"booking_id": cerr.BookingID,
				"start_time": cerr.Start,
				"end_time":   cerr.End,
			},
		})
	case errors.As(err, &caperr):
		ctx.JSON(http.StatusConflict, gin.H{"error": caperr.Error()})
	case errors.As(err, &serr):
		log.Printf("Conflict scan unavailable: %s\n", serr.Error())
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "booking could not be verified, try again"})
	case errors.As(err, &aerr):
		ctx.JSON(http.StatusConflict, gin.H{"error": aerr.Error()})
	case errors.As(err, &eerr):
		ctx.JSON(http.StatusConflict, gin.H{"error": eerr.Error()})
	case errors.As(err, &ierr):
		ctx.JSON(http.StatusConflict, gin.H{"error": ierr.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	default:
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func bookingHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/bookings", func(ctx *gin.Context) {
			var body types.CreateBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			requestId := ctx.GetString("request_id")
			booking, err := utils.CreateBooking(&body, userId, requestId)
			if err != nil {
				abortWithDomainError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": booking})
		}).
		GET("/bookings", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			bookings, err := utils.GetOwnBookings(userId)
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookings, "count": len(bookings)})
		}).
		GET("/bookings/authority", func(ctx *gin.Context) {
			managerId := ctx.GetUint("id")
			bookings, err := utils.GetManagedBookings(managerId)
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookings, "count": len(bookings)})
		}).
		GET("/bookings/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			userId := ctx.GetUint("id")
			booking, err := getBookingForUser(params.ID, userId, ctx.GetString("role"))
			if err != nil {
				abortWithDomainError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		PUT("/bookings/:id/cancel", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			if err := utils.CancelBooking(params.ID, userId); err != nil {
				abortWithDomainError(ctx, err)
				return
			}
			ctx.Status(http.StatusOK)
		}).
		GET("/bookings/:id/pass", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			userId := ctx.GetUint("id")
			booking, err := getBookingForUser(params.ID, userId, ctx.GetString("role"))
			if err != nil {
				abortWithDomainError(ctx, err)
				return
			}
			if booking.Status.Terminal() {
				abortWithDomainError(ctx, &types.InvalidStateError{BookingID: booking.ID, Status: booking.Status})
				return
			}
			servePassImage(ctx, booking)
		})
	return g
}
