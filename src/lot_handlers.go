package main

import (
	"log"
	"net/http"
	"sort"
	"sps/src/db"
	"sps/src/middlewares"
	"sps/src/models"
	"sps/src/types"
	"sps/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

func lotHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/lots", func(ctx *gin.Context) {
			var filters types.LotQueryFilters
			if err := ctx.ShouldBindQuery(&filters); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			db := db.GetDb()
			query := db.Model(&models.Lot{})
			if filters.Mine {
				managerId := ctx.GetUint("id")
				query = query.Where(&models.Lot{ManagerID: managerId})
			}
			var lots []models.Lot
			if err := query.Order("name asc").Find(&lots).Error; err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": lots, "count": len(lots)})
		}).
		GET("/lots/nearby", func(ctx *gin.Context) {
			var params types.NearbyQueryParams
			if err := ctx.ShouldBindQuery(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			lots, err := lotsNearCoordinate(params.Lat, params.Lng, params.Radius)
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": lots, "count": len(lots)})
		}).
		GET("/lots/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			db := db.GetDb()
			var lot models.Lot
			if err := db.
				Model(&models.Lot{}).
				Where(&models.Lot{ID: params.ID}).
				First(&lot).
				Error; err != nil {
				abortWithDomainError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": lot})
		}).
		GET("/lots/:id/availability", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			availability, err := utils.GetAvailability(params.ID)
			if err != nil {
				abortWithDomainError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": availability})
		})

	managed := g.Group("")
	managed.Use(middlewares.AuthorityOnly)
	managed.
		POST("/lots", func(ctx *gin.Context) {
			var body types.CreateLotRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			managerId := ctx.GetUint("id")
			lot := models.Lot{
				Name:           body.Name,
				Slug:           slug.Make(body.Name),
				Address:        body.Address,
				Latitude:       body.Latitude,
				Longitude:      body.Longitude,
				TotalSpots:     body.TotalSpots,
				AvailableSpots: body.TotalSpots,
				PricePerHour:   body.PricePerHour,
				Rating:         body.Rating,
				ManagerID:      managerId,
			}
			db := db.GetDb()
			err := db.Transaction(func(tx *gorm.DB) error {
				return tx.Create(&lot).Error
			})
			if err != nil {
				log.Printf("Error creating lot: %s\n", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			go utils.PublishLotSnapshot(lot.ID)
			ctx.JSON(http.StatusCreated, gin.H{"data": lot})
		}).
		PATCH("/lots/:id/spots", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.AdjustSpotsRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			managerId := ctx.GetUint("id")
			db := db.GetDb()
			var next int
			err := db.Transaction(func(tx *gorm.DB) error {
				var lot models.Lot
				if err := tx.
					Model(&models.Lot{}).
					Select("id", "manager_id").
					Where(&models.Lot{ID: params.ID}).
					First(&lot).
					Error; err != nil {
					return err
				}
				if lot.ManagerID != managerId {
					return gorm.ErrRecordNotFound
				}
				n, err := utils.ApplyDelta(tx, params.ID, body.Delta)
				if err != nil {
					return err
				}
				next = n
				return nil
			})
			if err != nil {
				abortWithDomainError(ctx, err)
				return
			}
			go utils.PublishLotSnapshot(params.ID)
			ctx.JSON(http.StatusOK, gin.H{"available_spots": next})
		})
	return g
}

// lotsNearCoordinate filters lots by haversine distance and returns them
// closest first. A zero radius means no distance cutoff.
func lotsNearCoordinate(lat, lng, radius float64) ([]gin.H, error) {
	db := db.GetDb()
	var lots []models.Lot
	if err := db.Model(&models.Lot{}).Find(&lots).Error; err != nil {
		return nil, err
	}
	results := []gin.H{}
	for _, lot := range lots {
		distance := utils.DistanceMeters(lat, lng, lot.Latitude, lot.Longitude)
		if radius > 0 && distance > radius {
			continue
		}
		results = append(results, gin.H{"lot": lot, "distance_m": distance})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i]["distance_m"].(float64) < results[j]["distance_m"].(float64)
	})
	return results, nil
}
