package main

import (
	"log"
	"net/http"
	"sps/src/lib"
	"sps/src/types"

	"github.com/gin-gonic/gin"
	"googlemaps.github.io/maps"
)

func searchHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/search", func(ctx *gin.Context) {
			var body types.SearchRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			route, err := lib.ExtractRoute(ctx.Request.Context(), body.Query)
			if err != nil || route.Destination == "" {
				if err != nil {
					log.Printf("Route extraction failed, falling back to raw query: %s\n", err.Error())
				}
				// Deterministic fallback: the raw input is the destination.
				route = &types.RouteExtraction{
					Origin:      types.CurrentLocationSentinel,
					Destination: body.Query,
				}
			}

			cli, err := lib.GetMapsClient()
			if err != nil {
				log.Printf("Error initializing maps client: %s\n", err.Error())
				ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "geocoding unavailable"})
				return
			}
			geo, err := cli.Geocode(ctx.Request.Context(), &maps.GeocodingRequest{Address: route.Destination})
			if err != nil || len(geo) == 0 {
				if err != nil {
					log.Printf("Error geocoding [%s]: %s\n", route.Destination, err.Error())
				}
				ctx.JSON(http.StatusNotFound, gin.H{"error": "destination could not be located"})
				return
			}
			coord := geo[0].Geometry.Location

			lots, err := lotsNearCoordinate(coord.Lat, coord.Lng, body.Radius)
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{
				"origin":      route.Origin,
				"destination": route.Destination,
				"coordinate":  gin.H{"lat": coord.Lat, "lng": coord.Lng},
				"lots":        lots,
				"count":       len(lots),
			})
		})
	return g
}
