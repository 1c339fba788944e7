package middlewares

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sps/src/lib"
	"time"

	"github.com/gin-gonic/gin"
)

// DedupRequestID rejects replays of a client-supplied X-Request-ID so retried
// mutations never apply their side effects twice. Requests without the header
// pass through.
func DedupRequestID(ctx *gin.Context) {
	requestId := ctx.GetHeader("X-Request-ID")
	if requestId == "" {
		return
	}
	rd := lib.GetRedisClient()
	key := fmt.Sprintf("request:%s", requestId)
	ok, err := rd.SetNX(context.Background(), key, 1, 24*time.Hour).Result()
	if err != nil {
		log.Printf("[redis] Error reserving request id [%s]: %s\n", requestId, err.Error())
		return
	}
	if !ok {
		ctx.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request"})
		return
	}
	ctx.Set("request_id", requestId)
}
