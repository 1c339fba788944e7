package common

import (
	"log"
	"sps/src/db"
	"sps/src/lib"
	"sps/src/models"
	"sps/src/utils"

	"github.com/tidwall/gjson"
	"gorm.io/gorm"
)

// ExpiredBookingsConsumer drains the BookingsToExpire topic. Each message
// names an advance booking whose grace period ran out; the handler cancels it
// and returns its spot, then marks the originating job done.
func ExpiredBookingsConsumer() {
	topic := "BookingsToExpire"
	log.Printf("%s: Listening for messages...", topic)
	lib.KafkaConsumer("BookingsToExpireGroup", []string{topic}, func(value []byte) {
		body := string(value)
		if !gjson.Valid(body) {
			log.Printf("[%s]: Received invalid json body. Aborting", topic)
			return
		}
		id := gjson.Get(body, "id").Uint()
		payloadId := gjson.Get(body, "payloadId").String()
		if id == 0 {
			log.Printf("[%s]: Message carries no booking id. Aborting", topic)
			return
		}
		bookingID := uint(id)
		log.Printf("[%s]: %d", topic, bookingID)

		go func() {
			if err := utils.ExpireBooking(bookingID); err != nil {
				log.Printf("Error expiring booking [%d]: %s\n", bookingID, err.Error())
			}
		}()

		go func() {
			db := db.GetDb()
			err := db.Transaction(func(tx *gorm.DB) error {
				return tx.
					Where(&models.JobTask{PayloadID: payloadId}).
					Updates(&models.JobTask{Status: "done"}).
					Error
			})
			if err != nil {
				log.Printf("Error updating job status: %s\n", err.Error())
			}
		}()
	})
}
