package boot

import (
	"log"
	"sps/src/common"
	"sps/src/db"
	"sps/src/lib"
	"sps/src/models"
	"time"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.User{},
		&models.Lot{},
		&models.Booking{},
		&models.JobTask{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

func InitBroker() {
	go RecoverQueuedJobs()
	go UpdateExpiredJobs()
	go lib.KafkaCreateTopics("BookingsToExpire")
	go common.ExpiredBookingsConsumer()
}

func InitScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	jobsWaitingInQueue := len(sched.Jobs())
	log.Println("Jobs in queue:", jobsWaitingInQueue)
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	err = sched.Shutdown()
	if err != nil {
		log.Println("An error has occurred while shutting down Scheduler. Check logs for info")
		return
	}
}

// RecoverQueuedJobs reloads pending expiry schedules after a restart so no
// held spot leaks across a process boundary.
func RecoverQueuedJobs() error {
	if _, err := lib.GetScheduler(); err != nil {
		return err
	}
	db := db.GetDb()
	ss := db.Session(&gorm.Session{PrepareStmt: true})
	var jobTasks []models.JobTask
	today := time.Now()
	in1m := today.Add(1 * time.Minute)
	in8days := today.Add(8 * 24 * time.Hour)
	err := ss.
		Model(&models.JobTask{}).Select("id", "payload", "runs_at").
		Where(&models.JobTask{Status: "pending", JobType: "OneTimeJobStartDateTime"}).
		Where("runs_at BETWEEN ? AND ?", in1m, in8days).
		Order("runs_at asc").
		Limit(100).
		Find(&jobTasks).
		Error
	if err != nil {
		log.Printf("Error retrieving jobs: %s\n", err.Error())
		return err
	}
	log.Printf("Found %d pending jobs", len(jobTasks))
	for _, jobTask := range jobTasks {
		log.Printf("Queueing: %s\n", jobTask.ID.String())
		jobDef := gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(jobTask.RunsAt))
		jt := gocron.NewTask(func() {
			log.Println("Running scheduled task")
			err := lib.KafkaProduceMessage(jobTask.Payload["producerClientId"].(string), jobTask.Payload["topic"].(string), jobTask.Payload)
			if err != nil {
				log.Printf("Error on producing message: %s\n", err.Error())
				return
			}
		})
		jobID, err := lib.CreateOneTimeCronJob(jobDef, jt)
		if err != nil {
			log.Printf("Failed to schedule job [%s]. Skipping: %s\n", jobTask.ID.String(), err.Error())
			continue
		}
		log.Printf("Added job to scheduler: name=%s id=%s job=%s\n", jobTask.Name, jobTask.ID.String(), *jobID)
	}

	return nil
}

// UpdateExpiredJobs settles jobs that should have fired while the process was
// down: their bookings are expired immediately and the rows marked off.
func UpdateExpiredJobs() {
	db := db.GetDb()
	var overdue []models.JobTask
	err := db.
		Model(&models.JobTask{}).
		Where("status", "pending").
		Where("runs_at < ?", time.Now()).
		Find(&overdue).
		Error
	if err != nil {
		log.Printf("Error while processing expired jobs: %s\n", err.Error())
		return
	}
	for _, jobTask := range overdue {
		go func(jt models.JobTask) {
			if err := lib.KafkaProduceMessage(jt.Payload["producerClientId"].(string), jt.Topic, jt.Payload); err != nil {
				log.Printf("Error replaying overdue job [%s]: %s\n", jt.ID.String(), err.Error())
			}
		}(jobTask)
	}
	err = db.
		Transaction(func(tx *gorm.DB) error {
			return tx.Model(&models.JobTask{}).
				Where("status", "pending").
				Where("runs_at < ?", time.Now()).
				Update("status", "expired").Error
		})
	if err != nil {
		log.Printf("Error while processing expired jobs: %s\n", err.Error())
	}
}
