package lib

import (
	"context"
	"log"
	"sps/src/config"
	"sps/src/types"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

type Key string

const (
	varsKey Key = "vars"
)

var scheduler gocron.Scheduler

func NewScheduler(s gocron.Scheduler) {
	scheduler = s
}

func GetScheduler() (gocron.Scheduler, error) {
	if scheduler != nil {
		return scheduler, nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("Error initializing Scheduler: %s\n", err.Error())
		return nil, err
	}
	scheduler = sched
	numJobs := len(sched.Jobs())
	log.Printf("Jobs in queue: %d\n", numJobs)
	return sched, nil
}

func CreateOneTimeCronJob(def gocron.JobDefinition, task gocron.Task) (*string, error) {
	sched, err := GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return nil, err
	}
	j, err := sched.NewJob(
		def,
		task,
	)
	if err != nil {
		return nil, err
	}
	id := j.ID().String()
	log.Printf("Job: %s %s\n", id, j.Name())
	return &id, nil
}

type Scheduler interface {
	Name() string
	CreateScheduleWithStartDate(ctx context.Context, s time.Time, p types.JSONB) (*uuid.UUID, error)
}

type LocalScheduler struct {
	inner *gocron.Scheduler
}

func (l *LocalScheduler) Name() string {
	return "Local"
}
func (l *LocalScheduler) CreateScheduleWithStartDate(ctx context.Context, s time.Time, p types.JSONB) (*uuid.UUID, error) {
	in := *l.inner
	j, err := in.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(s)),
		gocron.NewTask(func(ctx context.Context, p types.JSONB) {
			log.Printf("[%s] Running scheduled task...\n", l.Name())
			KafkaTaskHandlerFunc(ctx, &p)
		}, ctx, p),
	)
	if err != nil {
		log.Printf("Error creating job: %s\n", err.Error())
		return nil, err
	}
	sRunsAt := s.Format(config.TIME_PARSE_FORMAT)
	log.Printf("[%s] New Job scheduled on: %s %s\n", l.Name(), j.ID().String(), sRunsAt)
	jid := j.ID()
	return &jid, nil
}

func NewLocalScheduler() *LocalScheduler {
	inner, _ := GetScheduler()
	s := LocalScheduler{inner: &inner}
	return &s
}

// CreateScheduler keeps the indirection point for swapping in a managed
// scheduler backend per environment.
func CreateScheduler() Scheduler {
	local := NewLocalScheduler()
	return local
}

// NewScheduledJob registers a one-time schedule that produces the payload on
// the configured topic when it fires.
func NewScheduledJob(startDate time.Time, vars map[string]string, p types.JSONB) (*uuid.UUID, error) {
	sch := CreateScheduler()
	ctx := context.Background()
	ctx = context.WithValue(ctx, varsKey, vars)
	log.Printf("Created scheduler with name: %s\n", sch.Name())

	sid, err := sch.CreateScheduleWithStartDate(ctx, startDate, p)
	if err != nil {
		return nil, err
	}
	return sid, nil
}

func KafkaTaskHandlerFunc(ctx context.Context, p *types.JSONB) {
	vars := ctx.Value(varsKey).(map[string]string)
	clientId := vars["clientId"]
	topic := vars["topic"]
	go KafkaProduceMessage(clientId, topic, *p)
}
