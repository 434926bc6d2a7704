package queue

import (
	"context"
	"encoding/json"

	"student-bulk-import/internal/config"
	"student-bulk-import/internal/model"

	"github.com/go-redis/redis/v8"
)

type Producer struct {
	client  *redis.Client
	cfg     *config.Config
	replyTo string
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		client:  redisClient.Client(),
		cfg:     cfg,
		replyTo: cfg.Redis.EventQueue,
	}
}

// InstanceEventQueue names the event queue owned by one API instance.
func InstanceEventQueue(cfg *config.Config, instanceID string) string {
	return cfg.Redis.EventQueue + ":" + instanceID
}

// WithReplyTo returns a producer that stamps every enqueued job with
// queueName, so workers report the job's outcome there.
func (p *Producer) WithReplyTo(queueName string) *Producer {
	cp := *p
	cp.replyTo = queueName
	return &cp
}

func (p *Producer) EnqueueStudentJob(ctx context.Context, job model.StudentJob) error {
	if job.ReplyTo == "" {
		job.ReplyTo = p.replyTo
	}
	return p.push(ctx, p.cfg.Redis.StudentQueue, job)
}

// PublishJobEvent reports a row's terminal state back to the API instance
// that owns the batch tracker. An empty replyTo falls back to the shared
// event queue.
func (p *Producer) PublishJobEvent(ctx context.Context, replyTo string, evt model.JobEvent) error {
	if replyTo == "" {
		replyTo = p.cfg.Redis.EventQueue
	}
	return p.push(ctx, replyTo, evt)
}

func (p *Producer) push(ctx context.Context, queueName string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, queueName, data).Err()
}
