package queue

import (
	"context"
	"time"

	"student-bulk-import/internal/config"
	"student-bulk-import/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

type Consumer struct {
	client      *redis.Client
	cfg         *config.Config
	pollTimeout time.Duration
	log         zerolog.Logger
}

const requeueTimeout = 5 * time.Second

type MessageHandler func(ctx context.Context, data []byte) error

func NewConsumer(redisClient *RedisClient, cfg *config.Config) *Consumer {
	return &Consumer{
		client:      redisClient.Client(),
		cfg:         cfg,
		pollTimeout: 5 * time.Second,
		log:         logger.For("queue"),
	}
}

func (c *Consumer) ConsumeStudentQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.Redis.StudentQueue, handler)
}

func (c *Consumer) ConsumeEventQueue(ctx context.Context, queueName string, handler MessageHandler) error {
	return c.consume(ctx, queueName, handler)
}

// DeadLetter keeps a failed message for diagnostics. Only the newest
// DLQMaxLen messages per queue are retained.
func (c *Consumer) DeadLetter(ctx context.Context, queueName string, message []byte) error {
	dlqName := queueName + c.cfg.Redis.DLQSuffix
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, dlqName, message)
	pipe.LTrim(ctx, dlqName, 0, c.cfg.Redis.DLQMaxLen-1)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Consumer) consume(ctx context.Context, queueName string, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			result, err := c.client.BRPop(ctx, c.pollTimeout, queueName).Result()
			if err != nil {
				if err == redis.Nil {
					continue // Timeout, continue polling
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Error().Err(err).Str("queue", queueName).Msg("Failed to consume message")
				time.Sleep(time.Second)
				continue
			}

			if len(result) < 2 {
				continue
			}

			message := result[1]
			if err := handler(ctx, []byte(message)); err != nil {
				if ctx.Err() != nil {
					// Shutting down: the message was never handed off, so put
					// it back at the head of the queue for the next consumer.
					c.requeue(queueName, message)
					return ctx.Err()
				}
				c.log.Error().Err(err).Str("queue", queueName).Msg("Failed to process message")
				if dlqErr := c.DeadLetter(ctx, queueName, []byte(message)); dlqErr != nil {
					c.log.Error().Err(dlqErr).Str("queue", queueName).Msg("Failed to move message to DLQ")
				}
			}
		}
	}
}

func (c *Consumer) requeue(queueName, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
	defer cancel()

	if err := c.client.RPush(ctx, queueName, message).Err(); err != nil {
		c.log.Error().Err(err).Str("queue", queueName).Msg("Failed to requeue message on shutdown")
	}
}
