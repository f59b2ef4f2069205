package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"

	"callintake_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues notification tasks. A nil Client is a no-op so the API
// binary keeps serving calls when Redis is not configured.
type Client struct {
	client *asynq.Client
	queue  string
}

// Dispatcher is the enqueue surface the notification subscribers depend on.
type Dispatcher interface {
	EnqueueEmergencyAlert(ctx context.Context, payload EmergencyAlertPayload) error
	EnqueueBookingConfirmation(ctx context.Context, payload BookingConfirmationPayload) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) EnqueueEmergencyAlert(ctx context.Context, payload EmergencyAlertPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewEmergencyAlertTask(payload)
	if err != nil {
		return err
	}

	// Emergency alerts get aggressive retry; the on-call phone must ring.
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(10))
	return err
}

func (c *Client) EnqueueBookingConfirmation(ctx context.Context, payload BookingConfirmationPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewBookingConfirmationTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
