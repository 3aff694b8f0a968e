package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client is a Redis connection scoped to one simulation instance. Every key
// and channel it touches is prefixed with the instance name, so several runs
// can share a Redis server. Safe for concurrent use.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient connects to Redis for instanceName, which every rank of a run
// must share.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

func (c *Client) InstanceName() string {
	return c.instanceName
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection. Used by the health endpoint and at startup.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// PublishAgreement publishes an agreement record as JSON on the instance's
// agreement_events channel. Delivery is at-most-once (Redis Pub/Sub).
func (c *Client) PublishAgreement(ctx context.Context, rec *AgreementRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal agreement event: %w", err)
	}

	channel := AgreementEventsChannel(c.instanceName)
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish agreement event: %w", err)
	}
	return nil
}

// AgreementSubscription delivers agreement events until closed or until its
// context ends, after which both channels are closed.
type AgreementSubscription struct {
	events chan *AgreementRecord
	errors chan error
	cancel context.CancelFunc
	once   sync.Once
}

func (s *AgreementSubscription) Events() <-chan *AgreementRecord {
	return s.events
}

// Errors reports payloads that could not be decoded. The subscription keeps
// running after an error.
func (s *AgreementSubscription) Errors() <-chan error {
	return s.errors
}

// Close ends the subscription. Repeated calls are no-ops.
func (s *AgreementSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeAgreements listens on the instance's agreement channel. It returns
// once Redis has confirmed the subscription, so records published afterwards
// are not missed. Pub/Sub is at-most-once: a slow reader loses events.
func (c *Client) SubscribeAgreements(ctx context.Context) (*AgreementSubscription, error) {
	channel := AgreementEventsChannel(c.instanceName)
	pubsub := c.rdb.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &AgreementSubscription{
		events: make(chan *AgreementRecord, 10),
		errors: make(chan error, 10),
		cancel: cancel,
	}
	go sub.pump(subCtx, pubsub)

	return sub, nil
}

func (s *AgreementSubscription) pump(ctx context.Context, pubsub *redis.PubSub) {
	defer close(s.events)
	defer close(s.errors)
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			msg = m
		}

		rec, err := decodeAgreement(msg.Payload)
		if err != nil {
			if !send(ctx, s.errors, err) {
				return
			}
			continue
		}
		if !send(ctx, s.events, rec) {
			return
		}
	}
}

func decodeAgreement(payload string) (*AgreementRecord, error) {
	var rec AgreementRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agreement event: %w", err)
	}
	return &rec, nil
}

// send reports false when ctx ended before v was delivered.
func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// IsNotFound reports whether err is redis.Nil.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
