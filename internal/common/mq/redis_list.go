package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"contestjudge/pkg/utils/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisListConfig configures the Redis list driver.
type RedisListConfig struct {
	// KeyPrefix namespaces every list key, e.g. "contestjudge:queue:".
	KeyPrefix string
	// Consumer names this process's processing list. Defaults to the hostname.
	Consumer string
	// MaxLen caps a topic list at its newest N entries. Topics without an
	// entry grow until consumed, so only cap topics that may have no reader.
	MaxLen map[string]int64
}

// RedisListQueue implements MessageQueue on Redis lists.
// Producers LPUSH onto <prefix><topic>; consumers BRPOPLPUSH into a
// per-consumer processing list and LREM the entry once the handler returns.
// Entries left in a processing list by a crashed consumer are moved back to
// the pending list when that consumer starts again.
type RedisListQueue struct {
	client redis.UniversalClient
	cfg    RedisListConfig

	mu            sync.Mutex
	subscriptions []*redisSubscription
	started       bool
	closed        bool
}

type redisSubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	baseCtx context.Context

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisListQueue creates a list-backed queue over an existing client.
func NewRedisListQueue(client redis.UniversalClient, cfg RedisListConfig) (*RedisListQueue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "contestjudge:queue:"
	}
	if cfg.Consumer == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "local"
		}
		cfg.Consumer = host
	}
	return &RedisListQueue{client: client, cfg: cfg}, nil
}

func (q *RedisListQueue) pendingKey(topic string) string {
	return q.cfg.KeyPrefix + topic
}

func (q *RedisListQueue) processingKey(topic, group string) string {
	return fmt.Sprintf("%s%s:processing:%s:%s", q.cfg.KeyPrefix, topic, group, q.cfg.Consumer)
}

// Publish pushes a message onto the topic list.
func (q *RedisListQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode message failed: %w", err)
	}
	key := q.pendingKey(topic)
	maxLen := q.cfg.MaxLen[topic]
	if maxLen <= 0 {
		return q.client.LPush(ctx, key, payload).Err()
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, maxLen-1)
		return nil
	})
	return err
}

// Subscribe registers a handler for a topic list.
func (q *RedisListQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	var options SubscribeOptions
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = "default"
	}

	sub := &redisSubscription{
		topic:   topic,
		handler: handler,
		opts:    options,
		baseCtx: ctx,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("message queue is closed")
	}
	q.subscriptions = append(q.subscriptions, sub)
	if q.started {
		return q.startSubscription(sub)
	}
	return nil
}

// Start starts consuming messages for all subscriptions.
func (q *RedisListQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("message queue is closed")
	}
	if q.started {
		return nil
	}
	for _, sub := range q.subscriptions {
		if err := q.startSubscription(sub); err != nil {
			return err
		}
	}
	q.started = true
	return nil
}

// Stop stops all consumers and waits for in-flight handlers.
func (q *RedisListQueue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, sub := range q.subscriptions {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	for _, sub := range q.subscriptions {
		sub.wg.Wait()
	}
	q.started = false
	return nil
}

// Ping verifies the Redis connection.
func (q *RedisListQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close stops consumers. The client is owned by the caller.
func (q *RedisListQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	return q.Stop()
}

func (q *RedisListQueue) startSubscription(sub *redisSubscription) error {
	if sub.baseCtx == nil {
		sub.baseCtx = context.Background()
	}
	sub.ctx, sub.cancel = context.WithCancel(sub.baseCtx)

	for i := 0; i < sub.opts.Concurrency; i++ {
		processing := q.processingKey(sub.topic, sub.opts.ConsumerGroup)
		if sub.opts.Concurrency > 1 {
			processing = fmt.Sprintf("%s:%d", processing, i)
		}
		if err := q.recover(sub.ctx, sub.topic, processing); err != nil {
			return err
		}
		sub.wg.Add(1)
		go func(processing string) {
			defer sub.wg.Done()
			q.consume(sub, processing)
		}(processing)
	}
	return nil
}

// recover moves entries orphaned in a processing list back to pending.
func (q *RedisListQueue) recover(ctx context.Context, topic, processing string) error {
	for {
		_, err := q.client.RPopLPush(ctx, processing, q.pendingKey(topic)).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("recover processing list failed: %w", err)
		}
	}
}

func (q *RedisListQueue) consume(sub *redisSubscription, processing string) {
	pending := q.pendingKey(sub.topic)
	for {
		if sub.ctx.Err() != nil {
			return
		}
		raw, err := q.client.BRPopLPush(sub.ctx, pending, processing, sub.opts.PollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if sub.ctx.Err() != nil {
				return
			}
			logger.Warn(sub.ctx, "redis queue pop failed", zap.String("topic", sub.topic), zap.Error(err))
			time.Sleep(fetchBackoff)
			continue
		}
		q.handleMessage(sub, processing, raw)
	}
}

func (q *RedisListQueue) handleMessage(sub *redisSubscription, processing, raw string) {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		logger.Error(sub.ctx, "drop undecodable message", zap.String("topic", sub.topic), zap.Error(err))
	} else if err := sub.handler(sub.ctx, &m); err != nil {
		logger.Error(sub.ctx, "message handler failed",
			zap.String("topic", sub.topic),
			zap.String("message_id", m.ID),
			zap.Error(err),
		)
	}
	ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.client.LRem(ackCtx, processing, 1, raw).Err(); err != nil {
		logger.Warn(sub.ctx, "redis queue ack failed",
			zap.String("topic", sub.topic),
			zap.String("message_id", m.ID),
			zap.Error(err),
		)
	}
}
