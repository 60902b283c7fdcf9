package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message represents work to be processed.
type Message struct {
	Type string
	Body []byte
	// Retries counts how many times the message has been requeued.
	Retries int
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// New picks the backend named by QUEUE_BACKEND. Anything other than
// "memory" uses Redis.
func New(backend string, client *redis.Client, key string) Queue {
	if backend == "memory" || client == nil {
		return NewInMemory(64)
	}
	return NewRedisQueue(client, key)
}

// InMemory is a channel-backed queue for dev and tests. Messages do not
// leave the process.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message, blocking while the buffer is full.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel closed when ctx ends.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue is a Redis list used with LPUSH/BRPOP, so the API and the
// worker can run as separate processes.
type RedisQueue struct {
	client *redis.Client
	key    string
	wait   time.Duration
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "attendance:attempts"
	}
	return &RedisQueue{client: client, key: key, wait: 5 * time.Second}
}

func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	return q.client.LPush(ctx, q.key, serialize(msg)).Err()
}

// Consume streams messages using BRPOP until ctx ends.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, q.wait, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					log.Printf("queue: brpop %s: %v", q.key, err)
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			select {
			case out <- deserialize(res[1]):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Requeue publishes msg again with Retries bumped. It returns false without
// publishing once the message has already been retried maxRetries times.
func Requeue(ctx context.Context, q Queue, msg Message, maxRetries int) (bool, error) {
	if msg.Retries >= maxRetries {
		return false, nil
	}
	msg.Retries++
	if err := q.Publish(ctx, msg); err != nil {
		return false, fmt.Errorf("requeue %s: %w", msg.Type, err)
	}
	return true, nil
}

// serialize stores messages as Type|Body, or Type#Retries|Body once retried.
func serialize(msg Message) string {
	typ := msg.Type
	if msg.Retries > 0 {
		typ += "#" + strconv.Itoa(msg.Retries)
	}
	return typ + "|" + string(msg.Body)
}

func deserialize(s string) Message {
	typ, body, ok := strings.Cut(s, "|")
	if !ok {
		return Message{Body: []byte(s)}
	}
	msg := Message{Type: typ, Body: []byte(body)}
	if t, n, ok := strings.Cut(typ, "#"); ok {
		if retries, err := strconv.Atoi(n); err == nil {
			msg.Type, msg.Retries = t, retries
		}
	}
	return msg
}
