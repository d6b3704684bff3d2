// Package eventbus carries analysis events over Redis streams.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
)

// Stream names.
const (
	StreamAnalysis = "analysis_events"
	StreamMarkets  = "market_events"
)

type RedisEventBus struct {
	client *redis.Client
	block  time.Duration
}

func NewRedisEventBus(host string, port int) (*RedisEventBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", host, port),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Str("addr", fmt.Sprintf("%s:%d", host, port)).Msg("Connected to Redis")

	return &RedisEventBus{client: client, block: 5 * time.Second}, nil
}

// Subscribe delivers events appended to streams after the call until ctx is
// done. Handler errors are logged and the stream moves on.
func (b *RedisEventBus) Subscribe(ctx context.Context, streams []string, handler func(types.Event) error) error {
	log.Info().Strs("streams", streams).Msg("Subscribing to streams")

	args := &redis.XReadArgs{
		Streams: append(append([]string(nil), streams...), make([]string, len(streams))...),
		Block:   b.block,
		Count:   10,
	}

	// "$" means only entries added after the first read.
	for i := range streams {
		args.Streams[len(streams)+i] = "$"
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := b.client.XRead(ctx, args).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Failed to read from stream")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range result {
			for _, message := range stream.Messages {
				for i, s := range streams {
					if s == stream.Stream {
						args.Streams[len(streams)+i] = message.ID
					}
				}

				event, err := parseEvent(message)
				if err != nil {
					log.Error().Err(err).Str("stream", stream.Stream).Str("message", message.ID).Msg("Failed to parse event")
					continue
				}

				if err := handler(event); err != nil {
					log.Error().Err(err).Str("event_type", event.Type).Msg("Failed to handle event")
				}
			}
		}
	}
}

// Publish appends event to stream. An empty ID or timestamp is filled in.
func (b *RedisEventBus) Publish(ctx context.Context, stream string, event types.Event) error {
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: encodeEvent(event),
	}).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().
		Str("stream", stream).
		Str("type", event.Type).
		Msg("Published event")

	return nil
}

func encodeEvent(event types.Event) map[string]interface{} {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data := string(event.Data)
	if data == "" {
		data = "{}"
	}

	return map[string]interface{}{
		"id":        event.ID,
		"type":      event.Type,
		"source":    event.Source,
		"timestamp": event.Timestamp.Format(time.RFC3339Nano),
		"data":      data,
	}
}

func parseEvent(msg redis.XMessage) (types.Event, error) {
	var event types.Event

	var ok bool
	if event.Type, ok = msg.Values["type"].(string); !ok || event.Type == "" {
		return types.Event{}, fmt.Errorf("event %s has no type", msg.ID)
	}
	if event.ID, ok = msg.Values["id"].(string); !ok || event.ID == "" {
		event.ID = msg.ID
	}
	event.Source, _ = msg.Values["source"].(string)

	if ts, ok := msg.Values["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			event.Timestamp = t
		}
	}

	if dataStr, ok := msg.Values["data"].(string); ok && dataStr != "" {
		if !json.Valid([]byte(dataStr)) {
			return types.Event{}, fmt.Errorf("event %s has invalid data", msg.ID)
		}
		event.Data = json.RawMessage(dataStr)
	}

	return event, nil
}

func (b *RedisEventBus) Close() error {
	return b.client.Close()
}
