// Copyright 2026 The Counsel Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package redis broadcasts permission cache invalidations between server
// instances over Redis pub/sub.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/counselcms/counsel/internal/observability/logger"
)

// DefaultChannel carries module cache invalidations.
const DefaultChannel = "counsel.permission.modules"

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewClient creates a client and verifies the connection
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Notifier publishes and receives module cache invalidations.
// Messages carry the publishing instance ID so an instance ignores its own.
type Notifier struct {
	client     *goredis.Client
	channel    string
	instanceID string
}

// NewNotifier creates a notifier on channel, or DefaultChannel when empty
func NewNotifier(client *goredis.Client, channel string) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
	}
}

// Publish announces that the module catalog changed
func (n *Notifier) Publish(ctx context.Context) error {
	if n == nil || n.client == nil {
		return nil
	}
	return n.client.Publish(ctx, n.channel, n.instanceID).Err()
}

// Listen subscribes to invalidations from other instances and calls
// onInvalidate for each one until ctx is done. It returns once the
// subscription is confirmed.
func (n *Notifier) Listen(ctx context.Context, onInvalidate func()) error {
	if n == nil || n.client == nil {
		return nil
	}
	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}

	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload == n.instanceID {
					continue
				}
				slog.DebugContext(ctx, "module cache invalidated by peer",
					logger.Component("redis"),
				)
				onInvalidate()
			}
		}
	}()
	return nil
}
