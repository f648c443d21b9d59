// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Redis is a Sink that adds JSON encoded records to a Redis stream.
type Redis struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedis returns a sink adding records to stream using client. If maxLen
// is positive, the stream is approximately trimmed to that length.
func NewRedis(client *redis.Client, stream string, maxLen int64) *Redis {
	return &Redis{client: client, stream: stream, maxLen: maxLen}
}

func (s *Redis) Publish(ctx context.Context, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"session": r.Session.String(),
			"kind":    r.Kind,
			"data":    string(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	err = s.client.XAdd(ctx, args).Err()
	if err != nil {
		return fmt.Errorf("failed to add record to stream %s: %w", s.stream, err)
	}
	return nil
}

// Close closes the client.
func (s *Redis) Close() error { return s.client.Close() }
