package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis is a FileStore for multi-process deployments. Records live in string
// keys so consume-once maps onto a single GETDEL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	// Files are fetched once shortly after the processing window; anything
	// older than a day is abandoned.
	return &Redis{client: c, ttl: 24 * time.Hour}, nil
}

func (s *Redis) key(jobID string) string { return "file:" + jobID }

type redisRecord struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name"`
}

func (s *Redis) Put(ctx context.Context, jobID string, f StoredFile) error {
	b, err := json.Marshal(redisRecord{Data: f.Data, MimeType: f.MimeType, FileName: f.FileName})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(jobID), b, s.ttl).Err()
}

func (s *Redis) Get(ctx context.Context, jobID string) (StoredFile, bool, error) {
	return s.decode(s.client.Get(ctx, s.key(jobID)))
}

func (s *Redis) Take(ctx context.Context, jobID string) (StoredFile, bool, error) {
	return s.decode(s.client.GetDel(ctx, s.key(jobID)))
}

func (s *Redis) Delete(ctx context.Context, jobID string) error {
	return s.client.Del(ctx, s.key(jobID)).Err()
}

// Ping satisfies the status checker's probe interface.
func (s *Redis) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Redis) Close() error { return s.client.Close() }

func (s *Redis) decode(cmd *redis.StringCmd) (StoredFile, bool, error) {
	b, err := cmd.Bytes()
	if err == redis.Nil {
		return StoredFile{}, false, nil
	}
	if err != nil {
		return StoredFile{}, false, err
	}
	var rec redisRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return StoredFile{}, false, err
	}
	return StoredFile{Data: rec.Data, MimeType: rec.MimeType, FileName: rec.FileName}, true, nil
}
