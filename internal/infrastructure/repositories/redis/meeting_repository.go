package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisMeetingRepository keeps join-code records with a TTL so nothing
// outlives the session window. No participant secrets are stored.
type RedisMeetingRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisMeetingRepository(client *redis.Client, ttl time.Duration) ports.MeetingRepository {
	return &RedisMeetingRepository{
		client: client,
		prefix: "meshcall:meeting:",
		ttl:    ttl,
	}
}

func (r *RedisMeetingRepository) meetingKey(code domain.MeetingCode) string {
	return r.prefix + string(code)
}

func (r *RedisMeetingRepository) Create(ctx context.Context, meeting *domain.Meeting) error {
	data, err := json.Marshal(meeting)
	if err != nil {
		return fmt.Errorf("failed to marshal meeting: %w", err)
	}

	key := r.meetingKey(meeting.Code)
	ok, err := r.client.SetNX(ctx, key, data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to set meeting in Redis: %w", err)
	}
	if !ok {
		return fmt.Errorf("meeting already exists: %s", meeting.Code)
	}
	return nil
}

func (r *RedisMeetingRepository) GetByCode(ctx context.Context, code domain.MeetingCode) (*domain.Meeting, error) {
	data, err := r.client.Get(ctx, r.meetingKey(code)).Result()
	if err == redis.Nil {
		return nil, domain.ErrMeetingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting from Redis: %w", err)
	}

	var meeting domain.Meeting
	if err := json.Unmarshal([]byte(data), &meeting); err != nil {
		return nil, fmt.Errorf("failed to unmarshal meeting: %w", err)
	}
	return &meeting, nil
}

func (r *RedisMeetingRepository) Delete(ctx context.Context, code domain.MeetingCode) error {
	deleted, err := r.client.Del(ctx, r.meetingKey(code)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete meeting from Redis: %w", err)
	}
	if deleted == 0 {
		return domain.ErrMeetingNotFound
	}
	return nil
}
