// Package posting publishes due slots through a Poster and records the
// outcome back on the schedule.
package posting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

const defaultPublishTimeout = 10 * time.Second

// Request is one slot's content to publish. SlotID is stable across
// redeliveries of the same slot.
type Request struct {
	Item      *domain.ContentItem
	SlotID    uuid.UUID
	Day       string
	SlotIndex int
}

// PostResult reports a successful post.
type PostResult struct {
	PostedAt  time.Time
	Receivers int64
}

// Poster publishes content to its destination.
type Poster interface {
	Post(ctx context.Context, req Request) (PostResult, error)
}

// Message is the JSON payload published for each post. Delivery is at least
// once; consumers de-duplicate on SlotID.
type Message struct {
	SlotID      uuid.UUID          `json:"slot_id"`
	ContentID   uuid.UUID          `json:"content_id"`
	Platform    domain.Platform    `json:"platform"`
	ContentType domain.ContentType `json:"content_type"`
	Text        string             `json:"text,omitempty"`
	ImageURL    string             `json:"image_url,omitempty"`
	VideoURL    string             `json:"video_url,omitempty"`
	SourceURL   string             `json:"source_url,omitempty"`
	Author      string             `json:"author,omitempty"`
	Day         string             `json:"day"`
	SlotIndex   int                `json:"slot_index"`
	PublishedAt time.Time          `json:"published_at"`
}

// RedisPoster publishes each post on the Redis channel <prefix>:<platform>.
type RedisPoster struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// NewRedisPoster publishes on channels under prefix. A non-positive timeout uses the default.
func NewRedisPoster(client *redis.Client, prefix string, timeout time.Duration) *RedisPoster {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &RedisPoster{client: client, prefix: prefix, timeout: timeout, now: time.Now}
}

// Channel returns the channel a platform's posts go to.
func (p *RedisPoster) Channel(platform domain.Platform) string {
	return fmt.Sprintf("%s:%s", p.prefix, platform)
}

func (p *RedisPoster) Post(ctx context.Context, req Request) (PostResult, error) {
	item := req.Item
	msg := Message{
		SlotID:      req.SlotID,
		ContentID:   item.ID,
		Platform:    item.Platform,
		ContentType: item.ContentType,
		Text:        item.TextValue(),
		ImageURL:    item.ImageURLValue(),
		VideoURL:    item.VideoURLValue(),
		SourceURL:   item.SourceURL,
		Author:      item.Author,
		Day:         req.Day,
		SlotIndex:   req.SlotIndex,
		PublishedAt: p.now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return PostResult{}, fmt.Errorf("marshal message: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	n, err := p.client.Publish(pubCtx, p.Channel(item.Platform), payload).Result()
	if err != nil {
		return PostResult{}, fmt.Errorf("redis publish: %w", err)
	}
	return PostResult{PostedAt: msg.PublishedAt, Receivers: n}, nil
}
