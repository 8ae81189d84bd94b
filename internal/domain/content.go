// Package domain contains the core types of the content scheduling engine.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies the upstream source a content item was discovered on.
type Platform string

const (
	PlatformReddit  Platform = "reddit"
	PlatformYouTube Platform = "youtube"
	PlatformImgur   Platform = "imgur"
	PlatformBluesky Platform = "bluesky"
	PlatformTumblr  Platform = "tumblr"
	PlatformLemmy   Platform = "lemmy"
	PlatformGiphy   Platform = "giphy"
)

// AllPlatforms lists every known platform in default priority order.
var AllPlatforms = []Platform{
	PlatformReddit,
	PlatformYouTube,
	PlatformImgur,
	PlatformBluesky,
	PlatformTumblr,
	PlatformLemmy,
	PlatformGiphy,
}

// ParsePlatform validates a platform name.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, s)
}

// ContentType classifies the media carried by a content item.
type ContentType string

const (
	ContentTypeImage ContentType = "image"
	ContentTypeVideo ContentType = "video"
	ContentTypeGIF   ContentType = "gif"
	ContentTypeText  ContentType = "text"
	ContentTypeLink  ContentType = "link"
)

// ParseContentType validates a content type name.
func ParseContentType(s string) (ContentType, error) {
	switch ct := ContentType(strings.ToLower(strings.TrimSpace(s))); ct {
	case ContentTypeImage, ContentTypeVideo, ContentTypeGIF, ContentTypeText, ContentTypeLink:
		return ct, nil
	default:
		return "", fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, s)
	}
}

// ContentItem is a unit of discovered media or text held in the queue.
// Approval and posting are monotonic: an item is never un-posted.
type ContentItem struct {
	ID             uuid.UUID   `db:"id"              json:"id"`
	Text           *string     `db:"text_body"       json:"text,omitempty"`
	ImageURL       *string     `db:"image_url"       json:"image_url,omitempty"`
	VideoURL       *string     `db:"video_url"       json:"video_url,omitempty"`
	Platform       Platform    `db:"platform"        json:"platform"`
	ContentType    ContentType `db:"content_type"    json:"content_type"`
	SourceURL      string      `db:"source_url"      json:"source_url"`
	Author         string      `db:"author"          json:"author,omitempty"`
	ContentHash    string      `db:"content_hash"    json:"content_hash"`
	NormalizedText string      `db:"normalized_text" json:"-"`
	TextPrefix     string      `db:"text_prefix"     json:"-"`
	Approved       bool        `db:"approved"        json:"approved"`
	Posted         bool        `db:"posted"          json:"posted"`
	Confidence     float64     `db:"confidence"      json:"confidence"`
	ClaimedSlotID  *uuid.UUID  `db:"claimed_slot_id" json:"claimed_slot_id,omitempty"`
	PostedAt       *time.Time  `db:"posted_at"       json:"posted_at,omitempty"`
	CreatedAt      time.Time   `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"      json:"updated_at"`
}

// Eligible reports whether the item may be selected for a slot.
func (c *ContentItem) Eligible() bool {
	return c.Approved && !c.Posted && c.ClaimedSlotID == nil
}

// TextValue returns the text body or an empty string.
func (c *ContentItem) TextValue() string {
	return deref(c.Text)
}

// ImageURLValue returns the image URL or an empty string.
func (c *ContentItem) ImageURLValue() string {
	return deref(c.ImageURL)
}

// VideoURLValue returns the video URL or an empty string.
func (c *ContentItem) VideoURLValue() string {
	return deref(c.VideoURL)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Candidate is a not-yet-persisted content submission.
type Candidate struct {
	Text        string      `json:"text"`
	ImageURL    string      `json:"image_url"`
	VideoURL    string      `json:"video_url"`
	Platform    Platform    `json:"platform"     binding:"required"`
	ContentType ContentType `json:"content_type" binding:"required"`
	SourceURL   string      `json:"source_url"`
	Author      string      `json:"author"`
	Confidence  float64     `json:"confidence"`
	Approved    bool        `json:"approved"`
}

// Validate checks the fields every submission must carry.
func (c *Candidate) Validate() error {
	if _, err := ParsePlatform(string(c.Platform)); err != nil {
		return err
	}
	if _, err := ParseContentType(string(c.ContentType)); err != nil {
		return err
	}
	if c.Text == "" && c.ImageURL == "" && c.VideoURL == "" && c.SourceURL == "" {
		return fmt.Errorf("%w: candidate carries no text or url", ErrInvalidInput)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1, got %v", ErrInvalidInput, c.Confidence)
	}
	return nil
}

// PlatformCount is an aggregate of approved, unposted holdings per platform.
type PlatformCount struct {
	Platform Platform `db:"platform" json:"platform"`
	Count    int      `db:"count"    json:"count"`
}

// RecentPost is the platform/type pair of an already posted item, newest first.
type RecentPost struct {
	ContentID   uuid.UUID   `db:"id"           json:"content_id"`
	Platform    Platform    `db:"platform"     json:"platform"`
	ContentType ContentType `db:"content_type" json:"content_type"`
	PostedAt    time.Time   `db:"posted_at"    json:"posted_at"`
}
