package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/diversity"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

// ContentSummary is the part of a content item shown in a forecast.
type ContentSummary struct {
	ID          uuid.UUID          `json:"id"`
	Platform    domain.Platform    `json:"platform"`
	ContentType domain.ContentType `json:"content_type"`
	Author      string             `json:"author,omitempty"`
	Confidence  float64            `json:"confidence"`
	SourceURL   string             `json:"source_url,omitempty"`
	Text        string             `json:"text,omitempty"`
	ImageURL    string             `json:"image_url,omitempty"`
	VideoURL    string             `json:"video_url,omitempty"`
}

// SlotView is a slot with derived status and enriched content.
type SlotView struct {
	ID        uuid.UUID         `json:"id"`
	Index     int               `json:"index"`
	Label     string            `json:"label"`
	TargetAt  time.Time         `json:"target_at"`
	PostedAt  *time.Time        `json:"posted_at,omitempty"`
	Status    domain.SlotStatus `json:"status"`
	Reasoning string            `json:"reasoning,omitempty"`
	Content   *ContentSummary   `json:"content,omitempty"`
}

// Schedule is the forecast for one day.
type Schedule struct {
	Day       string             `json:"day"`
	Timezone  string             `json:"timezone"`
	Slots     []SlotView         `json:"slots"`
	Diversity diversity.Snapshot `json:"diversity"`
}

func (s *Scheduler) buildSchedule(ctx context.Context, day time.Time, slots []domain.ScheduledSlot) (Schedule, error) {
	contentByID, err := s.contentFor(ctx, slots)
	if err != nil {
		return Schedule{}, err
	}

	now := s.now()
	out := Schedule{
		Day:      domain.DayKey(day),
		Timezone: s.loc.String(),
		Slots:    make([]SlotView, 0, len(slots)),
	}
	var entries []domain.ScheduleEntry
	for i := range slots {
		var item *domain.ContentItem
		if c, ok := contentByID[idOrNil(slots[i].ContentID)]; ok {
			item = &c
			entries = append(entries, domain.ScheduleEntry{
				SlotIndex:   slots[i].SlotIndex,
				ContentID:   c.ID,
				Platform:    c.Platform,
				ContentType: c.ContentType,
				TargetAt:    slots[i].TargetAt,
			})
		}
		out.Slots = append(out.Slots, s.view(&slots[i], item, now))
	}
	out.Diversity = diversity.Compute(entries, s.universe)
	out.Diversity.Day = out.Day
	return out, nil
}

func (s *Scheduler) view(slot *domain.ScheduledSlot, item *domain.ContentItem, now time.Time) SlotView {
	v := SlotView{
		ID:        slot.ID,
		Index:     slot.SlotIndex,
		TargetAt:  slot.TargetAt.In(s.loc),
		PostedAt:  slot.PostedAt,
		Reasoning: slot.Reasoning,
		Status:    DeriveStatus(slot.TargetAt, slot.PostedAt, item != nil && item.Posted, now),
	}
	if ValidIndex(slot.SlotIndex) {
		v.Label = Labels[slot.SlotIndex].String()
	}
	if item != nil {
		v.Content = &ContentSummary{
			ID:          item.ID,
			Platform:    item.Platform,
			ContentType: item.ContentType,
			Author:      item.Author,
			Confidence:  item.Confidence,
			SourceURL:   item.SourceURL,
			Text:        item.TextValue(),
			ImageURL:    item.ImageURLValue(),
			VideoURL:    item.VideoURLValue(),
		}
	}
	return v
}
