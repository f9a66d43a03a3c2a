package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

func SeedThread(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID) *mix.Thread {
	tb.Helper()
	th := &mix.Thread{UserID: userID, Title: "mix"}
	if err := tx.WithContext(ctx).Create(th).Error; err != nil {
		tb.Fatalf("seed thread: %v", err)
	}
	return th
}

// SeedMessage appends a message at the thread's next seq.
func SeedMessage(tb testing.TB, ctx context.Context, tx *gorm.DB, th *mix.Thread, role, status, text string) *mix.Message {
	tb.Helper()
	th.NextSeq++
	m := &mix.Message{
		ThreadID: th.ID,
		UserID:   th.UserID,
		Seq:      th.NextSeq,
		Role:     role,
		Status:   status,
		Text:     text,
		Content:  mix.MustEncodeContent(mix.Plain{Text: text}),
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed message: %v", err)
	}
	if err := tx.WithContext(ctx).Model(&mix.Thread{}).Where("id = ?", th.ID).Update("next_seq", th.NextSeq).Error; err != nil {
		tb.Fatalf("bump next_seq: %v", err)
	}
	return m
}

func SeedVersion(tb testing.TB, ctx context.Context, tx *gorm.DB, th *mix.Thread, parent *uuid.UUID, segments []mix.TimelineSegment) *mix.Version {
	tb.Helper()
	v := &mix.Version{
		ThreadID:           th.ID,
		UserID:             th.UserID,
		SourceMessageID:    uuid.New(),
		AssistantMessageID: uuid.New(),
		ParentVersionID:    parent,
		RunID:              uuid.New(),
		Proposal:           datatypes.NewJSONType(mix.Proposal{Title: "seed", Segments: segments}),
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed version: %v", err)
	}
	return v
}
