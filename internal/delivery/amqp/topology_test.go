package amqp

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

func TestReconnectDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{20, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := reconnectDelay(tt.attempt); got != tt.want {
			t.Errorf("reconnectDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestJobCodec(t *testing.T) {
	job := &domain.GradeJob{
		SubmissionID: uuid.Must(uuid.NewV7()),
		UserID:       7,
		ProblemID:    42,
		Language:     domain.LangCpp,
		EnqueuedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	body, err := encodeJob(job)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeJob(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SubmissionID != job.SubmissionID || got.UserID != job.UserID || got.ProblemID != job.ProblemID ||
		got.Language != job.Language || !got.EnqueuedAt.Equal(job.EnqueuedAt) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, job)
	}
}

func TestDecodeJob_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "submission please"},
		{"missing id", `{"user_id":1,"problem_id":2,"language":"c"}`},
		{"bad id", `{"submission_id":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeJob([]byte(tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
