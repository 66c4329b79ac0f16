package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Slots Tests
// =============================================================================

func TestSlots(t *testing.T) {
	tests := []struct {
		name     string
		req      DispatchRequest
		expected int
	}{
		{"idle queue", DispatchRequest{Limit: 2, Running: 0, Waiting: 0}, 0},
		{"fills free slots", DispatchRequest{Limit: 3, Running: 1, Waiting: 5}, 2},
		{"fewer waiting than slots", DispatchRequest{Limit: 4, Running: 0, Waiting: 1}, 1},
		{"at limit", DispatchRequest{Limit: 2, Running: 2, Waiting: 3}, 0},
		{"limit lowered below running", DispatchRequest{Limit: 1, Running: 3, Waiting: 2}, 0},
		{"zero limit treated as one", DispatchRequest{Limit: 0, Running: 0, Waiting: 2}, 1},
		{"negative limit treated as one", DispatchRequest{Limit: -5, Running: 1, Waiting: 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slots(tt.req))
		})
	}
}

// =============================================================================
// History Tests
// =============================================================================

func makeJobs(n int) []domain.Job {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jobs := make([]domain.Job, n)
	for i := range jobs {
		jobs[i] = domain.NewJob(fmt.Sprintf("app-%d", i), false, base.Add(time.Duration(i)*time.Second))
	}
	return jobs
}

func TestAppendHistory_Bounded(t *testing.T) {
	var history []domain.Job
	for _, job := range makeJobs(60) {
		history = AppendHistory(history, job, HistoryLimit)
	}

	assert.Len(t, history, HistoryLimit)
	assert.Equal(t, "app-10", history[0].AppID)
	assert.Equal(t, "app-59", history[len(history)-1].AppID)
}

func TestAppendHistory_DoesNotAlias(t *testing.T) {
	jobs := makeJobs(3)
	history := AppendHistory(nil, jobs[0], 2)
	history = AppendHistory(history, jobs[1], 2)

	next := AppendHistory(history, jobs[2], 2)
	assert.Equal(t, "app-0", history[0].AppID)
	assert.Equal(t, []string{"app-1", "app-2"}, []string{next[0].AppID, next[1].AppID})
}

func TestRecent_NewestFirst(t *testing.T) {
	history := makeJobs(5)

	recent := Recent(history, 3)
	assert.Equal(t, []string{"app-4", "app-3", "app-2"}, []string{recent[0].AppID, recent[1].AppID, recent[2].AppID})

	assert.Len(t, Recent(history, 0), 5)
	assert.Len(t, Recent(history, 50), 5)
	assert.Empty(t, Recent(nil, 10))
}
