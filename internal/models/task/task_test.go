package task_test

import (
	"testing"
	"time"

	"memo/internal/models/task"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTags(t *testing.T) {
	got := task.NormalizeTags([]string{" work ", "home", "", "work", "  "})
	assert.Equal(t, []string{"home", "work"}, got)
	assert.Empty(t, task.NormalizeTags(nil))
}

func TestTask_IsDueWithin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(10 * time.Minute)
	past := now.Add(-time.Minute)
	edge := now.Add(30 * time.Minute)

	tests := []struct {
		name string
		task task.Task
		want bool
	}{
		{name: "due inside window", task: task.Task{DueAt: &due}, want: true},
		{name: "due on window edge", task: task.Task{DueAt: &edge}, want: true},
		{name: "due in the past", task: task.Task{DueAt: &past}, want: false},
		{name: "completed", task: task.Task{DueAt: &due, Completed: true}, want: false},
		{name: "no due date", task: task.Task{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.IsDueWithin(now, now.Add(30*time.Minute)))
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	done := true
	tk := &task.Task{
		Title:       "Buy milk",
		Description: "2 litres",
		Category:    "home",
		Tags:        []string{"errand", "shop"},
	}

	assert.True(t, task.Filter{}.Matches(tk))
	assert.True(t, task.Filter{Category: "home"}.Matches(tk))
	assert.False(t, task.Filter{Category: "work"}.Matches(tk))
	assert.True(t, task.Filter{Tag: "shop"}.Matches(tk))
	assert.False(t, task.Filter{Tag: "sho"}.Matches(tk))
	assert.False(t, task.Filter{Completed: &done}.Matches(tk))
	assert.True(t, task.Filter{Query: "MILK"}.Matches(tk))
	assert.True(t, task.Filter{Query: "litre"}.Matches(tk))
	assert.True(t, task.Filter{Query: "err"}.Matches(tk))
	assert.False(t, task.Filter{Query: "bread"}.Matches(tk))
}

func TestTask_CloneIsDeep(t *testing.T) {
	due := time.Now()
	orig := &task.Task{
		DueAt:       &due,
		Tags:        []string{"a"},
		Attachments: map[string]task.Attachment{"x": {Name: "x.txt"}},
	}

	c := orig.Clone()
	c.Tags[0] = "b"
	c.Attachments["y"] = task.Attachment{}
	*c.DueAt = due.Add(time.Hour)

	assert.Equal(t, "a", orig.Tags[0])
	assert.Len(t, orig.Attachments, 1)
	assert.Equal(t, due, *orig.DueAt)
}

func TestTaskOptions(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	tk := &task.Task{Title: "old", Priority: task.PriorityLow}

	for _, opt := range []task.TaskOption{
		task.WithTitle("  new "),
		task.WithDueAt(&due),
		task.WithTags([]string{"b", "a", "b"}),
	} {
		opt(tk)
	}

	assert.Equal(t, "new", tk.Title)
	assert.Equal(t, task.PriorityLow, tk.Priority)
	assert.Equal(t, []string{"a", "b"}, tk.Tags)
	assert.Equal(t, time.UTC, tk.DueAt.Location())
	assert.True(t, tk.DueAt.Equal(due))

	task.WithDueAt(nil)(tk)
	assert.Nil(t, tk.DueAt)
}
