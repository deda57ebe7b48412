package task

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskDefaults(t *testing.T) {
	t.Parallel()

	var tk Task
	assert.True(t, tk.EmailEnabled())
	assert.Equal(t, DefaultEmailSubject, tk.Subject())

	tk.SendEmail = Bool(false)
	tk.EmailSubject = "  Daily sales "
	assert.False(t, tk.EmailEnabled())
	assert.Equal(t, "Daily sales", tk.Subject())
}

func TestTaskDecodesLegacyRecord(t *testing.T) {
	t.Parallel()

	raw := `{"task_id":"a1","name":"n","query":"select 1","schedule_type":"interval",
		"schedule_config":{"minutes":5},"email_recipients":["a@b.c"],"is_active":true,
		"excel_path":null,"last_error":null,
		"created_at":"2024-01-02T03:04:05Z","last_run":null,"next_run":null}`
	var tk Task
	require.NoError(t, json.Unmarshal([]byte(raw), &tk))
	assert.True(t, tk.EmailEnabled())
	assert.Nil(t, tk.LastRun)
	assert.Equal(t, float64(5), tk.ScheduleConfig["minutes"])
}

func TestTaskClone(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := Task{
		ID:              "x",
		EmailRecipients: []string{"a@b.c"},
		ScheduleConfig:  ScheduleConfig{"minutes": float64(1)},
		LastRun:         &now,
		SendEmail:       Bool(true),
	}
	cp := orig.Clone()
	cp.EmailRecipients[0] = "changed"
	cp.ScheduleConfig["minutes"] = float64(2)
	*cp.LastRun = now.Add(time.Hour)
	*cp.SendEmail = false

	assert.Equal(t, "a@b.c", orig.EmailRecipients[0])
	assert.Equal(t, float64(1), orig.ScheduleConfig["minutes"])
	assert.Equal(t, now, *orig.LastRun)
	assert.True(t, *orig.SendEmail)
}

func TestTaskValidate(t *testing.T) {
	t.Parallel()

	base := Task{ID: "1", Name: "n", Query: "select 1", ScheduleType: ScheduleInterval, EmailRecipients: []string{"a@b.c"}}
	require.NoError(t, base.Validate())

	cases := []struct {
		name string
		mut  func(*Task)
		want error
	}{
		{"no name", func(tk *Task) { tk.Name = " " }, ErrInvalidTask},
		{"no query", func(tk *Task) { tk.Query = "" }, ErrInvalidTask},
		{"bad schedule type", func(tk *Task) { tk.ScheduleType = "daily" }, ErrInvalidSchedule},
		{"no recipients", func(tk *Task) { tk.EmailRecipients = nil }, ErrInvalidTask},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tk := base.Clone()
			tc.mut(&tk)
			err := tk.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want))
		})
	}

	noMail := base.Clone()
	noMail.EmailRecipients = nil
	noMail.SendEmail = Bool(false)
	require.NoError(t, noMail.Validate())
}
