package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportd/internal/config"
	"reportd/internal/report"
	"reportd/internal/task"
	"reportd/internal/taskstore"
	"reportd/internal/trigger"
	logx "reportd/pkg/logx"
)

func TestParseEvery(t *testing.T) {
	cases := []struct {
		in   string
		want task.ScheduleConfig
		err  bool
	}{
		{in: "30m", want: task.ScheduleConfig{"minutes": float64(30)}},
		{in: "1d12h", want: task.ScheduleConfig{"days": float64(1), "hours": float64(12)}},
		{in: "1h 30m", want: task.ScheduleConfig{"hours": float64(1), "minutes": float64(30)}},
		{in: "2W", want: task.ScheduleConfig{"weeks": float64(2)}},
		{in: "", err: true},
		{in: "soon", err: true},
		{in: "5m extra", err: true},
		{in: "x5m", err: true},
		{in: "5m5m", err: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseEvery(tc.in)
			if tc.err {
				require.Error(t, err)
				assert.ErrorIs(t, err, task.ErrInvalidSchedule)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRunAt(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, loc)

	at, err := parseRunAt("2026-03-11 09:30", loc, now)
	require.NoError(t, err)
	assert.True(t, at.Equal(time.Date(2026, 3, 11, 9, 30, 0, 0, loc)))

	at, err = parseRunAt("2026-03-11T09:30:00Z", loc, now)
	require.NoError(t, err)
	assert.True(t, at.Equal(time.Date(2026, 3, 11, 9, 30, 0, 0, time.UTC)))

	at, err = parseRunAt("tomorrow", loc, now)
	require.NoError(t, err)
	y, m, d := at.In(loc).Date()
	assert.Equal(t, []int{2026, 3, 11}, []int{y, int(m), d})

	_, err = parseRunAt("whenever you like", loc, now)
	require.ErrorIs(t, err, task.ErrInvalidSchedule)
}

func validInput() taskInput {
	return taskInput{
		Name:         " Daily sales ",
		DBType:       "postgres",
		DBURL:        "postgresql://u:p@db:5432/sales",
		Query:        "select * from sales",
		ScheduleType: "cron",
		Minute:       "0",
		Hour:         "8",
		DayOfWeek:    "mon-fri",
		SendEmail:    true,
		Recipients:   "a@example.com; b@example.com",
		CC:           "boss@example.com",
		ExportExcel:  true,
		ExcelPath:    "/tmp/sales.xlsx",
		PDFPath:      "/tmp/ignored.pdf",
	}
}

func TestBuildTask(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	tk, err := validInput().build(time.UTC, now)
	require.NoError(t, err)

	assert.Equal(t, "Daily sales", tk.Name)
	assert.Equal(t, task.DatabasePostgres, tk.DatabaseType)
	assert.Equal(t, task.ScheduleCron, tk.ScheduleType)
	assert.Equal(t, task.ScheduleConfig{"minute": "0", "hour": "8", "day_of_week": "mon-fri"}, tk.ScheduleConfig)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, tk.EmailRecipients)
	assert.Equal(t, []string{"boss@example.com"}, tk.EmailCCRecipients)
	assert.True(t, tk.IsActive)
	assert.True(t, tk.EmailEnabled())
	assert.Equal(t, "/tmp/sales.xlsx", tk.ExcelPath)
	assert.Empty(t, tk.PDFPath, "path of a disabled export is dropped")
}

func TestBuildCronDefaultsMinuteToZero(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	in := validInput()
	in.Minute = ""
	in.Hour = "9"
	in.DayOfWeek = ""
	in.Timezone = "UTC"

	tk, err := in.build(time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, task.ScheduleConfig{"minute": "0", "hour": "9", "timezone": "UTC"}, tk.ScheduleConfig)

	next, err := trigger.NextRun(tk.ScheduleType, tk.ScheduleConfig, nil, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), next.UTC())
}

func TestBuildTaskRejects(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		mutate func(*taskInput)
		target error
	}{
		{"bad url", func(in *taskInput) { in.DBURL = "mysql://x" }, report.ErrInvalidURL},
		{"unknown db", func(in *taskInput) { in.DBType = "mssql" }, report.ErrUnsupportedDB},
		{"no recipients", func(in *taskInput) { in.Recipients = "" }, task.ErrInvalidTask},
		{"bad cron field", func(in *taskInput) { in.Minute = "61" }, task.ErrInvalidSchedule},
		{"bad interval", func(in *taskInput) { in.ScheduleType = "interval"; in.Every = "often" }, task.ErrInvalidSchedule},
		{"unknown schedule", func(in *taskInput) { in.ScheduleType = "hourly" }, task.ErrInvalidSchedule},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := in.build(time.UTC, now)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.target)
		})
	}
}

func TestBuildOnceTaskWithoutEmail(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	in := validInput()
	in.ScheduleType = "once"
	in.RunAt = "2026-03-12 07:00"
	in.Timezone = "Asia/Jakarta"
	in.SendEmail = false
	in.Recipients = ""

	tk, err := in.build(time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, task.ScheduleConfig{"run_date": "2026-03-12T07:00:00Z"}, tk.ScheduleConfig)
	assert.False(t, tk.EmailEnabled())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a@x", "b@x", "c@x"}, splitList(" a@x, b@x;c@x ,, "))
	assert.Nil(t, splitList("  "))
	assert.Error(t, validEmails("a@x, nope"))
	assert.NoError(t, validEmails(""))
}

func TestDescribeSchedule(t *testing.T) {
	assert.Equal(t, "every 1 days 12 hours", describeSchedule(task.Task{
		ScheduleType:   task.ScheduleInterval,
		ScheduleConfig: task.ScheduleConfig{"hours": float64(12), "days": float64(1)},
	}))
	assert.Equal(t, "cron minute=0 hour=8", describeSchedule(task.Task{
		ScheduleType:   task.ScheduleCron,
		ScheduleConfig: task.ScheduleConfig{"hour": "8", "minute": "0"},
	}))
	assert.Equal(t, "once at 2026-03-12T07:00:00Z", describeSchedule(task.Task{
		ScheduleType:   task.ScheduleOnce,
		ScheduleConfig: task.ScheduleConfig{"run_date": "2026-03-12T07:00:00Z"},
	}))
}

func TestFindTaskByPrefix(t *testing.T) {
	st, err := taskstore.Open(filepath.Join(t.TempDir(), "tasks.json"), logx.Nop())
	require.NoError(t, err)
	in := validInput()
	tk, err := in.build(time.UTC, time.Now())
	require.NoError(t, err)
	id, err := st.Add(tk)
	require.NoError(t, err)

	got, err := findTask(st, id[:8])
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	got, err = findTask(st, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	_, err = findTask(st, "zzzz")
	require.ErrorIs(t, err, task.ErrNotFound)
}

func TestDeleteTaskConfirmation(t *testing.T) {
	st, err := taskstore.Open(filepath.Join(t.TempDir(), "tasks.json"), logx.Nop())
	require.NoError(t, err)
	tk, err := validInput().build(time.UTC, time.Now())
	require.NoError(t, err)
	id, err := st.Add(tk)
	require.NoError(t, err)

	var asked string
	err = deleteTask(st, id[:8], func(title string) (bool, error) {
		asked = title
		return false, nil
	})
	require.ErrorIs(t, err, huh.ErrUserAborted)
	assert.Contains(t, asked, id)
	_, ok, err := st.Get(id)
	require.NoError(t, err)
	assert.True(t, ok, "declined delete keeps the task")

	require.NoError(t, deleteTask(st, id, func(string) (bool, error) { return true, nil }))
	_, ok, err = st.Get(id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.ErrorIs(t, deleteTask(st, id, nil), task.ErrNotFound)
}

func TestQueryOptions(t *testing.T) {
	cfgBackup := cfg
	t.Cleanup(func() { cfg = cfgBackup })
	cfg = config.Default()
	cfg.Export.OutputDir = t.TempDir()

	in := queryInput{
		DBType: "sqlite",
		DBURL:  "sqlite:///tmp/x.db",
		Query:  "select 1",
		Excel:  true,
		Send:   true,
		To:     "a@example.com",
	}
	target, exp, em, err := in.options()
	require.NoError(t, err)
	assert.Equal(t, task.DatabaseSQLite, target.Type)
	assert.Equal(t, filepath.Join(cfg.Export.OutputDir, "query_result.xlsx"), exp.ExcelPath)
	assert.Empty(t, exp.PDFPath)
	assert.Equal(t, []string{"a@example.com"}, em.To)

	in.To = ""
	_, _, _, err = in.options()
	require.ErrorIs(t, err, report.ErrNoRecipients)
}
