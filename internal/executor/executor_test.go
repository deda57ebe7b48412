package executor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportd/internal/eventbus"
	"reportd/internal/report"
	"reportd/internal/storage"
	"reportd/internal/task"
	"reportd/internal/taskstore"
	logx "reportd/pkg/logx"
)

type fakeQuerier struct {
	rs  report.ResultSet
	err error
}

func (f fakeQuerier) Query(context.Context, report.Target, string) (report.ResultSet, error) {
	return f.rs, f.err
}

type fakeMailer struct{ sent []report.Message }

func (f *fakeMailer) Send(_ context.Context, msg report.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

type runnerFunc func(ctx context.Context, target report.Target, query string, exp report.ExportOptions, em report.EmailOptions) (report.Outcome, error)

func (f runnerFunc) ExecuteAndExport(ctx context.Context, target report.Target, query string, exp report.ExportOptions, em report.EmailOptions) (report.Outcome, error) {
	return f(ctx, target, query, exp, em)
}

type fixture struct {
	store   *taskstore.Store
	history storage.Store
	bus     eventbus.Bus
	outDir  string
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := taskstore.Open(filepath.Join(dir, "tasks.json"), logx.Nop())
	require.NoError(t, err)
	hist, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "history.jsonl")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })
	return &fixture{
		store:   st,
		history: hist,
		bus:     eventbus.New(),
		outDir:  filepath.Join(dir, "out"),
		now:     time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) executor(r report.Runner) *Service {
	s := New(Config{OutputDir: f.outDir, Location: time.UTC}, f.store, r, f.history, logx.Nop(), f.bus)
	s.now = func() time.Time { return f.now }
	return s
}

func (f *fixture) addTask(t *testing.T, tk task.Task) task.Task {
	t.Helper()
	id, err := f.store.Add(tk)
	require.NoError(t, err)
	got, ok, err := f.store.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	return got
}

func hourly() task.Task {
	return task.Task{
		Name:            "hourly sales",
		DatabaseType:    task.DatabaseSQLite,
		DatabaseURL:     "sales.db",
		Query:           "select * from sales",
		ScheduleType:    task.ScheduleInterval,
		ScheduleConfig:  task.ScheduleConfig{"hours": float64(1)},
		EmailRecipients: []string{"ops@example.com"},
		ExportExcel:     true,
		IsActive:        true,
	}
}

func TestZeroRowsIsNotAnError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tk := f.addTask(t, hourly())
	mailer := &fakeMailer{}
	runner := report.NewService(fakeQuerier{rs: report.ResultSet{Columns: []string{"a"}}}, mailer, report.Options{}, logx.Nop())

	res := f.executor(runner).Execute(context.Background(), tk)
	assert.False(t, res.Success)
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Files)
	assert.Empty(t, mailer.sent)
	assert.NoDirExists(t, f.outDir)

	got, _, err := f.store.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunCount)
	assert.Equal(t, 0, got.ErrorCount)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.LastRun)
	assert.True(t, got.LastRun.Equal(f.now))
	require.NotNil(t, got.NextRun)
	assert.True(t, got.NextRun.Equal(f.now.Add(time.Hour)))

	runs, err := f.history.RecentRuns(context.Background(), tk.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.StatusEmpty, runs[0].Status)
}

func TestSuccessExportsToDefaultPathsAndClearsError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	in := hourly()
	in.ExportPDF = true
	in.LastError = "old failure"
	in.ErrorCount = 2
	tk := f.addTask(t, in)

	events, unsub := f.bus.Subscribe(8)
	defer unsub()

	mailer := &fakeMailer{}
	rs := report.ResultSet{Columns: []string{"region", "total"}, Rows: [][]any{{"north", int64(3)}}}
	runner := report.NewService(fakeQuerier{rs: rs}, mailer, report.Options{From: "r@example.com"}, logx.Nop())

	res := f.executor(runner).Execute(context.Background(), tk)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Rows)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "report_"+tk.ID+".xlsx", filepath.Base(res.Files[0]))
	assert.Equal(t, "report_"+tk.ID+".pdf", filepath.Base(res.Files[1]))
	for _, p := range res.Files {
		assert.FileExists(t, p)
	}
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"ops@example.com"}, mailer.sent[0].To)
	assert.Equal(t, task.DefaultEmailSubject, mailer.sent[0].Subject)

	got, _, err := f.store.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunCount)
	assert.Equal(t, 2, got.ErrorCount)
	assert.Empty(t, got.LastError)

	ev := <-events
	assert.Equal(t, eventbus.TypeRunStarted, ev.Type)
	ev = <-events
	require.Equal(t, eventbus.TypeRunFinished, ev.Type)
	fin := ev.Data.(eventbus.RunFinished)
	assert.True(t, fin.Success)
	assert.Equal(t, SourceSchedule, fin.Trigger)
	require.NotNil(t, fin.NextRun)
}

func TestFailureWrapsExecutionErrorAndAdvancesSchedule(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	in := hourly()
	in.ScheduleType = task.ScheduleCron
	in.ScheduleConfig = task.ScheduleConfig{"minute": float64(30), "timezone": "UTC"}
	tk := f.addTask(t, in)

	boom := errors.New("connection refused")
	runner := report.NewService(fakeQuerier{err: boom}, &fakeMailer{}, report.Options{}, logx.Nop())

	res := f.executor(runner).Run(context.Background(), tk, SourceManual)
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, task.ErrExecution))
	assert.True(t, errors.Is(res.Err, boom))
	assert.Contains(t, res.Err.Error(), tk.ID)

	got, _, err := f.store.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunCount)
	assert.Equal(t, 1, got.ErrorCount)
	assert.Contains(t, got.LastError, "connection refused")
	require.NotNil(t, got.NextRun)
	assert.True(t, got.NextRun.Equal(time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)))

	runs, err := f.history.RecentRuns(context.Background(), tk.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.StatusFailed, runs[0].Status)
	assert.Equal(t, SourceManual, runs[0].Trigger)
}

func TestNextRunFollowsSetLocation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	in := hourly()
	in.ScheduleType = task.ScheduleCron
	in.ScheduleConfig = task.ScheduleConfig{"hour": float64(9)}
	tk := f.addTask(t, in)

	runner := runnerFunc(func(context.Context, report.Target, string, report.ExportOptions, report.EmailOptions) (report.Outcome, error) {
		return report.Outcome{Rows: 1}, nil
	})
	s := f.executor(runner)

	res := s.Run(context.Background(), tk, SourceManual)
	require.NotNil(t, res.NextRun)
	assert.True(t, res.NextRun.Equal(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)), "got %s", res.NextRun)

	// 08:00 UTC is already 11:00 at +03, so 09:00 there is tomorrow.
	s.SetLocation(time.FixedZone("UTC+3", 3*3600))
	res = s.Run(context.Background(), tk, SourceManual)
	require.NotNil(t, res.NextRun)
	assert.True(t, res.NextRun.Equal(time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)), "got %s", res.NextRun)

	got, _, err := f.store.Get(tk.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRun)
	assert.True(t, got.NextRun.Equal(*res.NextRun))
}

func TestOnceTaskHasNoNextRunAfterExecution(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	in := hourly()
	in.ScheduleType = task.ScheduleOnce
	in.ScheduleConfig = task.ScheduleConfig{"run_date": "2025-06-01T07:00:00Z"}
	in.SendEmail = task.Bool(false)
	tk := f.addTask(t, in)

	var gotExp report.ExportOptions
	var gotMail report.EmailOptions
	runner := runnerFunc(func(_ context.Context, _ report.Target, _ string, exp report.ExportOptions, em report.EmailOptions) (report.Outcome, error) {
		gotExp, gotMail = exp, em
		return report.Outcome{Rows: 4}, nil
	})

	res := f.executor(runner).Execute(context.Background(), tk)
	assert.True(t, res.Success)
	assert.Nil(t, res.NextRun)
	assert.False(t, gotMail.Send)
	assert.Equal(t, filepath.Join(f.outDir, "report_"+tk.ID+".xlsx"), gotExp.ExcelPath)

	got, _, err := f.store.Get(tk.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NextRun)
	assert.True(t, got.IsActive)
}

func TestRunnerPanicBecomesFailedRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tk := f.addTask(t, hourly())
	runner := runnerFunc(func(context.Context, report.Target, string, report.ExportOptions, report.EmailOptions) (report.Outcome, error) {
		panic("driver bug")
	})

	res := f.executor(runner).Execute(context.Background(), tk)
	assert.True(t, errors.Is(res.Err, task.ErrExecution))

	got, _, err := f.store.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ErrorCount)
}

func TestInvalidTaskFailsWithoutCallingRunner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	in := hourly()
	in.EmailRecipients = nil
	tk := f.addTask(t, in)

	called := false
	runner := runnerFunc(func(context.Context, report.Target, string, report.ExportOptions, report.EmailOptions) (report.Outcome, error) {
		called = true
		return report.Outcome{}, nil
	})
	res := f.executor(runner).Execute(context.Background(), tk)
	assert.False(t, called)
	assert.True(t, errors.Is(res.Err, task.ErrExecution))
	assert.True(t, errors.Is(res.Err, task.ErrInvalidTask))
}
