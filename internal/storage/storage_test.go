package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "reportd/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
}

func TestRunHistoryBackends(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "history."+driver)
			st, err := Open(Config{Driver: driver, Path: path, BusyTimeout: time.Second}, logx.Nop())
			require.NoError(t, err)
			defer st.Close()

			ctx := context.Background()
			base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				e := RunEntry{
					TaskID:     "a",
					TaskName:   "alpha",
					Trigger:    "schedule",
					StartedAt:  base.Add(time.Duration(i) * time.Minute),
					FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
					Status:     StatusSuccess,
					Rows:       i,
					Files:      []string{fmt.Sprintf("report_a_%d.xlsx", i)},
				}
				require.NoError(t, st.AppendRun(ctx, e))
			}
			require.NoError(t, st.AppendRun(ctx, RunEntry{
				TaskID: "b", TaskName: "beta", Trigger: "manual",
				StartedAt: base, FinishedAt: base, Status: StatusFailed, Error: "boom",
			}))

			runs, err := st.RecentRuns(ctx, "a", 3)
			require.NoError(t, err)
			require.Len(t, runs, 3)
			assert.Equal(t, 4, runs[0].Rows, "newest first")
			assert.Equal(t, 2, runs[2].Rows)
			assert.Equal(t, []string{"report_a_4.xlsx"}, runs[0].Files)
			assert.Equal(t, time.Second, runs[0].Took())
			assert.True(t, base.Add(4*time.Minute).Equal(runs[0].StartedAt))

			runs, err = st.RecentRuns(ctx, "b", 10)
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, "boom", runs[0].Error)
			assert.Equal(t, StatusFailed, runs[0].Status)
			assert.Empty(t, runs[0].Files)

			all, err := st.RecentRuns(ctx, "", 0)
			require.NoError(t, err)
			assert.Len(t, all, 6)
			assert.Equal(t, "b", all[0].TaskID)
		})
	}
}
