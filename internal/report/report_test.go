package report

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"reportd/internal/task"
	logx "reportd/pkg/logx"
)

func sampleRows() ResultSet {
	return ResultSet{
		Columns: []string{"region", "orders", "revenue", "note"},
		Rows: [][]any{
			{"north", int64(12), 1500.5, nil},
			{"south", int64(7), 820.0, "<b>promo</b>"},
		},
	}
}

func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE sales (region TEXT, orders INTEGER, revenue REAL, note TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO sales VALUES ('north', 12, 1500.5, NULL), ('south', 7, 820.25, 'promo')`)
	require.NoError(t, err)
	return path
}

func TestSQLQuerierSQLite(t *testing.T) {
	t.Parallel()

	path := seedSQLite(t)
	rs, err := SQLQuerier{}.Query(context.Background(), Target{task.DatabaseSQLite, "sqlite:///" + path}, "SELECT region, orders, revenue, note FROM sales ORDER BY region")
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "orders", "revenue", "note"}, rs.Columns)
	require.Equal(t, 2, rs.Len())
	assert.Equal(t, []any{"north", int64(12), 1500.5, nil}, rs.Rows[0])
	assert.Equal(t, []any{"south", int64(7), 820.25, "promo"}, rs.Rows[1])

	rs, err = SQLQuerier{}.Query(context.Background(), Target{task.DatabaseSQLite, path}, "SELECT * FROM sales WHERE orders > 100")
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())

	_, err = SQLQuerier{}.Query(context.Background(), Target{task.DatabaseSQLite, path}, "SELECT * FROM missing")
	assert.Error(t, err)
}

func TestWriteExcel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	require.NoError(t, WriteExcel(path, "Sales", sampleRows()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sales")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"region", "orders", "revenue", "note"}, rows[0])
	assert.Equal(t, []string{"north", "12", "1500.5"}, rows[1])
	assert.Equal(t, "<b>promo</b>", rows[2][3])
}

func TestWriteTablePDF(t *testing.T) {
	t.Parallel()

	rs := sampleRows()
	for i := 0; i < 200; i++ {
		rs.Rows = append(rs.Rows, []any{"west", int64(i), float64(i) * 1.5, strings.Repeat("long text ", 20)})
	}
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, WriteTablePDF(path, rs, 50))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "%PDF-"))
}

func TestRenderHTMLEscapesAndCaps(t *testing.T) {
	t.Parallel()

	body, err := RenderHTML("Weekly sales", sampleRows(), 1)
	require.NoError(t, err)
	assert.Contains(t, body, "<h2>Weekly sales</h2>")
	assert.Contains(t, body, "<th>revenue</th>")
	assert.Contains(t, body, "<td>1500.5</td>")
	assert.NotContains(t, body, "south")
	assert.Contains(t, body, "1 more rows")

	body, err = RenderHTML("", sampleRows(), 0)
	require.NoError(t, err)
	assert.Contains(t, body, "&lt;b&gt;promo&lt;/b&gt;")
	assert.NotContains(t, body, "more rows")
}

func TestBuildMsg(t *testing.T) {
	t.Parallel()

	att := filepath.Join(t.TempDir(), "report_abc.xlsx")
	require.NoError(t, os.WriteFile(att, []byte("xlsx"), 0o644))

	m, err := buildMsg(Message{
		From:        "reports@example.com",
		To:          []string{"ops@example.com"},
		CC:          []string{"boss@example.com"},
		Subject:     "Weekly sales",
		HTML:        "<p>hi</p>",
		Attachments: []string{att},
	})
	require.NoError(t, err)

	var buf strings.Builder
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Subject: Weekly sales")
	assert.Contains(t, out, "ops@example.com")
	assert.Contains(t, out, "boss@example.com")
	assert.Contains(t, out, "report_abc.xlsx")

	_, err = buildMsg(Message{From: "reports@example.com"})
	assert.True(t, errors.Is(err, ErrNoRecipients))
}

type fakeQuerier struct {
	rs  ResultSet
	err error
}

func (f fakeQuerier) Query(context.Context, Target, string) (ResultSet, error) { return f.rs, f.err }

type fakeMailer struct {
	sent []Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func TestServiceZeroRowsExportsNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := &fakeMailer{}
	svc := NewService(fakeQuerier{rs: ResultSet{Columns: []string{"a"}}}, m, Options{}, logx.Nop())
	out, err := svc.ExecuteAndExport(context.Background(), Target{task.DatabaseSQLite, "x.db"}, "select 1",
		ExportOptions{Excel: true, PDF: true, ExcelPath: filepath.Join(dir, "r.xlsx"), PDFPath: filepath.Join(dir, "r.pdf")},
		EmailOptions{Send: true, To: []string{"ops@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Rows)
	assert.Empty(t, out.Files)
	assert.Empty(t, m.sent)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestServiceExportsAndMails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := &fakeMailer{}
	svc := NewService(fakeQuerier{rs: sampleRows()}, m, Options{From: "reports@example.com", MaxBodyRows: 10}, logx.Nop())
	out, err := svc.ExecuteAndExport(context.Background(), Target{task.DatabaseSQLite, "x.db"}, "select 1",
		ExportOptions{Excel: true, PDF: true, ExcelPath: filepath.Join(dir, "r.xlsx"), PDFPath: filepath.Join(dir, "r.pdf")},
		EmailOptions{Send: true, To: []string{"ops@example.com"}, CC: []string{"cc@example.com"}, Subject: "Sales"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Rows)
	require.Len(t, out.Files, 2)
	for _, f := range out.Files {
		assert.FileExists(t, f)
	}

	require.Len(t, m.sent, 1)
	msg := m.sent[0]
	assert.Equal(t, "Sales", msg.Subject)
	assert.Equal(t, "reports@example.com", msg.From)
	assert.Equal(t, out.Files, msg.Attachments)
	assert.Contains(t, msg.HTML, "north")
}

func TestServiceErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	svc := NewService(fakeQuerier{err: boom}, &fakeMailer{}, Options{}, logx.Nop())
	_, err := svc.ExecuteAndExport(context.Background(), Target{}, "select 1", ExportOptions{}, EmailOptions{})
	assert.True(t, errors.Is(err, boom))

	_, err = svc.ExecuteAndExport(context.Background(), Target{}, "select 1", ExportOptions{}, EmailOptions{Send: true})
	assert.True(t, errors.Is(err, ErrNoRecipients))

	m := &fakeMailer{err: boom}
	svc = NewService(fakeQuerier{rs: sampleRows()}, m, Options{}, logx.Nop())
	_, err = svc.ExecuteAndExport(context.Background(), Target{}, "select 1", ExportOptions{}, EmailOptions{Send: true, To: []string{"a@example.com"}})
	assert.True(t, errors.Is(err, boom))
}
