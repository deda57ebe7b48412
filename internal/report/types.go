package report

import (
	"context"
	"errors"

	"reportd/internal/task"
)

var (
	ErrInvalidURL    = errors.New("report: invalid database url")
	ErrNoRecipients  = errors.New("report: email enabled but no recipients")
	ErrUnsupportedDB = errors.New("report: unsupported database type")
)

// Target is the database a query runs against.
type Target struct {
	Type task.DatabaseType
	URL  string
}

// ResultSet is a fully materialized query result. Values are normalized to
// nil, bool, int64, float64, string or time.Time.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

func (rs ResultSet) Len() int { return len(rs.Rows) }

type ExportOptions struct {
	Excel     bool
	PDF       bool
	ExcelPath string
	PDFPath   string
}

type EmailOptions struct {
	Send    bool
	To      []string
	CC      []string
	Subject string
}

// Outcome of one run. Rows == 0 means the query returned nothing and no
// files were written or mailed.
type Outcome struct {
	Rows  int
	Files []string
}

// Runner is the collaborator the executor drives.
type Runner interface {
	ExecuteAndExport(ctx context.Context, target Target, query string, exp ExportOptions, mail EmailOptions) (Outcome, error)
}

// Querier runs a query and materializes its rows.
type Querier interface {
	Query(ctx context.Context, target Target, query string) (ResultSet, error)
}

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Message is an outgoing report email.
type Message struct {
	From        string
	To          []string
	CC          []string
	Subject     string
	HTML        string
	Attachments []string
}
