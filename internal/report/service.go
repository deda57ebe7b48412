package report

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	logx "reportd/pkg/logx"
)

// Options holds the export and mail defaults shared by every run.
type Options struct {
	SheetName   string
	PDFMaxRows  int
	MaxBodyRows int
	From        string
}

// Service is the production Runner: query, export, then mail.
type Service struct {
	q    Querier
	mail Mailer
	opt  Options
	log  logx.Logger
}

var _ Runner = (*Service)(nil)

func NewService(q Querier, m Mailer, opt Options, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{q: q, mail: m, opt: opt, log: log.With(logx.String("comp", "report"))}
}

func (s *Service) ExecuteAndExport(ctx context.Context, target Target, query string, exp ExportOptions, em EmailOptions) (Outcome, error) {
	if strings.TrimSpace(query) == "" {
		return Outcome{}, fmt.Errorf("empty query")
	}
	if em.Send && len(em.To) == 0 {
		return Outcome{}, ErrNoRecipients
	}

	start := time.Now()
	rs, err := s.q.Query(ctx, target, query)
	if err != nil {
		return Outcome{}, err
	}
	if rs.Len() == 0 {
		s.log.Info("query returned no rows", logx.String("db", string(target.Type)), logx.Duration("took", time.Since(start)))
		return Outcome{}, nil
	}
	s.log.Debug("query done", logx.Int("rows", rs.Len()), logx.Int("cols", len(rs.Columns)), logx.Duration("took", time.Since(start)))

	out := Outcome{Rows: rs.Len()}
	if exp.Excel {
		path, err := absPath(exp.ExcelPath, "report.xlsx")
		if err != nil {
			return out, err
		}
		if err := WriteExcel(path, s.opt.SheetName, rs); err != nil {
			return out, err
		}
		out.Files = append(out.Files, path)
		s.log.Debug("excel written", logx.String("path", path))
	}
	if exp.PDF {
		path, err := absPath(exp.PDFPath, "report.pdf")
		if err != nil {
			return out, err
		}
		if err := WriteTablePDF(path, rs, s.opt.PDFMaxRows); err != nil {
			return out, err
		}
		out.Files = append(out.Files, path)
		s.log.Debug("pdf written", logx.String("path", path))
	}

	if !em.Send {
		return out, nil
	}
	if s.mail == nil {
		return out, fmt.Errorf("mail: no mailer configured")
	}
	subject := strings.TrimSpace(em.Subject)
	if subject == "" {
		subject = "Database Report"
	}
	body, err := RenderHTML(subject, rs, s.opt.MaxBodyRows)
	if err != nil {
		return out, err
	}
	msg := Message{
		From:        s.opt.From,
		To:          em.To,
		CC:          em.CC,
		Subject:     subject,
		HTML:        body,
		Attachments: out.Files,
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		return out, err
	}
	s.log.Info("report mailed",
		logx.Int("to", len(em.To)),
		logx.Int("cc", len(em.CC)),
		logx.Int("attachments", len(out.Files)),
	)
	return out, nil
}

func absPath(p, def string) (string, error) {
	if strings.TrimSpace(p) == "" {
		p = def
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return abs, nil
}
