package report

import (
	"bytes"
	"fmt"
	"html/template"
)

var bodyTmpl = template.Must(template.New("body").Parse(`<html>
<head>
<style>
table { border-collapse: collapse; width: 100%; margin: 20px 0; }
th, td { border: 1px solid #ddd; padding: 12px; text-align: left; }
th { background-color: #4472C4; color: white; font-weight: bold; }
tr:nth-child(even) { background-color: #f2f2f2; }
</style>
</head>
<body>
<h2>{{.Title}}</h2>
<table id="data-table">
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
{{if .Omitted}}<p><em>{{.Omitted}} more rows are in the attached files.</em></p>{{end}}
</body>
</html>
`))

// RenderHTML renders the email body for rs. maxRows caps the table (0 = all).
func RenderHTML(title string, rs ResultSet, maxRows int) (string, error) {
	if title == "" {
		title = "Database Report"
	}
	rows := rs.Rows
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			cells[i][j] = formatCell(v)
		}
	}
	data := struct {
		Title   string
		Columns []string
		Rows    [][]string
		Omitted int
	}{title, rs.Columns, cells, len(rs.Rows) - len(rows)}

	var buf bytes.Buffer
	if err := bodyTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render body: %w", err)
	}
	return buf.String(), nil
}
