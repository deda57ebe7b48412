// Package report runs a SQL query against a task's database and turns the
// result set into Excel/PDF files and an HTML email.
//
// The executor only sees Runner. Service is the production Runner; its
// Querier and Mailer are swappable for tests.
package report
