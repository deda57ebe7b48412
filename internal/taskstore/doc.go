// Package taskstore persists report tasks in a single JSON array file.
//
// Every read decodes the file so that edits made by another process (the CLI
// while the daemon runs) are always visible. Mutations rewrite the whole file
// through a temp file + rename, serialized by a mutex.
package taskstore
