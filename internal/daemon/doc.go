// Package daemon owns the process-level concerns of reportd: the single
// instance lock file, signal handling and the systemd notify protocol.
package daemon
