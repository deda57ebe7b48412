// Package task defines the persisted report task record and the sentinel
// errors shared by the store, trigger, executor, scheduler and daemon packages.
package task
