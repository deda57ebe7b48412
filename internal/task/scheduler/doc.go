// Package scheduler keeps the live set of scheduled report jobs.
//
// Each active task in the store becomes one cron entry keyed by task id. The
// fire times come from internal/trigger; robfig/cron only drives the timer
// loop. When an entry fires the scheduler re-reads the task and enqueues its
// run on the task engine, which guarantees a task never overlaps itself.
package scheduler
