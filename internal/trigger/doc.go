// Package trigger computes run times for report tasks.
//
// Three schedule kinds are supported: cron (calendar fields), interval (fixed
// period) and once (a single date). Every Trigger also satisfies the
// robfig/cron Schedule interface, so the scheduler can hand triggers straight
// to the cron timer loop while all calendar arithmetic stays here.
package trigger
