// Package recurrence computes calendar-aware "next occurrence" instants.
//
// A Rule holds one Matcher per calendar field (year, month, date, day of week,
// hour, minute, second). Rule.Next walks forward from a base instant, testing
// fields from the coarsest to the finest; a mismatch advances the candidate to
// the next boundary of that field and resets every finer field to its minimum.
//
// Month is 0-indexed (0 = January) and day of week counts from Sunday = 0.
//
// Rule implements cron.Schedule from github.com/robfig/cron/v3, so it can be
// used anywhere a cron schedule is accepted.
package recurrence
