package planner

import "time"

// Scope describes the decomposition shape derived from a goal's deadline:
// how many monthly buckets to plan, how many weekly and daily buckets for
// the nearest stretch, and how many yearly milestone tasks to prepend for
// multi-year horizons.
type Scope struct {
	Months           int
	WeeksPerMonth    int
	DaysPerWeek      int
	YearlyMilestones int
}

// DeriveScope maps today and a deadline into a Scope.
//
// Horizons shorter than 30 days skip the monthly tier entirely: the whole
// remaining span becomes one flat pass of weekly/daily buckets. Longer
// horizons always plan 4 weeks per month and 7 days per week, adding yearly
// milestones once the horizon exceeds a year.
func DeriveScope(today, deadline time.Time) Scope {
	totalDays := daysBetween(today, deadline) + 1
	if totalDays < 1 {
		totalDays = 1
	}

	if totalDays < 30 {
		weeks := (totalDays + 6) / 7
		if weeks < 1 {
			weeks = 1
		}
		return Scope{Months: 0, WeeksPerMonth: weeks, DaysPerWeek: totalDays}
	}

	months := MonthsBetweenCeiling(today, deadline)
	if months < 1 {
		months = 1
	}
	yearly := 0
	if months > 12 {
		yearly = (months + 11) / 12
	}
	return Scope{Months: months, WeeksPerMonth: 4, DaysPerWeek: 7, YearlyMilestones: yearly}
}

// daysBetween counts calendar days from a to b, ignoring clock time and
// location so a deadline stored in UTC compares cleanly against local today.
func daysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}
