package store

import (
	"time"
)

// RolloverUsage resets the daily and monthly counters when the calendar
// window has moved on since they were last touched.
func (u *User) RolloverUsage(now time.Time) {
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")
	if u.Limits.LastDay != day {
		u.Limits.TodayUsed = 0
		u.Limits.LastDay = day
	}
	if u.Limits.LastMonth != month {
		u.Limits.MonthUsed = 0
		u.Limits.LastMonth = month
	}
}

// IsExpired reports whether the user's subscription expiry date has
// passed. The account stays valid through the expiry day itself; a
// missing or unparseable date never expires.
func (u *User) IsExpired(now time.Time) bool {
	if u.ExpiryDate == "" {
		return false
	}
	expiry, err := time.Parse("2006-01-02", u.ExpiryDate)
	if err != nil {
		return false
	}
	return expiry.Before(now.UTC().Truncate(24 * time.Hour))
}

// CanRequestReport reports whether the user may start another report
// right now. Call RolloverUsage first so stale counters don't block.
func (u *User) CanRequestReport(now time.Time) bool {
	if !u.IsActive || u.IsExpired(now) {
		return false
	}
	if u.Limits.Daily > 0 && u.Limits.TodayUsed >= u.Limits.Daily {
		return false
	}
	if u.Limits.Monthly > 0 && u.Limits.MonthUsed >= u.Limits.Monthly {
		return false
	}
	return true
}

// ReserveCredit charges one report against the user's usage counters and
// marks it pending.
func (u *User) ReserveCredit(now time.Time) {
	u.RolloverUsage(now)
	u.Limits.TodayUsed++
	u.Limits.MonthUsed++
	u.Stats.PendingReports++
}

// RefundCredit undoes a reservation. Counters never go below zero.
func (u *User) RefundCredit() {
	if u.Limits.TodayUsed > 0 {
		u.Limits.TodayUsed--
	}
	if u.Limits.MonthUsed > 0 {
		u.Limits.MonthUsed--
	}
	if u.Stats.PendingReports > 0 {
		u.Stats.PendingReports--
	}
}

// CommitCredit settles a pending reservation as a delivered report.
func (u *User) CommitCredit() {
	if u.Stats.PendingReports > 0 {
		u.Stats.PendingReports--
	}
	u.Stats.TotalReports++
	u.Stats.LastReportTS = nowString()
}
