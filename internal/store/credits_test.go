package store

import (
	"context"
	"testing"
	"time"
)

func TestReserveRefundCommitCredit(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(state *State) error {
		state.EnsureUser("123", "").ReserveCredit(time.Now())
		return nil
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	state, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	u := state.Users["123"]
	if u == nil {
		t.Fatal("reserve did not create the user")
	}
	if u.Limits.TodayUsed != 1 || u.Limits.MonthUsed != 1 || u.Stats.PendingReports != 1 {
		t.Errorf("after reserve: today=%d month=%d pending=%d",
			u.Limits.TodayUsed, u.Limits.MonthUsed, u.Stats.PendingReports)
	}

	err = s.Update(ctx, func(state *State) error {
		state.EnsureUser("123", "").CommitCredit()
		return nil
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	state, err = s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	u = state.Users["123"]
	if u.Stats.PendingReports != 0 || u.Stats.TotalReports != 1 {
		t.Errorf("after commit: pending=%d total=%d", u.Stats.PendingReports, u.Stats.TotalReports)
	}
	if u.Stats.LastReportTS == "" {
		t.Error("commit did not record last report timestamp")
	}
}

func TestRefundFloorsAtZero(t *testing.T) {
	t.Parallel()

	// Refund with no prior reservation must not underflow.
	u := newUser("999", "")
	u.RefundCredit()
	if u.Limits.TodayUsed != 0 || u.Limits.MonthUsed != 0 || u.Stats.PendingReports != 0 {
		t.Errorf("refund went negative: today=%d month=%d pending=%d",
			u.Limits.TodayUsed, u.Limits.MonthUsed, u.Stats.PendingReports)
	}
}

func TestRolloverUsage(t *testing.T) {
	t.Parallel()

	u := newUser("123", "")
	day1 := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	u.RolloverUsage(day1)
	u.Limits.TodayUsed = 5
	u.Limits.MonthUsed = 30

	// Same day: counters stay.
	u.RolloverUsage(day1.Add(2 * time.Hour))
	if u.Limits.TodayUsed != 5 || u.Limits.MonthUsed != 30 {
		t.Errorf("same-day rollover reset counters: today=%d month=%d", u.Limits.TodayUsed, u.Limits.MonthUsed)
	}

	// Next day, same month: daily resets, monthly stays.
	u.RolloverUsage(day1.AddDate(0, 0, 1))
	if u.Limits.TodayUsed != 0 {
		t.Errorf("daily counter not reset: %d", u.Limits.TodayUsed)
	}
	if u.Limits.MonthUsed != 30 {
		t.Errorf("monthly counter reset early: %d", u.Limits.MonthUsed)
	}

	// Next month: monthly resets too.
	u.RolloverUsage(day1.AddDate(0, 1, 0))
	if u.Limits.MonthUsed != 0 {
		t.Errorf("monthly counter not reset: %d", u.Limits.MonthUsed)
	}
}

func TestCanRequestReport(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		mod  func(*User)
		want bool
	}{
		{"inactive user", func(u *User) {}, false},
		{"active user", func(u *User) { u.IsActive = true }, true},
		{"daily limit hit", func(u *User) {
			u.IsActive = true
			u.Limits.TodayUsed = u.Limits.Daily
		}, false},
		{"monthly limit hit", func(u *User) {
			u.IsActive = true
			u.Limits.MonthUsed = u.Limits.Monthly
		}, false},
		{"unlimited account", func(u *User) {
			u.IsActive = true
			u.Limits.Daily = 0
			u.Limits.Monthly = 0
			u.Limits.TodayUsed = 10000
		}, true},
		{"expired subscription", func(u *User) {
			u.IsActive = true
			u.ExpiryDate = "2026-08-01"
		}, false},
		{"expires today", func(u *User) {
			u.IsActive = true
			u.ExpiryDate = "2026-08-23"
		}, true},
		{"future expiry", func(u *User) {
			u.IsActive = true
			u.ExpiryDate = "2026-12-31"
		}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := newUser("1", "")
			tt.mod(u)
			if got := u.CanRequestReport(now); got != tt.want {
				t.Errorf("CanRequestReport() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry string
		want   bool
	}{
		{"no expiry", "", false},
		{"past date", "2026-08-22", true},
		{"expiry day itself", "2026-08-23", false},
		{"future date", "2026-08-24", false},
		{"unparseable date", "next tuesday", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := newUser("1", "")
			u.ExpiryDate = tt.expiry
			if got := u.IsExpired(now); got != tt.want {
				t.Errorf("IsExpired(%q) = %v, want %v", tt.expiry, got, tt.want)
			}
		})
	}
}

func TestAddActivationRequestDeduplicates(t *testing.T) {
	t.Parallel()

	state := NewState()
	state.AddActivationRequest("123", "alice", "")
	state.AddActivationRequest("123", "alice", "")
	state.AddActivationRequest("456", "", "15551234567")

	if len(state.ActivationRequests) != 2 {
		t.Fatalf("activation requests = %d, want 2", len(state.ActivationRequests))
	}
	if state.ActivationRequests[0].TGID != "123" || state.ActivationRequests[0].Username != "alice" {
		t.Errorf("first request = %+v", state.ActivationRequests[0])
	}
	if state.ActivationRequests[1].Phone != "15551234567" {
		t.Errorf("second request = %+v", state.ActivationRequests[1])
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		user User
		want string
	}{
		{"custom name wins", User{TGID: "1", TGUsername: "alice", CustomName: "Alice A"}, "Alice A"},
		{"username fallback", User{TGID: "1", TGUsername: "alice"}, "@alice"},
		{"id fallback", User{TGID: "1"}, "TG:1"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.user.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemainingMonthlyReports(t *testing.T) {
	t.Parallel()

	u := newUser("1", "")
	u.Limits.Monthly = 500
	u.Limits.MonthUsed = 30
	if got := u.RemainingMonthlyReports(); got != 470 {
		t.Errorf("remaining = %d, want 470", got)
	}

	u.Limits.MonthUsed = 600
	if got := u.RemainingMonthlyReports(); got != 0 {
		t.Errorf("overused remaining = %d, want 0", got)
	}

	u.Limits.Monthly = 0
	if got := u.RemainingMonthlyReports(); got != -1 {
		t.Errorf("unlimited remaining = %d, want -1", got)
	}
}

func TestAuditCap(t *testing.T) {
	t.Parallel()

	u := newUser("1", "")
	for i := 0; i < 60; i++ {
		u.AddAudit("admin", "credit", "adjustment")
	}
	if len(u.Audit) != maxAuditEntries {
		t.Errorf("audit len = %d, want %d", len(u.Audit), maxAuditEntries)
	}
}

func TestEnsureUserBackfillsDefaults(t *testing.T) {
	t.Parallel()

	state := NewState()
	state.Users["1"] = &User{TGID: "1"}

	u := state.EnsureUser("1", "alice")
	if u.TGUsername != "alice" {
		t.Errorf("username not refreshed: %q", u.TGUsername)
	}
	if u.Plan != defaultPlan {
		t.Errorf("plan not backfilled: %q", u.Plan)
	}
	if !u.Services["carfax"] {
		t.Error("carfax service not backfilled")
	}
	if u.Limits.Daily != defaultDailyLimit || u.Limits.Monthly != defaultMonthlyLimit {
		t.Errorf("limits not backfilled: %+v", u.Limits)
	}
}
