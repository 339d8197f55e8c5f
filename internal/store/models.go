package store

import (
	"fmt"
	"time"

	"github.com/moalhelu/dejavplus-bots/internal/ledger"
)

// State is the whole persisted document. Everything both bot processes
// share lives here: user records, pending activations, admin-tunable
// settings, and the request charge ledger.
type State struct {
	Users              map[string]*User         `json:"users"`
	ActivationRequests []ActivationRequest      `json:"activation_requests"`
	Settings           map[string]string        `json:"settings"`
	SuperAdmins        []string                 `json:"super_admins"`
	Requests           map[string]*ledger.Entry `json:"requests,omitempty"`
}

// NewState returns an empty state with all containers allocated.
func NewState() *State {
	return &State{
		Users:              map[string]*User{},
		ActivationRequests: []ActivationRequest{},
		Settings:           map[string]string{},
		SuperAdmins:        []string{},
		Requests:           map[string]*ledger.Entry{},
	}
}

// User is one account, keyed in State.Users by its platform id.
type User struct {
	TGID           string          `json:"tg_id"`
	TGUsername     string          `json:"tg_username"`
	CustomName     string          `json:"custom_name"`
	Phone          string          `json:"phone,omitempty"`
	Language       string          `json:"language,omitempty"`
	IsActive       bool            `json:"is_active"`
	ActivationDate string          `json:"activation_date,omitempty"`
	ExpiryDate     string          `json:"expiry_date,omitempty"`
	Balance        int             `json:"balance"`
	Plan           string          `json:"plan"`
	Services       map[string]bool `json:"services"`
	Limits         Limits          `json:"limits"`
	Stats          Stats           `json:"stats"`
	Notes          string          `json:"notes"`
	Audit          []AuditEntry    `json:"audit"`
}

// Limits tracks usage against the daily and monthly report quotas.
// LastDay and LastMonth record which window the counters belong to.
type Limits struct {
	Daily     int    `json:"daily"`
	Monthly   int    `json:"monthly"`
	TodayUsed int    `json:"today_used"`
	MonthUsed int    `json:"month_used"`
	LastDay   string `json:"last_day,omitempty"`
	LastMonth string `json:"last_month,omitempty"`
}

// Stats accumulates per-user report counters.
type Stats struct {
	TotalReports   int    `json:"total_reports"`
	PendingReports int    `json:"pending_reports"`
	LastReportTS   string `json:"last_report_ts,omitempty"`
}

// AuditEntry records one administrative action on a user. The audit trail
// is capped at maxAuditEntries.
type AuditEntry struct {
	TS     string `json:"ts"`
	Admin  string `json:"admin"`
	Op     string `json:"op"`
	Detail string `json:"detail,omitempty"`
}

// ActivationRequest is a pending request for account activation.
type ActivationRequest struct {
	TGID     string `json:"tg_id"`
	TS       string `json:"ts"`
	Phone    string `json:"phone,omitempty"`
	Username string `json:"username,omitempty"`
}

const maxAuditEntries = 50

// Default quotas for newly created users.
const (
	defaultDailyLimit   = 200
	defaultMonthlyLimit = 500
	defaultPlan         = "basic"
)

// newUser builds a user record with default plan, services, and limits.
func newUser(id, username string) *User {
	return &User{
		TGID:       id,
		TGUsername: username,
		Plan:       defaultPlan,
		Services: map[string]bool{
			"carfax":          true,
			"photos_badvin":   true,
			"photos_auction":  true,
			"photos_accident": true,
		},
		Limits: Limits{Daily: defaultDailyLimit, Monthly: defaultMonthlyLimit},
		Audit:  []AuditEntry{},
	}
}

// EnsureUser returns the user for id, creating it when missing. An
// existing record gets its username refreshed and missing defaults filled
// in, so documents written by older builds stay usable.
func (s *State) EnsureUser(id, username string) *User {
	if s.Users == nil {
		s.Users = map[string]*User{}
	}
	u, ok := s.Users[id]
	if !ok {
		u = newUser(id, username)
		s.Users[id] = u
		return u
	}
	if username != "" {
		u.TGUsername = username
	}
	if u.Plan == "" {
		u.Plan = defaultPlan
	}
	if u.Services == nil {
		u.Services = map[string]bool{}
	}
	for _, svc := range []string{"carfax", "photos_badvin", "photos_auction", "photos_accident"} {
		if _, ok := u.Services[svc]; !ok {
			u.Services[svc] = true
		}
	}
	if u.Limits.Daily == 0 {
		u.Limits.Daily = defaultDailyLimit
	}
	if u.Limits.Monthly == 0 {
		u.Limits.Monthly = defaultMonthlyLimit
	}
	return u
}

// AddActivationRequest queues an activation request for id unless one is
// already pending, so admins see who is waiting.
func (s *State) AddActivationRequest(id, username, phone string) {
	for _, req := range s.ActivationRequests {
		if req.TGID == id {
			return
		}
	}
	s.ActivationRequests = append(s.ActivationRequests, ActivationRequest{
		TGID:     id,
		TS:       nowString(),
		Phone:    phone,
		Username: username,
	})
}

// Ledger returns the request ledger map, allocating it when missing.
func (s *State) Ledger() map[string]*ledger.Entry {
	if s.Requests == nil {
		s.Requests = map[string]*ledger.Entry{}
	}
	return s.Requests
}

// DisplayName returns the friendliest available name for a user.
func (u *User) DisplayName() string {
	if u.CustomName != "" {
		return u.CustomName
	}
	if u.TGUsername != "" {
		return "@" + u.TGUsername
	}
	return "TG:" + u.TGID
}

// RemainingMonthlyReports returns how many reports the user may still
// request this month, or -1 when the account has no monthly limit.
func (u *User) RemainingMonthlyReports() int {
	if u.Limits.Monthly <= 0 {
		return -1
	}
	left := u.Limits.Monthly - u.Limits.MonthUsed
	if left < 0 {
		return 0
	}
	return left
}

// DaysLeft returns the days until the user's expiry date, 0 when already
// expired, or -1 when no expiry is set or it cannot be parsed.
func (u *User) DaysLeft(now time.Time) int {
	if u.ExpiryDate == "" {
		return -1
	}
	expiry, err := time.Parse("2006-01-02", u.ExpiryDate)
	if err != nil {
		return -1
	}
	days := int(expiry.Sub(now.Truncate(24 * time.Hour)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// AddAudit appends an administrative action to the user's audit trail,
// dropping the oldest entries beyond the cap.
func (u *User) AddAudit(admin, op, detail string) {
	u.Audit = append(u.Audit, AuditEntry{
		TS:     nowString(),
		Admin:  admin,
		Op:     op,
		Detail: detail,
	})
	if len(u.Audit) > maxAuditEntries {
		u.Audit = u.Audit[len(u.Audit)-maxAuditEntries:]
	}
}

// nowString formats the current UTC time the way the document stores
// human-readable timestamps.
func nowString() string {
	return fmt.Sprintf("%s UTC", time.Now().UTC().Format("2006-01-02 15:04:05"))
}
