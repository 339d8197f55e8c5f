package config

import "time"

// Default values for optional configuration parameters.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false

	DefaultStorePath            = "db.json"
	DefaultStoreBackupDir       = "backups"
	DefaultStoreBackupRetention = 1

	DefaultWhatsAppHost           = "0.0.0.0"
	DefaultWhatsAppPort           = 8090
	DefaultWhatsAppDedupTTL       = 10 * time.Minute
	DefaultWhatsAppDedupMax       = 5000
	DefaultWhatsAppHandlerTimeout = 3 * time.Minute

	DefaultUltraMsgBaseURL    = "https://api.ultramsg.com"
	DefaultUltraMsgTimeout    = 30 * time.Second
	DefaultUltraMsgRatePerSec = 1.0
	DefaultUltraMsgBurst      = 3

	DefaultReportTimeout        = 2 * time.Minute
	DefaultReportMaxConcurrency = 3
	DefaultReportQueueTimeout   = 20 * time.Second
	DefaultReportLanguage       = "en"
)

// DefaultMessages are the fallback user-facing reply texts.
var DefaultMessages = MessagesConfig{
	Welcome:        "👋 Welcome! Send a 17-character VIN to request a vehicle history report. Use /balance to check your credits.",
	NotAuthorized:  "You are not authorized to use this command.",
	NotActivated:   "Your account is not activated yet. An administrator will review your request shortly.",
	Expired:        "Your subscription is suspended. It expired on {expiry}. Please renew to continue.",
	NoCredit:       "You have no report credits left. Please top up to continue.",
	LimitReached:   "You have reached your report limit for this period.",
	InvalidVIN:     "That doesn't look like a valid VIN. A VIN has 17 characters and no I, O or Q.",
	Fetching:       "🔎 Fetching your report, this usually takes under a minute...",
	FetchFailed:    "Sorry, the report could not be retrieved. Your credit was not charged.",
	ServiceBusy:    "The service is busy right now. Please try again in a moment.",
	ReportCaption:  "Vehicle history report",
	AlreadyHandled: "This request was already processed.",
}
