package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	Env         string
	ListenAddr  string
	DatabaseURL string

	// Pipeline tuning.
	ScanWorkers        int           // background workers claiming queued document scans
	QueuePollInterval  time.Duration // how often the queue dispatcher looks for work
	PageTimeout        time.Duration // per-page capability budget
	PageSafetyCeiling  time.Duration // hard ceiling after which a page counts as failed
	CancelPollInterval time.Duration // cooperative cancellation poll inside a page

	// Admission control.
	FreeCredits        int // default allotment for owners without a ledger row
	LowCreditThreshold int // notify at or below this remaining balance

	// Backlog reconciliation.
	ReopenGraceDays int // resolved items older than this are reopened on re-observation

	// Rule profiles.
	RuleProfileDir string // optional directory of YAML profiles; built-ins otherwise

	// Object store for screenshots and queued document payloads. Optional:
	// when Endpoint is empty those features degrade gracefully.
	ObjectStoreEndpoint  string
	ObjectStoreBucket    string
	ObjectStoreAccessKey string
	ObjectStoreSecretKey string
	ObjectStoreUseSSL    bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		_, err := fmt.Sscanf(v, "%d", &out)
		if err == nil {
			return out
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes":
		return true
	case "0", "false", "FALSE", "no":
		return false
	}
	return def
}

func Load() (Config, error) {
	cfg := Config{
		Env:         getenv("APP_ENV", "development"),
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		ScanWorkers:        getenvInt("SCAN_WORKERS", 2),
		QueuePollInterval:  getenvDuration("QUEUE_POLL_INTERVAL", 500*time.Millisecond),
		PageTimeout:        getenvDuration("PAGE_TIMEOUT", 90*time.Second),
		PageSafetyCeiling:  getenvDuration("PAGE_SAFETY_CEILING", 5*time.Minute),
		CancelPollInterval: getenvDuration("CANCEL_POLL_INTERVAL", 500*time.Millisecond),

		FreeCredits:        getenvInt("FREE_CREDITS", 3),
		LowCreditThreshold: getenvInt("LOW_CREDIT_THRESHOLD", 1),

		ReopenGraceDays: getenvInt("REOPEN_GRACE_DAYS", 7),

		RuleProfileDir: os.Getenv("RULE_PROFILE_DIR"),

		ObjectStoreEndpoint:  os.Getenv("OBJECT_STORE_ENDPOINT"),
		ObjectStoreBucket:    getenv("OBJECT_STORE_BUCKET", "scan-artifacts"),
		ObjectStoreAccessKey: os.Getenv("OBJECT_STORE_ACCESS_KEY"),
		ObjectStoreSecretKey: os.Getenv("OBJECT_STORE_SECRET_KEY"),
		ObjectStoreUseSSL:    getenvBool("OBJECT_STORE_USE_SSL", false),
	}
	if cfg.DatabaseURL == "" {
		// Not fatal for early local runs; warn via error value so callers can decide.
		return cfg, fmt.Errorf("DATABASE_URL not set")
	}
	return cfg, nil
}
