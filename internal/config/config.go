package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/taggate.db"

	// Event transport (scanner side)
	ScanEndpoint   string // SUB socket, scan events in
	ResultEndpoint string // PUB socket, decision signals out
	ScanTopic      string
	ResultTopic    string

	// Enrollment ceiling: max concurrently enrolled credentials.
	MaxEnrolled int

	// Inactivity auto-lock; 0 disables.
	IdleTimeout time.Duration

	// Default page size for the recent-audit endpoint.
	AuditPageSize int

	// Dev-only: tag ids to pre-enroll.
	SeedTagIDs []string
}

func FromEnv() Config {
	addr := getenvDefault("TAGGATE_HTTP_ADDR", ":8080")

	env := strings.ToLower(getenvDefault("TAGGATE_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	dbPath := getenvDefault("TAGGATE_DB_PATH", "./data/taggate.db")

	scanEndpoint := getenvDefault("TAGGATE_SCAN_ENDPOINT", "tcp://127.0.0.1:5556")
	resultEndpoint := getenvDefault("TAGGATE_RESULT_ENDPOINT", "tcp://127.0.0.1:5557")
	scanTopic := getenvDefault("TAGGATE_SCAN_TOPIC", "rfid.scan")
	resultTopic := getenvDefault("TAGGATE_RESULT_TOPIC", "rfid.decision")

	maxEnrolled := getenvInt("TAGGATE_MAX_ENROLLED", 3)
	if maxEnrolled == 0 {
		maxEnrolled = 3
	}

	idleMinutes := getenvInt("TAGGATE_IDLE_TIMEOUT_MINUTES", 10)
	auditPageSize := getenvInt("TAGGATE_AUDIT_PAGE_SIZE", 50)
	if auditPageSize == 0 {
		auditPageSize = 50
	}

	seedTagIDs := splitCSV(os.Getenv("TAGGATE_SEED_TAG_IDS"))

	return Config{
		HTTPAddr: addr,
		Env:      env,
		DBPath:   dbPath,

		ScanEndpoint:   scanEndpoint,
		ResultEndpoint: resultEndpoint,
		ScanTopic:      scanTopic,
		ResultTopic:    resultTopic,

		MaxEnrolled:   maxEnrolled,
		IdleTimeout:   time.Duration(idleMinutes) * time.Minute,
		AuditPageSize: auditPageSize,

		SeedTagIDs: seedTagIDs,
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
