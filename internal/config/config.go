package config

import (
	"os"
	"strings"
)

type Mode string

const (
	ModeOffline Mode = "offline" // single school server, sqlite
	ModeOnline  Mode = "online"  // hosted, postgres
)

type Config struct {
	Mode     Mode
	HTTPAddr string
	SiteID   string

	DBDriver string
	DBDSN    string

	BlobBasePath string // worksheet submission files

	EnableLocalAuth bool

	AdminUser     string
	AdminPassHash string // bcrypt

	// Grading policy knobs
	PartialSelectCredit bool // proportional credit on multiple_select

	CORSOriginsOnline  []string
	CORSOriginsOffline []string
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		Mode:                mode,
		HTTPAddr:            addr,
		SiteID:              envOr("SITE_ID", "local"),
		DBDriver:            envOr("DB_DRIVER", "sqlite"),
		DBDSN:               envOr("DB_DSN", ""),
		BlobBasePath:        envOr("BLOB_BASE_PATH", "./data"),
		EnableLocalAuth:     envBool("ENABLE_LOCAL_AUTH", true),
		AdminUser:           envOr("ADMIN_USER", "admin"),
		AdminPassHash:       envOr("ADMIN_PASS_HASH", ""),
		PartialSelectCredit: envBool("GRADING_PARTIAL_SELECT", false),
		CORSOriginsOnline:   csvOr("CORS_ORIGINS_ONLINE", "https://app.vidpod.org"),
		CORSOriginsOffline:  csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010"),
	}
}
func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
