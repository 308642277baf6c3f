package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Token lifetimes are given as duration strings
// ("15m", "7d") and parsed once at startup; everything downstream works
// with time.Duration.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	JWTSecret      string        // secret used to sign access tokens
	AccessTTL      time.Duration // access token lifetime (default 15m)
	RefreshTTL     time.Duration // refresh token lifetime (default 7d)
	PasswordPepper string        // server-side secret appended to passwords before hashing
	BcryptCost     int           // bcrypt cost for password hashing

	TOTPIssuer string // label shown in authenticator apps
	TOTPSkew   uint   // accepted steps of clock drift on either side (default 1)

	InvitationCode string // required to register or start an OAuth link

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	FrontendURL        string // base URL the OAuth callback redirects back to

	AMQPURL string // message broker for outbound mail events (optional)
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTL:      lifetime(getenv("ACCESS_TOKEN_TTL", "15m")),
		RefreshTTL:     lifetime(getenv("REFRESH_TOKEN_TTL", "7d")),
		PasswordPepper: must("PASSWORD_PEPPER"),
		BcryptCost:     mustInt("BCRYPT_COST"),
		TOTPIssuer:     getenv("TOTP_ISSUER", "StudyHall"),
		TOTPSkew:       uint(atoi(getenv("TOTP_SKEW", "1"))),
		InvitationCode: must("INVITATION_CODE"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		FrontendURL:        getenv("FRONTEND_URL", "http://localhost:3000"),

		AMQPURL: os.Getenv("RABBITMQ_URL"),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

// lifetime parses a duration string, additionally accepting a "d" suffix
// for whole days ("7d" == 168h) which time.ParseDuration does not support.
// Invalid values are fatal: a misconfigured token lifetime must not be
// silently replaced at runtime.
func lifetime(s string) time.Duration {
	d, err := ParseLifetime(s)
	if err != nil {
		log.Fatalf("invalid duration %q: %v", s, err)
	}
	return d
}

// ParseLifetime converts a lifetime string into a time.Duration. Plain
// time.ParseDuration syntax is accepted, plus an "Nd" form for days.
func ParseLifetime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
