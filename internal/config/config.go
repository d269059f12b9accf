package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseURL      string
	RedisURL         string
	TelegramBotToken string

	CORSAllowedOrigins []string

	OpenAIAPIKey string
	OpenAIModel  string

	AgentTimeoutSecs    int
	AgentMaxRetries     int
	AgentRetryBackoffMs int
	DebateRounds        int
	MaxPositionPct      float64

	EnableMemory         bool
	EnableResearchDebate bool
	EnableRiskDebate     bool

	StuckRunThresholdMins int
	SweepIntervalSecs     int

	SessionTTLHours int

	// OperatorUserID is the account the Telegram bot and MCP surfaces act
	// as. Single-operator deployments leave it at the first registered user.
	OperatorUserID int64

	MCPTransport          string
	MCPHTTPBind           string
	MCPHTTPPort           int
	MCPAuthToken          string
	MCPRateLimitPerMin    int
	MCPRequestTimeoutSecs int
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		MCPAuthToken:     os.Getenv("MCP_AUTH_TOKEN"),
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set, digest notifications disabled")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, analysis runs will fail")
	}

	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.CORSAllowedOrigins = parseCSV(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	cfg.AgentTimeoutSecs = 45
	if v := strings.TrimSpace(os.Getenv("AGENT_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AgentTimeoutSecs = n
		}
	}

	cfg.AgentMaxRetries = 2
	if v := strings.TrimSpace(os.Getenv("AGENT_MAX_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.AgentMaxRetries = n
		}
	}

	cfg.AgentRetryBackoffMs = 500
	if v := strings.TrimSpace(os.Getenv("AGENT_RETRY_BACKOFF_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AgentRetryBackoffMs = n
		}
	}

	cfg.DebateRounds = 2
	if v := strings.TrimSpace(os.Getenv("DEBATE_ROUNDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 10 {
			cfg.DebateRounds = n
		}
	}

	cfg.MaxPositionPct = 10
	if v := strings.TrimSpace(os.Getenv("MAX_POSITION_PCT")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 && n <= 100 {
			cfg.MaxPositionPct = n
		}
	}

	cfg.EnableMemory = boolEnv("ENABLE_MEMORY", false)
	cfg.EnableResearchDebate = boolEnv("ENABLE_RESEARCH_DEBATE", true)
	cfg.EnableRiskDebate = boolEnv("ENABLE_RISK_DEBATE", true)

	cfg.StuckRunThresholdMins = 30
	if v := strings.TrimSpace(os.Getenv("STUCK_RUN_THRESHOLD_MINS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StuckRunThresholdMins = n
		}
	}

	cfg.SweepIntervalSecs = 300
	if v := strings.TrimSpace(os.Getenv("SWEEP_INTERVAL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SweepIntervalSecs = n
		}
	}

	cfg.SessionTTLHours = 24
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL_HOURS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTLHours = n
		}
	}

	cfg.OperatorUserID = 1
	if v := strings.TrimSpace(os.Getenv("OPERATOR_USER_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.OperatorUserID = n
		}
	}

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(os.Getenv("MCP_TRANSPORT")))
	if cfg.MCPTransport == "" {
		cfg.MCPTransport = "stdio"
	}
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Printf("Warning: unsupported MCP_TRANSPORT=%q, defaulting to stdio", cfg.MCPTransport)
		cfg.MCPTransport = "stdio"
	}

	cfg.MCPHTTPBind = strings.TrimSpace(os.Getenv("MCP_HTTP_BIND"))
	if cfg.MCPHTTPBind == "" {
		cfg.MCPHTTPBind = "127.0.0.1"
	}

	cfg.MCPHTTPPort = 8090
	if v := strings.TrimSpace(os.Getenv("MCP_HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MCPHTTPPort = n
		}
	}

	cfg.MCPRateLimitPerMin = 60
	if v := strings.TrimSpace(os.Getenv("MCP_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MCPRateLimitPerMin = n
		}
	}

	cfg.MCPRequestTimeoutSecs = 5
	if v := strings.TrimSpace(os.Getenv("MCP_REQUEST_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MCPRequestTimeoutSecs = n
		}
	}

	return cfg
}

func boolEnv(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true")
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
