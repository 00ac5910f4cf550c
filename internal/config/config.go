package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Config is the immutable application configuration. Every classifier and
// engine threshold lives here and is handed to constructors once at startup;
// nothing reads the environment after Load returns.
type Config struct {
	TelegramBotToken string
	TelegramChatID   int64
	DatabaseURL      string
	RedisURL         string
	FredAPIKey       string
	APIKey           string

	CyclePollSecs int
	LookbackDays  int

	// Instrument universe. Yield series are FRED series IDs; the rest are
	// ticker symbols fetched from the chart provider.
	ShortYieldSeries string
	LongYieldSeries  string
	VolatilityProxy  string
	CreditRisky      string
	CreditSafe       string
	VolatilityIndex  string
	Symbols          []string

	// Classifier thresholds.
	ShortWindow    int
	LongWindow     int
	VolWindow      int
	MaxForwardFill int
	ZScoreStrong   float64
	ZScoreModerate float64
	ZScoreMild     float64 // optional +1 scoring band; zero leaves it off

	// Signal engine policy. The correlation sign convention (negative
	// correlation => BUY on stress) is deliberately configurable; flipping
	// the thresholds flips the policy.
	CorrWindow     int
	BuyCorrNow     float64
	BuyCorrSoon    float64
	SellCorr       float64
	VIXLowMax      float64
	VIXHighMin     float64
	PosBaseLow     float64
	PosBaseMedium  float64
	PosBaseHigh    float64
	KellyFraction  float64
	MaxPositionPct float64
	StopVolMult    float64
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		FredAPIKey:       os.Getenv("FRED_API_KEY"),
		APIKey:           os.Getenv("API_KEY"),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set, alerts disabled")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.FredAPIKey == "" {
		log.Println("Warning: FRED_API_KEY not set, yield fetches will fail")
	}

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = n
		} else {
			log.Printf("Warning: invalid TELEGRAM_CHAT_ID=%q, push alerts disabled", v)
		}
	}

	cfg.CyclePollSecs = envInt("CYCLE_POLL_SECS", 300)
	cfg.LookbackDays = envInt("LOOKBACK_DAYS", 365)

	cfg.ShortYieldSeries = envString("SHORT_YIELD_SERIES", "DGS2")
	cfg.LongYieldSeries = envString("LONG_YIELD_SERIES", "DGS10")
	cfg.VolatilityProxy = envString("VOLATILITY_PROXY", "TLT")
	cfg.CreditRisky = envString("CREDIT_RISKY", "HYG")
	cfg.CreditSafe = envString("CREDIT_SAFE", "LQD")
	cfg.VolatilityIndex = envString("VOLATILITY_INDEX", "^VIX")

	cfg.Symbols = []string{"NVDA", "AMD", "TSM", "INTC", "QCOM"}
	if v := strings.TrimSpace(os.Getenv("SYMBOLS")); v != "" {
		var symbols []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) > 0 {
			cfg.Symbols = symbols
		}
	}

	cfg.ShortWindow = envInt("SHORT_WINDOW", 20)
	cfg.LongWindow = envInt("LONG_WINDOW", 60)
	cfg.VolWindow = envInt("VOL_WINDOW", 20)
	cfg.MaxForwardFill = envInt("MAX_FORWARD_FILL", 3)
	cfg.ZScoreStrong = envFloat("ZSCORE_STRONG", 2.0)
	cfg.ZScoreModerate = envFloat("ZSCORE_MODERATE", 1.5)
	cfg.ZScoreMild = envFloat("ZSCORE_MILD", 0)

	cfg.CorrWindow = envInt("CORR_WINDOW", 60)
	cfg.BuyCorrNow = envFloat("BUY_CORR_NOW", -0.3)
	cfg.BuyCorrSoon = envFloat("BUY_CORR_SOON", -0.2)
	cfg.SellCorr = envFloat("SELL_CORR", 0.3)
	cfg.VIXLowMax = envFloat("VIX_LOW_MAX", 20)
	cfg.VIXHighMin = envFloat("VIX_HIGH_MIN", 30)
	cfg.PosBaseLow = envFloat("POS_BASE_LOW", 0.02)
	cfg.PosBaseMedium = envFloat("POS_BASE_MEDIUM", 0.015)
	cfg.PosBaseHigh = envFloat("POS_BASE_HIGH", 0.005)
	cfg.KellyFraction = envFloat("KELLY_FRACTION", 0.25)
	cfg.MaxPositionPct = envFloat("MAX_POSITION_PCT", 0.03)
	cfg.StopVolMult = envFloat("STOP_VOL_MULT", 2.0)

	return cfg
}

// Validate rejects configurations that would silently corrupt scoring.
// These are programmer/operator errors and are fatal, unlike missing data.
func (c *Config) Validate() error {
	var problems []string
	if c.ShortWindow < 2 {
		problems = append(problems, fmt.Sprintf("SHORT_WINDOW must be >= 2, got %d", c.ShortWindow))
	}
	if c.LongWindow < 2 {
		problems = append(problems, fmt.Sprintf("LONG_WINDOW must be >= 2, got %d", c.LongWindow))
	}
	if c.LongWindow <= c.ShortWindow {
		problems = append(problems, fmt.Sprintf("LONG_WINDOW (%d) must exceed SHORT_WINDOW (%d)", c.LongWindow, c.ShortWindow))
	}
	if c.VolWindow < 2 {
		problems = append(problems, fmt.Sprintf("VOL_WINDOW must be >= 2, got %d", c.VolWindow))
	}
	if c.CorrWindow < 2 {
		problems = append(problems, fmt.Sprintf("CORR_WINDOW must be >= 2, got %d", c.CorrWindow))
	}
	if c.MaxForwardFill < 0 {
		problems = append(problems, fmt.Sprintf("MAX_FORWARD_FILL must be >= 0, got %d", c.MaxForwardFill))
	}
	if c.ZScoreStrong <= c.ZScoreModerate {
		problems = append(problems, "ZSCORE_STRONG must exceed ZSCORE_MODERATE")
	}
	if c.ZScoreMild < 0 || (c.ZScoreMild != 0 && c.ZScoreMild >= c.ZScoreModerate) {
		problems = append(problems, fmt.Sprintf("ZSCORE_MILD must be 0 or below ZSCORE_MODERATE, got %g", c.ZScoreMild))
	}
	if c.KellyFraction <= 0 || c.KellyFraction > 1 {
		problems = append(problems, fmt.Sprintf("KELLY_FRACTION must be in (0,1], got %g", c.KellyFraction))
	}
	if c.MaxPositionPct <= 0 {
		problems = append(problems, fmt.Sprintf("MAX_POSITION_PCT must be > 0, got %g", c.MaxPositionPct))
	}
	for name, v := range map[string]float64{
		"POS_BASE_LOW":    c.PosBaseLow,
		"POS_BASE_MEDIUM": c.PosBaseMedium,
		"POS_BASE_HIGH":   c.PosBaseHigh,
	} {
		if v < 0 {
			problems = append(problems, fmt.Sprintf("%s must be >= 0, got %g", name, v))
		}
	}
	if c.VIXHighMin <= c.VIXLowMax {
		problems = append(problems, "VIX_HIGH_MIN must exceed VIX_LOW_MAX")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
