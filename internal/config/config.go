package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr        string
	DBDSN           string
	WebhookSecret   string
	WebSocketOrigin string
	InitialBalance  decimal.Decimal
	Currency        string
	StorageTimeout  time.Duration
	DevMode         bool
}

func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	if c.WebhookSecret == "" {
		missing = append(missing, "WEBHOOK_SECRET")
	}
	devMode := os.Getenv("DEV_MODE")
	if devMode != "" {
		b, err := strconv.ParseBool(devMode)
		if err != nil {
			return c, errors.New("invalid DEV_MODE")
		}
		c.DevMode = b
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" && !c.DevMode {
		missing = append(missing, "DB_DSN")
	}
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		c.WebSocketOrigin = "*"
	}
	initial := os.Getenv("INITIAL_BALANCE")
	if initial == "" {
		initial = "1000000"
	}
	bal, err := decimal.NewFromString(initial)
	if err != nil || bal.LessThanOrEqual(decimal.Zero) {
		return c, errors.New("invalid INITIAL_BALANCE")
	}
	c.InitialBalance = bal
	c.Currency = strings.ToUpper(strings.TrimSpace(os.Getenv("CURRENCY")))
	if c.Currency == "" {
		c.Currency = "INR"
	}
	timeout := os.Getenv("STORAGE_TIMEOUT")
	if timeout == "" {
		c.StorageTimeout = 5 * time.Second
	} else {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return c, err
		}
		c.StorageTimeout = d
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}
