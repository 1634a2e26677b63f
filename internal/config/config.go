// Package config loads the bot's YAML configuration and its API credentials
// from the environment.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExchangeConfig selects the venue and the candle interval scans run on.
type ExchangeConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	BaseCurrency   string `yaml:"baseCurrency"`
	TickerInterval string `yaml:"tickerInterval"`
}

// BuyConfig holds the entry rules and sizing for the buy pass.
type BuyConfig struct {
	BTCAmount        float64 `yaml:"btcAmount"`
	RSIThreshold     float64 `yaml:"rsiThreshold"`
	VolumeThreshold  float64 `yaml:"volumeThreshold"`
	MinimumUnitPrice float64 `yaml:"minimumUnitPrice"`
	MaxOpenTrades    int     `yaml:"maxOpenTrades"`
	MaxNotional      float64 `yaml:"maxNotional"`
}

// SellConfig holds the exit rules for the sell pass.
type SellConfig struct {
	RSIThreshold    float64 `yaml:"rsiThreshold"`
	MinProfitMargin float64 `yaml:"minProfitMargin"`
	ProfitMargin    float64 `yaml:"profitMargin"`
	LossMargin      float64 `yaml:"lossMargin"`
}

// TradeConfig groups the per-side rules with the shared order settings.
type TradeConfig struct {
	RSIPeriod             int        `yaml:"rsiPeriod"`
	OrderTimeLimitMinutes int        `yaml:"orderTimeLimitMinutes"`
	Buy                   BuyConfig  `yaml:"buy"`
	Sell                  SellConfig `yaml:"sell"`
}

// BuyPauseConfig pauses the whole buy scan when a pair looks overbought.
type BuyPauseConfig struct {
	RSIThreshold float64 `yaml:"rsiThreshold"`
	Minutes      float64 `yaml:"minutes"`
}

// SellPauseConfig excludes deep-loss positions from the sell scan.
type SellPauseConfig struct {
	ProfitMargin float64 `yaml:"profitMargin"`
	Minutes      float64 `yaml:"minutes"`
}

// BalancePauseConfig schedules the periodic account-value notification.
type BalancePauseConfig struct {
	Minutes float64 `yaml:"minutes"`
}

// PauseConfig groups the optional pause timers. A nil section disables that
// behaviour.
type PauseConfig struct {
	Buy     *BuyPauseConfig     `yaml:"buy"`
	Sell    *SellPauseConfig    `yaml:"sell"`
	Balance *BalancePauseConfig `yaml:"balance"`
}

// EmailConfig configures the SMTP notification channel. The password comes
// from SMTP_PASSWORD, never the file.
type EmailConfig struct {
	Host      string `yaml:"host"`
	Port      string `yaml:"port"`
	Username  string `yaml:"username"`
	From      string `yaml:"from"`
	Recipient string `yaml:"recipient"`

	Password string `yaml:"-"`
}

// NotificationsConfig lists the enabled notification channels.
type NotificationsConfig struct {
	WebhookURL string       `yaml:"webhookUrl"`
	Email      *EmailConfig `yaml:"email"`
}

// StorageConfig holds the on-disk paths for state, archive, and decision log.
type StorageConfig struct {
	TradesPath    string `yaml:"tradesPath"`
	ScanPath      string `yaml:"scanPath"`
	ArchivePath   string `yaml:"archivePath"`
	DecisionsPath string `yaml:"decisionsPath"`
}

type Config struct {
	Exchange      ExchangeConfig      `yaml:"exchange"`
	Trade         TradeConfig         `yaml:"trade"`
	Pause         PauseConfig         `yaml:"pause"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Storage       StorageConfig       `yaml:"storage"`
	DryRun        bool                `yaml:"dryRun"`
	KillSwitch    bool                `yaml:"killSwitch"`

	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// Load reads the YAML file at path, fills credentials from the environment
// (after loading .env if present), applies defaults, and validates.
func Load(path string) (Config, error) {
	loadDotEnvIfPresent(".env")

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.APIKey = os.Getenv("BITTREX_API_KEY")
	cfg.APISecret = os.Getenv("BITTREX_API_SECRET")
	if cfg.Notifications.Email != nil {
		cfg.Notifications.Email.Password = os.Getenv("SMTP_PASSWORD")
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL:        "https://bittrex.com/api",
			BaseCurrency:   "BTC",
			TickerInterval: "fiveMin",
		},
		Trade: TradeConfig{
			RSIPeriod:             14,
			OrderTimeLimitMinutes: 30,
			Buy: BuyConfig{
				RSIThreshold:    25,
				MaxOpenTrades:   3,
				VolumeThreshold: 100,
			},
			Sell: SellConfig{
				RSIThreshold:    50,
				MinProfitMargin: 0.5,
				ProfitMargin:    2.5,
			},
		},
		Storage: StorageConfig{
			TradesPath:    "data/trades.json",
			ScanPath:      "data/scan.json",
			ArchivePath:   "data/archive.db",
			DecisionsPath: "data/decisions.ndjson",
		},
	}
}

func validate(cfg Config) error {
	if !cfg.DryRun && (cfg.APIKey == "" || cfg.APISecret == "") {
		return fmt.Errorf("BITTREX_API_KEY and BITTREX_API_SECRET are required unless dryRun is set")
	}
	if cfg.Exchange.BaseCurrency == "" {
		return fmt.Errorf("exchange.baseCurrency must be set")
	}
	if cfg.Trade.RSIPeriod <= 1 {
		return fmt.Errorf("trade.rsiPeriod must be > 1")
	}
	if cfg.Trade.OrderTimeLimitMinutes <= 0 {
		return fmt.Errorf("trade.orderTimeLimitMinutes must be > 0")
	}
	if cfg.Trade.Buy.BTCAmount <= 0 {
		return fmt.Errorf("trade.buy.btcAmount must be > 0")
	}
	if cfg.Trade.Buy.MaxOpenTrades < 0 {
		return fmt.Errorf("trade.buy.maxOpenTrades must be >= 0")
	}
	if cfg.Trade.Sell.MinProfitMargin > cfg.Trade.Sell.ProfitMargin {
		return fmt.Errorf("trade.sell.minProfitMargin must be <= trade.sell.profitMargin")
	}
	if cfg.Trade.Sell.LossMargin > 0 {
		return fmt.Errorf("trade.sell.lossMargin must be <= 0")
	}
	if p := cfg.Pause.Buy; p != nil && p.Minutes <= 0 {
		return fmt.Errorf("pause.buy.minutes must be > 0")
	}
	if p := cfg.Pause.Sell; p != nil {
		if p.Minutes <= 0 {
			return fmt.Errorf("pause.sell.minutes must be > 0")
		}
		if p.ProfitMargin >= 0 {
			return fmt.Errorf("pause.sell.profitMargin must be < 0")
		}
	}
	if p := cfg.Pause.Balance; p != nil && p.Minutes <= 0 {
		return fmt.Errorf("pause.balance.minutes must be > 0")
	}
	if e := cfg.Notifications.Email; e != nil {
		if e.Host == "" || e.Port == "" || e.Recipient == "" {
			return fmt.Errorf("notifications.email requires host, port, and recipient")
		}
	}
	if cfg.Storage.TradesPath == "" || cfg.Storage.ScanPath == "" {
		return fmt.Errorf("storage.tradesPath and storage.scanPath must be set")
	}
	return nil
}
