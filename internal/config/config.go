package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/gregtusar/termarb/pkg/arbitrage"
	"github.com/gregtusar/termarb/pkg/models"
	"github.com/gregtusar/termarb/pkg/secrets"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	OMS      OMSConfig      `mapstructure:"oms"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	GCP      GCPConfig      `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type OMSConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	MarketID          string `mapstructure:"market_id"`
	TokenCache        string `mapstructure:"token_cache"`
	HeartbeatSeconds  int    `mapstructure:"heartbeat_seconds"`
	ReconnectInterval int    `mapstructure:"reconnect_interval"`
}

type TradingConfig struct {
	TickersFile     string   `mapstructure:"tickers_file"`
	CaucionRate     float64  `mapstructure:"caucion_rate"`
	BorrowerFeeRate float64  `mapstructure:"borrower_fee_rate"`
	LenderFeeRate   float64  `mapstructure:"lender_fee_rate"`
	CommissionRate  float64  `mapstructure:"commission_rate"`
	FarTenorDays    int      `mapstructure:"far_tenor_days"`
	TradeSize       float64  `mapstructure:"trade_size"`
	MinReturn       float64  `mapstructure:"min_return"`
	MinReturnKind   string   `mapstructure:"min_return_kind"`
	OwnedTickers    []string `mapstructure:"owned_tickers"`
	ScanInterval    int      `mapstructure:"scan_interval"`
	// MarketFeeRates is the market-fee rate (%) per asset class: cedear,
	// bond, letra.
	MarketFeeRates map[string]float64 `mapstructure:"market_fee_rates"`
}

type AlertsConfig struct {
	TopN            int  `mapstructure:"top_n"`
	CooldownSeconds int  `mapstructure:"cooldown_seconds"`
	Console         bool `mapstructure:"console"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

type StorageConfig struct {
	Path          string `mapstructure:"path"`
	RawMessages   bool   `mapstructure:"raw_messages"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type GCPConfig struct {
	ProjectID       string              `mapstructure:"project_id"`
	UseSecrets      bool                `mapstructure:"use_secrets"`
	CredentialsFile string              `mapstructure:"credentials_file"`
	SecretNames     secrets.SecretNames `mapstructure:"secret_names"`
}

// Threshold converts the configured minimum return.
func (t TradingConfig) Threshold() arbitrage.Threshold {
	kind := arbitrage.ThresholdPercent
	if strings.EqualFold(t.MinReturnKind, string(arbitrage.ThresholdAbsolute)) {
		kind = arbitrage.ThresholdAbsolute
	}
	return arbitrage.Threshold{Kind: kind, Value: t.MinReturn}
}

// Pricing returns the financing inputs for the evaluator.
func (t TradingConfig) Pricing() arbitrage.Pricing {
	return arbitrage.Pricing{
		AnnualRate:      t.CaucionRate,
		FarTenorDays:    t.FarTenorDays,
		BorrowerFeeRate: t.BorrowerFeeRate,
		LenderFeeRate:   t.LenderFeeRate,
	}
}

// FeeRates converts the configured market-fee rates for the registry.
func (t TradingConfig) FeeRates() map[models.AssetClass]float64 {
	rates := make(map[models.AssetClass]float64, len(t.MarketFeeRates))
	for class, rate := range t.MarketFeeRates {
		rates[models.AssetClass(strings.ToLower(class))] = rate
	}
	return rates
}

// Load reads defaults, the config file, a .env file and the environment, in
// increasing precedence, then fills missing credentials from GCP Secret
// Manager when enabled.
func Load(configPath string) (*Config, error) {
	// a missing .env is normal
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/termarb")
	}

	v.SetEnvPrefix("TERMARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := overrideFromEnv(&config); err != nil {
		return nil, err
	}

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		sm, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, config.GCP.CredentialsFile, logger)
		if err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
		defer sm.Close()
		applySecrets(ctx, &config, sm)
		logger.Info("Loaded secrets from GCP Secret Manager")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.enabled", true)

	v.SetDefault("oms.host", "")
	v.SetDefault("oms.market_id", "ROFX")
	v.SetDefault("oms.token_cache", ".token_cache.json")
	v.SetDefault("oms.heartbeat_seconds", 30)
	v.SetDefault("oms.reconnect_interval", 60)

	v.SetDefault("trading.tickers_file", "tickers.csv")
	v.SetDefault("trading.caucion_rate", 35.0)
	v.SetDefault("trading.borrower_fee_rate", 10.0)
	v.SetDefault("trading.lender_fee_rate", 10.0)
	v.SetDefault("trading.commission_rate", 0.10)
	v.SetDefault("trading.market_fee_rates.cedear", models.CedearMarketFeeRate)
	v.SetDefault("trading.market_fee_rates.bond", models.BondMarketFeeRate)
	v.SetDefault("trading.market_fee_rates.letra", models.LetraMarketFeeRate)
	v.SetDefault("trading.far_tenor_days", 1)
	v.SetDefault("trading.trade_size", 0.0)
	v.SetDefault("trading.min_return", 0.1)
	v.SetDefault("trading.min_return_kind", string(arbitrage.ThresholdPercent))
	v.SetDefault("trading.owned_tickers", []string{})
	v.SetDefault("trading.scan_interval", 0)

	v.SetDefault("alerts.top_n", 5)
	v.SetDefault("alerts.cooldown_seconds", 300)
	v.SetDefault("alerts.console", true)

	v.SetDefault("storage.path", "./data/termarb.db")
	v.SetDefault("storage.raw_messages", true)
	v.SetDefault("storage.retention_days", 30)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")

	names := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.oms_user", names.OMSUser)
	v.SetDefault("gcp.secret_names.oms_password", names.OMSPassword)
	v.SetDefault("gcp.secret_names.telegram_bot_token", names.TelegramBotToken)
	v.SetDefault("gcp.secret_names.telegram_chat_id", names.TelegramChatID)
	v.SetDefault("gcp.secret_names.redis_password", names.RedisPassword)
}

// overrideFromEnv applies the plain environment names used by existing
// deployments.
func overrideFromEnv(config *Config) error {
	floats := []struct {
		name string
		dst  *float64
	}{
		{"TASA_CAUCION_TNA", &config.Trading.CaucionRate},
		{"ARANCEL_TOMADORA_TNA", &config.Trading.BorrowerFeeRate},
		{"ARANCEL_COLOCADORA_TNA", &config.Trading.LenderFeeRate},
		{"COMISION_BROKER", &config.Trading.CommissionRate},
		{"MIN_PROFIT_PERCENTAGE", &config.Trading.MinReturn},
	}
	for _, f := range floats {
		if s := os.Getenv(f.name); s != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", f.name, s, err)
			}
			*f.dst = v
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"DIAS_LIQ_24H", &config.Trading.FarTenorDays},
		{"ALERT_COOLDOWN_SECONDS", &config.Alerts.CooldownSeconds},
	}
	for _, i := range ints {
		if s := os.Getenv(i.name); s != "" {
			v, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", i.name, s, err)
			}
			*i.dst = v
		}
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"OMS_HOST", &config.OMS.Host},
		{"OMS_USER", &config.OMS.User},
		{"OMS_PASSWORD", &config.OMS.Password},
		{"TELEGRAM_BOT_TOKEN", &config.Telegram.BotToken},
		{"TELEGRAM_CHAT_ID", &config.Telegram.ChatID},
		{"LOG_LEVEL", &config.Logging.Level},
		{"GCP_PROJECT_ID", &config.GCP.ProjectID},
	}
	for _, s := range strs {
		if v := os.Getenv(s.name); v != "" {
			*s.dst = v
		}
	}

	if os.Getenv("GCP_USE_SECRETS") == "true" {
		config.GCP.UseSecrets = true
	}
	return nil
}

// applySecrets fills credentials that are still empty.
func applySecrets(ctx context.Context, config *Config, src secrets.Source) {
	names := config.GCP.SecretNames
	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = src.GetSecretWithDefault(ctx, name, "")
		}
	}
	fill(&config.OMS.User, names.OMSUser)
	fill(&config.OMS.Password, names.OMSPassword)
	fill(&config.Telegram.BotToken, names.TelegramBotToken)
	fill(&config.Telegram.ChatID, names.TelegramChatID)
	fill(&config.Redis.Password, names.RedisPassword)
}

// Validate rejects settings the engine cannot price with.
func (c *Config) Validate() error {
	var errs []error
	t := c.Trading
	if t.CaucionRate < 0 {
		errs = append(errs, fmt.Errorf("trading.caucion_rate must not be negative, got %v", t.CaucionRate))
	}
	if t.BorrowerFeeRate < 0 || t.LenderFeeRate < 0 {
		errs = append(errs, errors.New("trading fee rates must not be negative"))
	}
	if t.CommissionRate < 0 {
		errs = append(errs, fmt.Errorf("trading.commission_rate must not be negative, got %v", t.CommissionRate))
	}
	for class, rate := range t.MarketFeeRates {
		switch models.AssetClass(strings.ToLower(class)) {
		case models.AssetClassCedear, models.AssetClassBond, models.AssetClassLetra:
		default:
			errs = append(errs, fmt.Errorf("trading.market_fee_rates: unknown asset class %q", class))
		}
		if rate < 0 {
			errs = append(errs, fmt.Errorf("trading.market_fee_rates.%s must not be negative, got %v", class, rate))
		}
	}
	if t.FarTenorDays <= 0 {
		errs = append(errs, fmt.Errorf("trading.far_tenor_days must be positive, got %d", t.FarTenorDays))
	}
	if t.TradeSize < 0 {
		errs = append(errs, fmt.Errorf("trading.trade_size must not be negative, got %v", t.TradeSize))
	}
	kind := strings.ToLower(t.MinReturnKind)
	if kind != "" && kind != string(arbitrage.ThresholdPercent) && kind != string(arbitrage.ThresholdAbsolute) {
		errs = append(errs, fmt.Errorf("trading.min_return_kind must be %q or %q, got %q",
			arbitrage.ThresholdPercent, arbitrage.ThresholdAbsolute, t.MinReturnKind))
	}
	if c.Alerts.TopN < 0 || c.Alerts.CooldownSeconds < 0 {
		errs = append(errs, errors.New("alerts.top_n and alerts.cooldown_seconds must not be negative"))
	}
	return errors.Join(errs...)
}
