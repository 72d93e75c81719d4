package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"aixblock-ledger/internal/domain"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Log         LogConfig         `yaml:"log"`
	Deployment  DeploymentConfig  `yaml:"deployment"`
	Oracle      OracleConfig      `yaml:"oracle"`
	TokenLedger TokenLedgerConfig `yaml:"token_ledger"`
	Vesting     VestingConfig     `yaml:"vesting"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings. Driver "memory" keeps all state
// in process.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	Migrate  bool   `yaml:"migrate"`
}

// RedisConfig enables the shared lock backend. Leave Addr empty to lock in process.
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	KeyPrefix      string `yaml:"key_prefix"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// DeploymentConfig names the administering account and the token and price feed the
// ledger settles against.
type DeploymentConfig struct {
	Owner         string `yaml:"owner"`
	Token         string `yaml:"token"`
	PriceFeed     string `yaml:"price_feed"`
	ReferenceUnit string `yaml:"reference_unit"`
	EscrowAccount string `yaml:"escrow_account"`
	Treasury      string `yaml:"treasury"`
}

// OracleConfig selects the price oracle: "http" or "fixed".
type OracleConfig struct {
	Type             string `yaml:"type"`
	BaseURL          string `yaml:"base_url"`
	MaxAgeSeconds    int    `yaml:"max_age_seconds"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	FixedNumerator   uint64 `yaml:"fixed_numerator"`
	FixedDenominator uint64 `yaml:"fixed_denominator"`
}

// TokenLedgerConfig selects the token ledger: "http" or "memory". Balances seed the
// memory ledger for local runs.
type TokenLedgerConfig struct {
	Type           string            `yaml:"type"`
	BaseURL        string            `yaml:"base_url"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Balances       map[string]uint64 `yaml:"balances"`
}

// VestingConfig holds the allocation categories seeded at startup. Start is RFC3339;
// empty means the moment of first seeding.
type VestingConfig struct {
	Start       string             `yaml:"start"`
	Allocations []AllocationConfig `yaml:"allocations"`
}

type AllocationConfig struct {
	Category        string `yaml:"category"`
	Account         string `yaml:"account"`
	TotalAllocation uint64 `yaml:"total_allocation"`
	CliffDays       int    `yaml:"cliff_days"`
	VestingDays     int    `yaml:"vesting_days"`
	TGEUnlockBps    uint32 `yaml:"tge_unlock_bps"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ReleaseVestedTokens string `yaml:"release_vested_tokens"`
}

// DefaultAllocations is the token distribution used when the config lists none. Every
// category unlocks a share at start so a release right after launch is non-zero.
var DefaultAllocations = []AllocationConfig{
	{Category: "Seed", TotalAllocation: 50_000_000, CliffDays: 90, VestingDays: 540, TGEUnlockBps: 500},
	{Category: "Private", TotalAllocation: 80_000_000, CliffDays: 90, VestingDays: 450, TGEUnlockBps: 700},
	{Category: "Strategic", TotalAllocation: 70_000_000, CliffDays: 60, VestingDays: 360, TGEUnlockBps: 1000},
	{Category: "Public", TotalAllocation: 50_000_000, CliffDays: 30, VestingDays: 180, TGEUnlockBps: 2500},
	{Category: "Team/Advisor", TotalAllocation: 150_000_000, CliffDays: 365, VestingDays: 720, TGEUnlockBps: 100},
	{Category: "Rewards/Community", TotalAllocation: 250_000_000, CliffDays: 0, VestingDays: 1440, TGEUnlockBps: 500},
	{Category: "EcosystemGrowth", TotalAllocation: 200_000_000, CliffDays: 30, VestingDays: 1080, TGEUnlockBps: 300},
	{Category: "Reserves", TotalAllocation: 150_000_000, CliffDays: 180, VestingDays: 1080, TGEUnlockBps: 200},
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Collaborators
	if val := os.Getenv("ORACLE_BASE_URL"); val != "" {
		c.Oracle.BaseURL = val
	}
	if val := os.Getenv("TOKEN_LEDGER_BASE_URL"); val != "" {
		c.TokenLedger.BaseURL = val
	}

	// Deployment
	if val := os.Getenv("DEPLOYMENT_OWNER"); val != "" {
		c.Deployment.Owner = val
	}
	if val := os.Getenv("DEPLOYMENT_TOKEN"); val != "" {
		c.Deployment.Token = val
	}
	if val := os.Getenv("DEPLOYMENT_PRICE_FEED"); val != "" {
		c.Deployment.PriceFeed = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Database validation
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	// Redis defaults
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "aixblock:lock:"
	}
	if c.Redis.LockTTLSeconds <= 0 {
		c.Redis.LockTTLSeconds = 30
	}

	// Deployment validation
	if c.Deployment.Owner == "" {
		return fmt.Errorf("deployment owner is required")
	}
	if c.Deployment.Token == "" {
		return fmt.Errorf("deployment token is required")
	}
	if c.Deployment.PriceFeed == "" {
		return fmt.Errorf("deployment price feed is required")
	}
	if c.Deployment.ReferenceUnit == "" {
		c.Deployment.ReferenceUnit = "USD"
	}
	if c.Deployment.EscrowAccount == "" {
		c.Deployment.EscrowAccount = "rental-escrow"
	}
	if c.Deployment.Treasury == "" {
		c.Deployment.Treasury = "treasury"
	}

	// Oracle validation
	if c.Oracle.Type == "" {
		c.Oracle.Type = "http"
	}
	switch c.Oracle.Type {
	case "http":
		if c.Oracle.BaseURL == "" {
			return fmt.Errorf("oracle base url is required")
		}
	case "fixed":
		if c.Oracle.FixedDenominator == 0 {
			return fmt.Errorf("fixed oracle denominator must be positive")
		}
	default:
		return fmt.Errorf("unknown oracle type: %q", c.Oracle.Type)
	}
	if c.Oracle.TimeoutSeconds <= 0 {
		c.Oracle.TimeoutSeconds = 5
	}

	// Token ledger validation
	if c.TokenLedger.Type == "" {
		c.TokenLedger.Type = "http"
	}
	switch c.TokenLedger.Type {
	case "http":
		if c.TokenLedger.BaseURL == "" {
			return fmt.Errorf("token ledger base url is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown token ledger type: %q", c.TokenLedger.Type)
	}
	if c.TokenLedger.TimeoutSeconds <= 0 {
		c.TokenLedger.TimeoutSeconds = 10
	}

	// The Redis lock is not renewed, so it has to outlive the external calls made under it
	if c.Redis.Addr != "" {
		budget := c.Oracle.TimeoutSeconds + c.TokenLedger.TimeoutSeconds
		if c.Redis.LockTTLSeconds <= budget {
			return fmt.Errorf("redis lock ttl (%ds) must exceed oracle plus token ledger timeouts (%ds)", c.Redis.LockTTLSeconds, budget)
		}
	}

	// Vesting validation
	if len(c.Vesting.Allocations) == 0 {
		c.Vesting.Allocations = append([]AllocationConfig(nil), DefaultAllocations...)
	}
	if c.Vesting.Start != "" {
		if _, err := time.Parse(time.RFC3339, c.Vesting.Start); err != nil {
			return fmt.Errorf("invalid vesting start: %w", err)
		}
	}
	seen := make(map[string]struct{}, len(c.Vesting.Allocations))
	for _, a := range c.Vesting.Allocations {
		if strings.TrimSpace(a.Category) == "" {
			return fmt.Errorf("vesting allocation category is required")
		}
		if _, dup := seen[a.Category]; dup {
			return fmt.Errorf("duplicate vesting category: %q", a.Category)
		}
		seen[a.Category] = struct{}{}
		if a.TotalAllocation == 0 {
			return fmt.Errorf("vesting category %q needs a total allocation", a.Category)
		}
		if a.CliffDays < 0 || a.VestingDays < 0 {
			return fmt.Errorf("vesting category %q has a negative duration", a.Category)
		}
		if a.TGEUnlockBps > 10_000 {
			return fmt.Errorf("vesting category %q unlocks more than 10000 bps", a.Category)
		}
	}

	// Scheduler defaults
	if c.Scheduler.ReleaseVestedTokens == "" {
		c.Scheduler.ReleaseVestedTokens = "0 0 1 * * *" // 1 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) DeploymentInfo() domain.Deployment {
	return domain.Deployment{
		Owner:         c.Deployment.Owner,
		Token:         c.Deployment.Token,
		PriceFeed:     c.Deployment.PriceFeed,
		ReferenceUnit: c.Deployment.ReferenceUnit,
		EscrowAccount: c.Deployment.EscrowAccount,
		Treasury:      c.Deployment.Treasury,
	}
}

// VestingAllocations converts the configured categories into allocations starting at
// the configured start, or at now when none is set.
func (c *Config) VestingAllocations(now time.Time) []domain.VestingAllocation {
	start := now.UTC()
	if c.Vesting.Start != "" {
		// Validated in Validate.
		start, _ = time.Parse(time.RFC3339, c.Vesting.Start)
	}

	const day = 24 * time.Hour
	allocs := make([]domain.VestingAllocation, 0, len(c.Vesting.Allocations))
	for _, a := range c.Vesting.Allocations {
		allocs = append(allocs, domain.VestingAllocation{
			Category:        a.Category,
			Account:         a.Account,
			TotalAllocation: a.TotalAllocation,
			Schedule: domain.VestingSchedule{
				Start:        start,
				Cliff:        time.Duration(a.CliffDays) * day,
				Vesting:      time.Duration(a.VestingDays) * day,
				TGEUnlockBps: a.TGEUnlockBps,
			},
		})
	}
	return allocs
}
