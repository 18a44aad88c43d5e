package connection

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"
	sf "github.com/snowflakedb/gosnowflake"

	"github.com/acryldata/datahub-monitors/core"
)

// SnowflakeConfig is the connection block of a Snowflake ingestion recipe.
type SnowflakeConfig struct {
	AccountID string `mapstructure:"account_id"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Role      string `mapstructure:"role"`
	Warehouse string `mapstructure:"warehouse"`
}

func snowflakeConfigFromRecipe(recipe *Recipe) (*SnowflakeConfig, error) {
	var cfg SnowflakeConfig
	if err := mapstructure.Decode(recipe.Source.Config, &cfg); err != nil {
		return nil, fmt.Errorf("decode snowflake recipe config: %w", err)
	}
	if cfg.AccountID == "" || cfg.Username == "" {
		return nil, fmt.Errorf("snowflake recipe missing account_id or username")
	}
	return &cfg, nil
}

// SnowflakeConnection is a lazily-opened Snowflake handle. The underlying
// pool is created on first use and reused afterwards.
type SnowflakeConnection struct {
	urn string
	cfg SnowflakeConfig

	mu sync.Mutex
	db *sql.DB
}

func NewSnowflakeConnection(urn string, cfg SnowflakeConfig) *SnowflakeConnection {
	return &SnowflakeConnection{urn: urn, cfg: cfg}
}

var _ core.Connection = (*SnowflakeConnection)(nil)

func (c *SnowflakeConnection) URN() string          { return c.urn }
func (c *SnowflakeConnection) PlatformName() string { return PlatformSnowflake }

// DB returns the shared database handle, opening it on first call. All
// sessions run in UTC so timestamp comparisons are unambiguous.
func (c *SnowflakeConnection) DB() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}

	utc := "UTC"
	dsn, err := sf.DSN(&sf.Config{
		Account:   c.cfg.AccountID,
		User:      c.cfg.Username,
		Password:  c.cfg.Password,
		Role:      c.cfg.Role,
		Warehouse: c.cfg.Warehouse,
		Params:    map[string]*string{"timezone": &utc},
	})
	if err != nil {
		return nil, fmt.Errorf("build snowflake dsn: %w", err)
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snowflake connection: %w", err)
	}
	c.db = db
	return c.db, nil
}

// Close releases the handle if it was ever opened.
func (c *SnowflakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
