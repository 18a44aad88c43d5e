package connection

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	"github.com/mitchellh/mapstructure"

	"github.com/acryldata/datahub-monitors/core"
)

// RedshiftConfig is the connection block of a Redshift ingestion recipe.
// HostPort carries "host:port"; the port defaults to 5439 when absent.
type RedshiftConfig struct {
	HostPort string `mapstructure:"host_port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

const defaultRedshiftPort = 5439

func redshiftConfigFromRecipe(recipe *Recipe) (*RedshiftConfig, error) {
	var cfg RedshiftConfig
	if err := mapstructure.Decode(recipe.Source.Config, &cfg); err != nil {
		return nil, fmt.Errorf("decode redshift recipe config: %w", err)
	}
	if cfg.HostPort == "" || cfg.Database == "" {
		return nil, fmt.Errorf("redshift recipe missing host_port or database")
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "require"
	}
	return &cfg, nil
}

func (cfg *RedshiftConfig) hostAndPort() (string, int, error) {
	host := cfg.HostPort
	port := defaultRedshiftPort
	if idx := strings.LastIndex(cfg.HostPort, ":"); idx >= 0 {
		host = cfg.HostPort[:idx]
		p, err := strconv.Atoi(cfg.HostPort[idx+1:])
		if err != nil {
			return "", 0, fmt.Errorf("invalid redshift host_port %q: %w", cfg.HostPort, err)
		}
		port = p
	}
	return host, port, nil
}

// RedshiftConnection is a lazily-opened Redshift handle over the postgres
// wire protocol.
type RedshiftConnection struct {
	urn string
	cfg RedshiftConfig

	mu sync.Mutex
	db *sql.DB
}

func NewRedshiftConnection(urn string, cfg RedshiftConfig) *RedshiftConnection {
	return &RedshiftConnection{urn: urn, cfg: cfg}
}

var _ core.Connection = (*RedshiftConnection)(nil)

func (c *RedshiftConnection) URN() string          { return c.urn }
func (c *RedshiftConnection) PlatformName() string { return PlatformRedshift }

// DB returns the shared database handle, opening it on first call.
func (c *RedshiftConnection) DB() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}

	host, port, err := c.cfg.hostAndPort()
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		host, port, c.cfg.Database, c.cfg.Username, c.cfg.Password, c.cfg.SSLMode)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open redshift connection: %w", err)
	}
	c.db = db
	return c.db, nil
}

func (c *RedshiftConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
