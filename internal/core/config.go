package core

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to any of the
// server components.
type Config struct {
	// Hostname or IP address on which the server will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Maximum number of concurrent connections the server will allow.
	MaxConnections int `mapstructure:"max_connections"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"logging"`

	Database struct {
		// Database engine, either "sqlite" or "postgres".
		Engine string `mapstructure:"engine"`
		// Path to the SQLite database file (engine=sqlite).
		SQLitePath string `mapstructure:"sqlite_path"`
		// Connection parameters for a Postgres instance (engine=postgres).
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Name     string `mapstructure:"name"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		// Set to verify-full if the Postgres instance supports SSL.
		SSLMode string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	ShareServer struct {
		// Port on which the SHARE server will listen for game clients.
		Port int `mapstructure:"port"`
	} `mapstructure:"share_server"`

	Storage struct {
		// Directory in which per-world content files are kept. Created at startup.
		WorldsDir string `mapstructure:"worlds_dir"`
	} `mapstructure:"storage"`

	Web struct {
		// Port for the HTTP endpoint serving /metrics and /healthz. 0 disables it.
		HTTPPort int `mapstructure:"http_port"`
	} `mapstructure:"web"`

	Debugging struct {
		// Enable the pprof server.
		PprofEnabled bool `mapstructure:"pprof_enabled"`
		// Port on which the pprof server will be started.
		PprofPort int `mapstructure:"pprof_port"`
		// Log inbound and outbound frames.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "UBERMUNDO"

// LoadConfig initializes Viper with the contents of the config file under
// configPath and returns the parsed Config.
func LoadConfig(configPath string) (*Config, error) {
	viper.AddConfigPath(configPath)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(envVarPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file in %s: %w", configPath, err)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, database.host can be set using: <envVarPrefix>_DATABASE_HOST
	for _, k := range viper.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := viper.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return config, nil
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a Postgres connection string generated from the
// provided config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}

// ShareAddress returns the address on which the SHARE server listens.
func (c *Config) ShareAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.ShareServer.Port)
}
