// Package config handles configuration loading, validation, and persistence
// for the Sanicball relay server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sanicball-project/sanicrelay/internal/protocol"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultGamePort   = 7878
	DefaultAPIPort    = 7879
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	ServerData      ServerData      `json:"server_data"`
	MatchData       MatchData       `json:"match_data"`
	ApplicationData ApplicationData `json:"application_data"`
}

// ServerData describes the relay endpoint and how it presents itself.
type ServerData struct {
	Name               string   `json:"name"`
	IP                 string   `json:"ip"`
	Port               int      `json:"port"`
	AppID              string   `json:"app_id"`
	Public             bool     `json:"public"`
	Servers            []string `json:"servers"`
	MaxPlayers         int      `json:"max_players"`
	EnabledConnections bool     `json:"enabled_connections"`
	MOTD               string   `json:"motd"`
	MaxPacketsPerSec   int      `json:"max_packets_per_sec"`
}

// MatchData is the match configuration new clients receive until a
// settings change replaces it.
type MatchData struct {
	StageID             int32   `json:"stage_id"`
	Laps                int32   `json:"laps"`
	AICount             int32   `json:"ai_count"`
	AISkill             int32   `json:"ai_skill"`
	AutoStartTime       int32   `json:"auto_start_time"`
	AutoStartMinPlayers int32   `json:"auto_start_min_players"`
	AutoReturnTime      int32   `json:"auto_return_time"`
	VoteRatio           float32 `json:"vote_ratio"`
	StageRotationMode   int32   `json:"stage_rotation_mode"`
}

// Settings converts the match data to its wire form.
func (m MatchData) Settings() protocol.MatchSettings {
	return protocol.MatchSettings{
		StageID:             m.StageID,
		Laps:                m.Laps,
		AICount:             m.AICount,
		AISkill:             m.AISkill,
		AutoStartTime:       m.AutoStartTime,
		AutoStartMinPlayers: m.AutoStartMinPlayers,
		AutoReturnTime:      m.AutoReturnTime,
		VoteRatio:           m.VoteRatio,
		StageRotationMode:   m.StageRotationMode,
	}
}

// ApplicationData contains settings for the process around the relay.
type ApplicationData struct {
	Timers   TimerConfig    `json:"timers"`
	API      APIConfig      `json:"api"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Database DatabaseConfig `json:"database"`
	Console  ConsoleConfig  `json:"console"`
	Logging  LoggingConfig  `json:"logging"`
}

// TimerConfig holds match lifecycle thresholds and loop intervals.
type TimerConfig struct {
	LobbyCountdown       int `json:"lobby_countdown_sec"`
	StageLoadTimeout     int `json:"stage_load_timeout_sec"`
	PollInterval         int `json:"poll_interval_ms"`
	HistoryPruneInterval int `json:"history_prune_interval_sec"`
}

// LobbyCountdownDuration returns the lobby countdown as a duration.
func (t TimerConfig) LobbyCountdownDuration() time.Duration {
	return time.Duration(t.LobbyCountdown) * time.Second
}

// StageLoadTimeoutDuration returns the stage load timeout as a duration.
func (t TimerConfig) StageLoadTimeoutDuration() time.Duration {
	return time.Duration(t.StageLoadTimeout) * time.Second
}

// PollIntervalDuration returns the receive timeout that drives timer ticks.
func (t TimerConfig) PollIntervalDuration() time.Duration {
	return time.Duration(t.PollInterval) * time.Millisecond
}

// HistoryPruneIntervalDuration returns how often match history is pruned.
func (t TimerConfig) HistoryPruneIntervalDuration() time.Duration {
	return time.Duration(t.HistoryPruneInterval) * time.Second
}

// APIConfig holds the status API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	EnableLiveFeed bool     `json:"enable_live_feed"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	CAFile      string `json:"ca_file"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
}

// DatabaseConfig holds match history storage settings.
type DatabaseConfig struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days"`
}

// ConsoleConfig controls the interactive operator console.
type ConsoleConfig struct {
	Enabled bool `json:"enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerData: ServerData{
			Name:               "Sanicball Server",
			IP:                 "0.0.0.0",
			Port:               DefaultGamePort,
			AppID:              protocol.AppID,
			Public:             false,
			Servers:            []string{},
			MaxPlayers:         8,
			EnabledConnections: true,
			MOTD:               "Gotta go fast",
			MaxPacketsPerSec:   300,
		},
		MatchData: MatchData{
			StageID:             0,
			Laps:                2,
			AICount:             0,
			AISkill:             1,
			AutoStartTime:       60,
			AutoStartMinPlayers: 2,
			AutoReturnTime:      15,
			VoteRatio:           1,
			StageRotationMode:   0,
		},
		ApplicationData: ApplicationData{
			Timers: TimerConfig{
				LobbyCountdown:       3,
				StageLoadTimeout:     20,
				PollInterval:         100,
				HistoryPruneInterval: 3600,
			},
			API: APIConfig{
				Enabled:        true,
				Port:           DefaultAPIPort,
				AllowedOrigins: []string{"*"},
				RateLimitRPS:   20,
				EnableLiveFeed: true,
			},
			MQTT: MQTTConfig{
				Enabled:     false,
				Port:        1883,
				ClientID:    "sanicrelay",
				TopicPrefix: "sanicball",
			},
			Database: DatabaseConfig{
				Enabled:       true,
				Path:          "data/history.db",
				RetentionDays: 30,
			},
			Console: ConsoleConfig{
				Enabled: true,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file, creating it from defaults when missing.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Persist fields added since the file was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServerData returns a copy of the server configuration.
func (c *Config) GetServerData() ServerData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerData
}

// SetMOTD updates the message of the day.
func (c *Config) SetMOTD(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ServerData.MOTD = text
}

// GetMatchData returns a copy of the match configuration.
func (c *Config) GetMatchData() MatchData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MatchData
}

// GetApplicationData returns a copy of the application configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
