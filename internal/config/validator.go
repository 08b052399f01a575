package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration for values the relay cannot run with.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServerData(&cfg.ServerData, result)
	validateMatchData(&cfg.MatchData, result)
	validateApplicationData(&cfg.ApplicationData, cfg.ServerData.Port, result)

	return result
}

func validateServerData(data *ServerData, result *ValidationResult) {
	if ip := strings.TrimSpace(data.IP); ip != "" && net.ParseIP(ip) == nil {
		result.AddError("server_data.ip", fmt.Sprintf("not an IP address: %q", data.IP))
	}

	validatePort(data.Port, "server_data.port", result)

	if strings.TrimSpace(data.AppID) == "" {
		result.AddError("server_data.app_id", "application identifier is required")
	}

	if data.MaxPlayers < 1 {
		result.AddError("server_data.max_players", "must allow at least 1 player")
	}

	if data.MaxPacketsPerSec < 0 {
		result.AddError("server_data.max_packets_per_sec", "cannot be negative")
	}

	if data.Public && len(data.Servers) == 0 {
		result.AddWarning("server_data.servers", "server is public but no server list is configured")
	}

	if !data.EnabledConnections {
		result.AddWarning("server_data.enabled_connections", "connections are disabled")
	}
}

func validateMatchData(data *MatchData, result *ValidationResult) {
	if data.Laps < 1 {
		result.AddError("match_data.laps", "must race at least 1 lap")
	}
	if data.AICount < 0 {
		result.AddError("match_data.ai_count", "AI count cannot be negative")
	}
	if data.VoteRatio < 0 || data.VoteRatio > 1 {
		result.AddError("match_data.vote_ratio",
			fmt.Sprintf("vote ratio %.2f out of range (must be 0-1)", data.VoteRatio))
	}
	if data.AutoStartTime < 0 || data.AutoReturnTime < 0 {
		result.AddError("match_data.auto_start_time", "timing parameters cannot be negative")
	}
}

func validateApplicationData(data *ApplicationData, gamePort int, result *ValidationResult) {
	validateTimers(&data.Timers, result)

	if data.API.Enabled {
		validatePort(data.API.Port, "application_data.api.port", result)
		if data.API.Port == gamePort {
			result.AddError("application_data.api.port", "port conflict with the game port")
		}
		if data.API.RateLimitRPS < 1 {
			result.AddWarning("application_data.api.rate_limit_rps",
				"rate limit is disabled (0 RPS), this may expose the API to abuse")
		}
	}

	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}

	if data.Database.Enabled {
		if strings.TrimSpace(data.Database.Path) == "" {
			result.AddError("application_data.database.path", "database path is required when enabled")
		}
		if data.Database.RetentionDays < 1 {
			result.AddWarning("application_data.database.retention_days",
				"retention disabled, history will grow without bound")
		}
	}
}

func validateTimers(timers *TimerConfig, result *ValidationResult) {
	if timers.LobbyCountdown < 1 {
		result.AddError("timers.lobby_countdown_sec", "lobby countdown must be at least 1s")
	}
	if timers.StageLoadTimeout < 1 {
		result.AddError("timers.stage_load_timeout_sec", "stage load timeout must be at least 1s")
	}
	if timers.PollInterval < 10 {
		result.AddWarning("timers.poll_interval_ms",
			"poll interval less than 10ms will spin the relay loop")
	}
	if timers.PollInterval > 1000 {
		result.AddWarning("timers.poll_interval_ms",
			"poll interval above 1s delays lobby and race transitions")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}
