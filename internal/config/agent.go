package config

import (
	"time"

	"github.com/spf13/viper"
)

// AgentConfig configures the punch agent that runs on the employee's device.
type AgentConfig struct {
	APIURL           string        `mapstructure:"PONTO_API_URL"`
	EmployeeID       string        `mapstructure:"PONTO_EMPLOYEE_ID"`
	UnitID           string        `mapstructure:"PONTO_UNIT_ID"`
	DeviceID         string        `mapstructure:"PONTO_DEVICE_ID"`
	QueuePath        string        `mapstructure:"PONTO_QUEUE_PATH"`
	SyncInterval     time.Duration `mapstructure:"PONTO_SYNC_INTERVAL"`
	SubmitTimeout    time.Duration `mapstructure:"PONTO_SUBMIT_TIMEOUT"`
	ProbeInterval    time.Duration `mapstructure:"PONTO_PROBE_INTERVAL"`
	ProbeTimeout     time.Duration `mapstructure:"PONTO_PROBE_TIMEOUT"`
	Production       bool          `mapstructure:"PONTO_PRODUCTION"`
	Offline          bool          `mapstructure:"PONTO_OFFLINE"`
	UnitLatitude     *float64      `mapstructure:"-"`
	UnitLongitude    *float64      `mapstructure:"-"`
	UnitRadiusMeters *float64      `mapstructure:"-"`
	IsLocalDev       bool          `mapstructure:"LOCAL_DEV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
}

// SetAgentDefaults registers defaults on v. Callers bind flags before
// calling LoadAgentConfig.
func SetAgentDefaults(v *viper.Viper) {
	v.SetDefault("PONTO_API_URL", "http://localhost:8080")
	v.SetDefault("PONTO_QUEUE_PATH", "ponto-agent/queue.db")
	v.SetDefault("PONTO_SYNC_INTERVAL", 5*time.Second)
	v.SetDefault("PONTO_SUBMIT_TIMEOUT", 30*time.Second)
	v.SetDefault("PONTO_PROBE_INTERVAL", 5*time.Second)
	v.SetDefault("PONTO_PROBE_TIMEOUT", 3*time.Second)
	v.SetDefault("PONTO_PRODUCTION", true)
	v.SetDefault("PONTO_OFFLINE", false)
	v.SetDefault("LOCAL_DEV", false)
	v.SetDefault("LOG_LEVEL", "")
	// Registered so AutomaticEnv picks them up during Unmarshal.
	v.SetDefault("PONTO_EMPLOYEE_ID", "")
	v.SetDefault("PONTO_UNIT_ID", "")
	v.SetDefault("PONTO_DEVICE_ID", "")
}

// LoadAgentConfig reads the agent settings from v (env, flags, defaults).
func LoadAgentConfig(v *viper.Viper) (config AgentConfig, err error) {
	v.AutomaticEnv()
	err = v.Unmarshal(&config)
	if err != nil {
		return
	}

	// Optional floats are only set when present so an unset geofence stays nil.
	config.UnitLatitude = optionalFloat(v, "PONTO_UNIT_LATITUDE")
	config.UnitLongitude = optionalFloat(v, "PONTO_UNIT_LONGITUDE")
	config.UnitRadiusMeters = optionalFloat(v, "PONTO_UNIT_RADIUS_METERS")
	return
}

func optionalFloat(v *viper.Viper, key string) *float64 {
	if !v.IsSet(key) || v.GetString(key) == "" {
		return nil
	}
	f := v.GetFloat64(key)
	return &f
}
