// Package conf loads and holds the alarmd runtime configuration.
package conf

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Unfulfilled-transition emission modes for value rules.
// EmitWhenText suppresses the leave-alarm when the rule has no
// unfulfilled text configured; EmitAlways fires it regardless.
const (
	EmitWhenText = "when_text"
	EmitAlways   = "always"
)

// Settings is the root configuration for alarmd.
type Settings struct {
	Main struct {
		Name     string   `mapstructure:"name"`
		LogLevel string   `mapstructure:"log_level"`
		LogJSON  bool     `mapstructure:"log_json"`
	} `mapstructure:"main"`

	MQTT struct {
		Broker      string   `mapstructure:"broker"`
		ClientID    string   `mapstructure:"client_id"`
		Username    string   `mapstructure:"username"`
		Password    string   `mapstructure:"password"`
		DataTopic   string   `mapstructure:"data_topic"`
		StatusTopic string   `mapstructure:"status_topic"`
		Reconnect   Duration `mapstructure:"reconnect_interval"`
	} `mapstructure:"mqtt"`

	Database struct {
		// Driver is "sqlite" or "mysql".
		Driver string `mapstructure:"driver"`
		// Path is the SQLite database file (sqlite driver).
		Path string `mapstructure:"path"`
		// DSN is the MySQL data source name (mysql driver).
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Alarms struct {
		// AckWindow is the full evaluation-suppression window started
		// by an acknowledge. AckResetDelay arms the delayed telemetry
		// reset inside that window; the gap between the two is
		// deliberate slack for the reset write to land before
		// evaluation resumes.
		AckWindow       Duration `mapstructure:"ack_window"`
		AckResetDelay   Duration `mapstructure:"ack_reset_delay"`
		StatusInterval  Duration `mapstructure:"status_interval"`
		FanoutInterval  Duration `mapstructure:"fanout_interval"`
		HistorySnapshot int      `mapstructure:"history_snapshot"`
		// EmitUnfulfilled is "when_text" or "always" (value rules).
		EmitUnfulfilled string `mapstructure:"emit_unfulfilled"`
	} `mapstructure:"alarms"`

	WebServer struct {
		Port  int  `mapstructure:"port"`
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"webserver"`
}

// setDefaults registers the default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("main.name", "alarmd")
	v.SetDefault("main.log_level", "info")

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "alarmd")
	v.SetDefault("mqtt.data_topic", "modbus/alarm/data")
	v.SetDefault("mqtt.status_topic", "modbus/alarm/status")
	v.SetDefault("mqtt.reconnect_interval", "5s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "alarmd.db")

	v.SetDefault("alarms.ack_window", "15s")
	v.SetDefault("alarms.ack_reset_delay", "14s")
	v.SetDefault("alarms.status_interval", "5s")
	v.SetDefault("alarms.fanout_interval", "5s")
	v.SetDefault("alarms.history_snapshot", 100)
	v.SetDefault("alarms.emit_unfulfilled", EmitWhenText)

	v.SetDefault("webserver.port", 8090)
}

// Load reads settings from the given config file (optional) and the
// environment (ALARMD_ prefix, dots as underscores).
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ALARMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (s *Settings) Validate() error {
	switch s.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unknown database driver %q", s.Database.Driver)
	}
	switch s.Alarms.EmitUnfulfilled {
	case EmitWhenText, EmitAlways:
	default:
		return fmt.Errorf("alarms.emit_unfulfilled must be %q or %q, got %q",
			EmitWhenText, EmitAlways, s.Alarms.EmitUnfulfilled)
	}
	if s.Alarms.AckResetDelay.Std() >= s.Alarms.AckWindow.Std() {
		return fmt.Errorf("alarms.ack_reset_delay (%s) must be shorter than alarms.ack_window (%s)",
			s.Alarms.AckResetDelay.Std(), s.Alarms.AckWindow.Std())
	}
	if s.Alarms.AckResetDelay.Std() <= 0 {
		return fmt.Errorf("alarms.ack_reset_delay must be positive")
	}
	if s.Alarms.HistorySnapshot <= 0 {
		return fmt.Errorf("alarms.history_snapshot must be positive")
	}
	return nil
}
