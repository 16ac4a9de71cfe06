package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ELLSL_OUTLET_LISTEN_ADDR
const EnvPrefix = "ELLSL"

// Config holds application configuration
type Config struct {
	// LogLevel defaults to panic so log lines do not interleave with console output
	LogLevel   logrus.Level `yaml:"log_level"`
	ClientName string       `yaml:"client_name" default:"ellsl"`

	// NotifyBuffer bounds service callbacks waiting for the session dispatcher
	NotifyBuffer int `yaml:"notify_buffer" default:"1024"`
	// EventBuffer bounds handled events waiting for the console
	EventBuffer int `yaml:"event_buffer" default:"64"`

	DefaultRate              int           `yaml:"default_rate" default:"60"`
	DefaultCalibrationPoints int           `yaml:"default_calibration_points" default:"5"`
	ServerListTimeout        time.Duration `yaml:"server_list_timeout" default:"2s"`

	Outlet    OutletConfig    `yaml:"outlet"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// OutletConfig configures the WebSocket outlet
type OutletConfig struct {
	ListenAddr   string        `yaml:"listen_addr" default:"127.0.0.1:16571"`
	Path         string        `yaml:"path" default:"/gaze"`
	QueueSize    uint32        `yaml:"queue_size" default:"1024"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
}

// SimulatorConfig configures the built-in simulated service
type SimulatorConfig struct {
	Address             string        `yaml:"address" default:"127.0.0.1:2001"`
	Serial              uint64        `yaml:"serial" default:"18446744"`
	FrameRates          []int         `yaml:"frame_rates"`
	CalibrationMethods  []int         `yaml:"calibration_methods"`
	ScreenWidth         int32         `yaml:"screen_width" default:"1920"`
	ScreenHeight        int32         `yaml:"screen_height" default:"1080"`
	ScreenWidthMm       float64       `yaml:"screen_width_mm" default:"531.4"`
	ScreenHeightMm      float64       `yaml:"screen_height_mm" default:"298.9"`
	CalibrationDuration time.Duration `yaml:"calibration_duration" default:"1500ms"`
	BlinkEvery          int           `yaml:"blink_every" default:"120"`
	DeviceAbsent        bool          `yaml:"device_absent"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	defaults.SetDefaults(&cfg.Outlet)
	defaults.SetDefaults(&cfg.Simulator)
	cfg.Simulator.FrameRates = []int{60, 250}
	cfg.Simulator.CalibrationMethods = []int{1, 5, 9}
	return cfg
}

// Load overlays a YAML file (optional, empty path skips it) and ELLSL_* environment
// variables on top of DefaultConfig
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// env lookups only happen for keys viper knows about
	registerDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	level, err := logrus.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log_level: %w", err)
	}
	cfg.LogLevel = level
	cfg.ClientName = v.GetString("client_name")
	cfg.NotifyBuffer = v.GetInt("notify_buffer")
	cfg.EventBuffer = v.GetInt("event_buffer")
	cfg.DefaultRate = v.GetInt("default_rate")
	cfg.DefaultCalibrationPoints = v.GetInt("default_calibration_points")
	cfg.ServerListTimeout = v.GetDuration("server_list_timeout")

	cfg.Outlet.ListenAddr = v.GetString("outlet.listen_addr")
	cfg.Outlet.Path = v.GetString("outlet.path")
	cfg.Outlet.QueueSize = v.GetUint32("outlet.queue_size")
	cfg.Outlet.WriteTimeout = v.GetDuration("outlet.write_timeout")

	sim := &cfg.Simulator
	sim.Address = v.GetString("simulator.address")
	sim.Serial = v.GetUint64("simulator.serial")
	sim.FrameRates = v.GetIntSlice("simulator.frame_rates")
	sim.CalibrationMethods = v.GetIntSlice("simulator.calibration_methods")
	sim.ScreenWidth = v.GetInt32("simulator.screen_width")
	sim.ScreenHeight = v.GetInt32("simulator.screen_height")
	sim.ScreenWidthMm = v.GetFloat64("simulator.screen_width_mm")
	sim.ScreenHeightMm = v.GetFloat64("simulator.screen_height_mm")
	sim.CalibrationDuration = v.GetDuration("simulator.calibration_duration")
	sim.BlinkEvery = v.GetInt("simulator.blink_every")
	sim.DeviceAbsent = v.GetBool("simulator.device_absent")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func registerDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log_level", cfg.LogLevel.String())
	v.SetDefault("client_name", cfg.ClientName)
	v.SetDefault("notify_buffer", cfg.NotifyBuffer)
	v.SetDefault("event_buffer", cfg.EventBuffer)
	v.SetDefault("default_rate", cfg.DefaultRate)
	v.SetDefault("default_calibration_points", cfg.DefaultCalibrationPoints)
	v.SetDefault("server_list_timeout", cfg.ServerListTimeout)

	v.SetDefault("outlet.listen_addr", cfg.Outlet.ListenAddr)
	v.SetDefault("outlet.path", cfg.Outlet.Path)
	v.SetDefault("outlet.queue_size", cfg.Outlet.QueueSize)
	v.SetDefault("outlet.write_timeout", cfg.Outlet.WriteTimeout)

	sim := cfg.Simulator
	v.SetDefault("simulator.address", sim.Address)
	v.SetDefault("simulator.serial", sim.Serial)
	v.SetDefault("simulator.frame_rates", sim.FrameRates)
	v.SetDefault("simulator.calibration_methods", sim.CalibrationMethods)
	v.SetDefault("simulator.screen_width", sim.ScreenWidth)
	v.SetDefault("simulator.screen_height", sim.ScreenHeight)
	v.SetDefault("simulator.screen_width_mm", sim.ScreenWidthMm)
	v.SetDefault("simulator.screen_height_mm", sim.ScreenHeightMm)
	v.SetDefault("simulator.calibration_duration", sim.CalibrationDuration)
	v.SetDefault("simulator.blink_every", sim.BlinkEvery)
	v.SetDefault("simulator.device_absent", sim.DeviceAbsent)
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error
	if c.ClientName == "" {
		errs = append(errs, errors.New("client_name must not be empty"))
	}
	if c.NotifyBuffer <= 0 {
		errs = append(errs, fmt.Errorf("notify_buffer must be > 0, got %d", c.NotifyBuffer))
	}
	if c.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("event_buffer must be > 0, got %d", c.EventBuffer))
	}
	if c.Outlet.QueueSize == 0 {
		errs = append(errs, errors.New("outlet.queue_size must be > 0"))
	}
	if !strings.HasPrefix(c.Outlet.Path, "/") {
		errs = append(errs, fmt.Errorf("outlet.path must start with '/', got %q", c.Outlet.Path))
	}
	for _, r := range c.Simulator.FrameRates {
		if r <= 0 || r > 255 {
			errs = append(errs, fmt.Errorf("simulator.frame_rates: %d out of range 1..255", r))
		}
	}
	for _, p := range c.Simulator.CalibrationMethods {
		if p <= 0 || p > 255 {
			errs = append(errs, fmt.Errorf("simulator.calibration_methods: %d out of range 1..255", p))
		}
	}
	return errors.Join(errs...)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
