package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"joftmode/internal/infer"
)

type Config struct {
	IMU     IMUConfig     `yaml:"imu"`
	GPS     GPSConfig     `yaml:"gps"`
	ML      MLConfig      `yaml:"ml"`
	Log     LogConfig     `yaml:"log"`
	Web     WebConfig     `yaml:"web"`
	Logging LoggingConfig `yaml:"logging"`
	Sim     SimConfig     `yaml:"sim"`
}

type IMUConfig struct {
	// Source is "sim" or "replay".
	Source     string        `yaml:"source"`
	Interval   time.Duration `yaml:"interval"`
	Warmup     *int          `yaml:"warmup"`
	ReplayPath string        `yaml:"replay_path"`
}

type GPSConfig struct {
	Enable bool `yaml:"enable"`
	// Source is "serial", "file" or "sim".
	Source       string        `yaml:"source"`
	Device       string        `yaml:"device"`
	Baud         int           `yaml:"baud"`
	Path         string        `yaml:"path"`
	ChunkBytes   int           `yaml:"chunk_bytes"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxLine      int           `yaml:"max_line"`
}

type MLConfig struct {
	Enable bool `yaml:"enable"`
	// Engine is "linear" or "tflite".
	Engine    string    `yaml:"engine"`
	ModelPath string    `yaml:"model_path"`
	Threads   int       `yaml:"threads"`
	Mean      []float64 `yaml:"mean"`
	Std       []float64 `yaml:"std"`
}

type LogConfig struct {
	Dir string `yaml:"dir"`
	// Format is "csv" or "sqlite".
	Format     string        `yaml:"format"`
	Interval   time.Duration `yaml:"interval"`
	FlushEvery int           `yaml:"flush_every"`
	SyncEvery  int           `yaml:"sync_every"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	BufferLines int    `yaml:"buffer_lines"`
}

type SimConfig struct {
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	SpeedMps     float64       `yaml:"speed_mps"`
	Period       time.Duration `yaml:"period"`
	Activity     string        `yaml:"activity"`
}

// Normalization returns the ml.mean/ml.std table. Call after
// DefaultAndValidate.
func (c MLConfig) Normalization() infer.Normalization {
	var n infer.Normalization
	copy(n.Mean[:], c.Mean)
	copy(n.Std[:], c.Std)
	return n
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default is the configuration of an empty file.
func Default() Config {
	var cfg Config
	_ = DefaultAndValidate(&cfg)
	return cfg
}

func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.IMU.Source = strings.ToLower(strings.TrimSpace(cfg.IMU.Source))
	if cfg.IMU.Source == "" {
		cfg.IMU.Source = "sim"
	}
	switch cfg.IMU.Source {
	case "sim":
	case "replay":
		if strings.TrimSpace(cfg.IMU.ReplayPath) == "" {
			return fmt.Errorf("imu.replay_path is required when imu.source is replay")
		}
	default:
		return fmt.Errorf("imu.source must be sim or replay")
	}
	if cfg.IMU.Interval <= 0 {
		cfg.IMU.Interval = 40 * time.Millisecond
	}
	if cfg.IMU.Warmup == nil {
		w := 5
		cfg.IMU.Warmup = &w
	}
	if *cfg.IMU.Warmup < 0 {
		return fmt.Errorf("imu.warmup must be >= 0")
	}

	cfg.GPS.Source = strings.ToLower(strings.TrimSpace(cfg.GPS.Source))
	if cfg.GPS.Source == "" {
		cfg.GPS.Source = "serial"
	}
	if cfg.GPS.Baud == 0 {
		cfg.GPS.Baud = 9600
	}
	if cfg.GPS.PollInterval <= 0 {
		cfg.GPS.PollInterval = 100 * time.Millisecond
	}
	if cfg.GPS.MaxLine == 0 {
		cfg.GPS.MaxLine = 1024
	}
	if cfg.GPS.ChunkBytes == 0 {
		cfg.GPS.ChunkBytes = 96
	}
	if cfg.GPS.Enable {
		switch cfg.GPS.Source {
		case "serial", "sim":
		case "file":
			if strings.TrimSpace(cfg.GPS.Path) == "" {
				return fmt.Errorf("gps.path is required when gps.source is file")
			}
		default:
			return fmt.Errorf("gps.source must be serial, file or sim")
		}
		if cfg.GPS.MaxLine < 16 {
			return fmt.Errorf("gps.max_line must be >= 16")
		}
		if cfg.GPS.ChunkBytes < 0 {
			return fmt.Errorf("gps.chunk_bytes must be >= 0 (0 = default)")
		}
	}

	cfg.ML.Engine = strings.ToLower(strings.TrimSpace(cfg.ML.Engine))
	if cfg.ML.Engine == "" {
		cfg.ML.Engine = "linear"
	}
	def := infer.DefaultNormalization()
	if len(cfg.ML.Mean) == 0 {
		cfg.ML.Mean = append([]float64(nil), def.Mean[:]...)
	}
	if len(cfg.ML.Std) == 0 {
		cfg.ML.Std = append([]float64(nil), def.Std[:]...)
	}
	if len(cfg.ML.Mean) != infer.Channels || len(cfg.ML.Std) != infer.Channels {
		return fmt.Errorf("ml.mean and ml.std must have %d entries", infer.Channels)
	}
	if err := cfg.ML.Normalization().Validate(); err != nil {
		return fmt.Errorf("ml: %v", err)
	}
	if cfg.ML.Enable && cfg.ML.Engine == "tflite" && strings.TrimSpace(cfg.ML.ModelPath) == "" {
		return fmt.Errorf("ml.model_path is required when ml.engine is tflite")
	}

	if strings.TrimSpace(cfg.Log.Dir) == "" {
		cfg.Log.Dir = "./logs"
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = "csv"
	}
	if cfg.Log.Format != "csv" && cfg.Log.Format != "sqlite" {
		return fmt.Errorf("log.format must be csv or sqlite")
	}
	if cfg.Log.Interval <= 0 {
		cfg.Log.Interval = cfg.IMU.Interval
	}
	if cfg.Log.FlushEvery == 0 {
		cfg.Log.FlushEvery = 25
	}
	if cfg.Log.FlushEvery < 0 {
		return fmt.Errorf("log.flush_every must be >= 0 (0 = default)")
	}
	if cfg.Log.SyncEvery == 0 {
		cfg.Log.SyncEvery = 1
	}
	if cfg.Log.SyncEvery < 0 {
		return fmt.Errorf("log.sync_every must be >= 0 (0 = default)")
	}

	if strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = ":8080"
	}

	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays <= 0 {
		cfg.Logging.MaxAgeDays = 28
	}
	if cfg.Logging.BufferLines <= 0 {
		cfg.Logging.BufferLines = 500
	}

	if cfg.Sim.CenterLatDeg == 0 && cfg.Sim.CenterLonDeg == 0 {
		cfg.Sim.CenterLatDeg, cfg.Sim.CenterLonDeg = 48.1173, 11.516667
	}
	if cfg.Sim.CenterLatDeg < -85 || cfg.Sim.CenterLatDeg > 85 {
		return fmt.Errorf("sim.center_lat_deg must be within [-85, 85]")
	}
	if cfg.Sim.Period <= 0 {
		cfg.Sim.Period = 120 * time.Second
	}
	cfg.Sim.Activity = strings.ToLower(strings.TrimSpace(cfg.Sim.Activity))
	if cfg.Sim.Activity == "" {
		cfg.Sim.Activity = "walk"
	}
	if _, err := infer.ParseClass(cfg.Sim.Activity); err != nil {
		return fmt.Errorf("sim.activity must be walk or ebike")
	}
	if cfg.Sim.SpeedMps < 0 {
		return fmt.Errorf("sim.speed_mps must be >= 0")
	}
	return nil
}
