package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Config holds every runtime knob of the backup server. It is loaded once at
// startup and passed by value into the component constructors; nothing reads
// it as global state, so tests can build one per case.
type Config struct {
	ListenAddr     string   `yaml:"listenAddr"`
	DatabasePath   string   `yaml:"databasePath"`
	AllowedOrigins []string `yaml:"allowedOrigins"`

	// AppSecretKey is the HMAC-SHA256 key shared with the client app.
	AppSecretKey string `yaml:"appSecretKey"`
	// AdminSecretKey guards the /admin endpoints. Empty disables them.
	AdminSecretKey string `yaml:"adminSecretKey"`
	// Pepper is mixed into user identifiers before they touch disk.
	// Empty disables peppering.
	Pepper string `yaml:"pepper"`

	MaxBackupsPerHour   uint32 `yaml:"maxBackupsPerHour"`
	MaxBackupsPerDay    uint32 `yaml:"maxBackupsPerDay"`
	MaxTimestampAgeSecs int64  `yaml:"maxTimestampAgeSecs"`

	MaxBackupSizeBytes  int `yaml:"maxBackupSizeBytes"`
	WarnBackupSizeBytes int `yaml:"warnBackupSizeBytes"`

	EntropyCheckEnabled bool    `yaml:"entropyCheckEnabled"`
	MinEntropyRatio     float64 `yaml:"minEntropyRatio"`
	MaxEntropyRatio     float64 `yaml:"maxEntropyRatio"`
	MinEntropySizeBytes int     `yaml:"minEntropySizeBytes"`
	ExpectedAppID       string  `yaml:"expectedAppId"`

	MinimumFreeGB int `yaml:"minimumFreeGB"`
	// GarbageCollectionMinutes is the value-log maintenance cadence.
	GarbageCollectionMinutes int `yaml:"garbageCollectionMinutes"`
}

// Default returns a Config with every non-secret knob at its documented
// default. AppSecretKey has no default and must come from the file or the
// environment.
func Default() Config {
	return Config{
		ListenAddr:               "0.0.0.0:8080",
		DatabasePath:             "./data/dailyreps.db",
		AllowedOrigins:           []string{"http://localhost:5173"},
		MaxBackupsPerHour:        5,
		MaxBackupsPerDay:         20,
		MaxTimestampAgeSecs:      300,
		MaxBackupSizeBytes:       5 * 1024 * 1024,
		WarnBackupSizeBytes:      1024 * 1024,
		EntropyCheckEnabled:      true,
		MinEntropyRatio:          0.75,
		MaxEntropyRatio:          1.0,
		MinEntropySizeBytes:      256,
		ExpectedAppID:            "dailyreps",
		MinimumFreeGB:            1,
		GarbageCollectionMinutes: 10,
	}
}

// Load reads the YAML file at path (optional), overlays environment
// variables for the secrets, and fills defaults for anything left unset.
func Load(path string) (Config, error) {
	conf := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &conf); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
		conf.applyDefaults()
	}

	if v := os.Getenv("APP_SECRET_KEY"); v != "" {
		conf.AppSecretKey = v
	}
	if v := os.Getenv("ADMIN_SECRET_KEY"); v != "" {
		conf.AdminSecretKey = v
	}
	if v := os.Getenv("USER_ID_PEPPER"); v != "" {
		conf.Pepper = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		conf.AllowedOrigins = origins
	}

	if conf.AppSecretKey == "" {
		return Config{}, fmt.Errorf("appSecretKey must be set for HMAC verification (config file or APP_SECRET_KEY)")
	}

	return conf, nil
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = def.AllowedOrigins
	}
	if c.MaxBackupsPerHour == 0 {
		c.MaxBackupsPerHour = def.MaxBackupsPerHour
	}
	if c.MaxBackupsPerDay == 0 {
		c.MaxBackupsPerDay = def.MaxBackupsPerDay
	}
	if c.MaxTimestampAgeSecs == 0 {
		c.MaxTimestampAgeSecs = def.MaxTimestampAgeSecs
	}
	if c.MaxBackupSizeBytes == 0 {
		c.MaxBackupSizeBytes = def.MaxBackupSizeBytes
	}
	if c.WarnBackupSizeBytes == 0 {
		c.WarnBackupSizeBytes = def.WarnBackupSizeBytes
	}
	if c.MinEntropyRatio == 0 {
		c.MinEntropyRatio = def.MinEntropyRatio
	}
	if c.MaxEntropyRatio == 0 {
		c.MaxEntropyRatio = def.MaxEntropyRatio
	}
	if c.MinEntropySizeBytes == 0 {
		c.MinEntropySizeBytes = def.MinEntropySizeBytes
	}
	if c.ExpectedAppID == "" {
		c.ExpectedAppID = def.ExpectedAppID
	}
	if c.MinimumFreeGB == 0 {
		c.MinimumFreeGB = def.MinimumFreeGB
	}
	if c.GarbageCollectionMinutes == 0 {
		c.GarbageCollectionMinutes = def.GarbageCollectionMinutes
	}
}
