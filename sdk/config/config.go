// Package config loads roomctl settings from a yaml file and the environment.
package config

import (
	"errors"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	envConfigPath = "ROOMCTL_CONFIG"

	defaultSTUNServer = "stun:stun.l.google.com:19302"
)

var (
	ErrRead     = errors.New("cannot read config")
	ErrNotFound = errors.New("config file does not exist")
	ErrRoomURL  = errors.New("room url is required")
)

type Config struct {
	APIBaseURL                 string   `yaml:"api_base_url" env:"ROOMCTL_API_BASE_URL" env-default:"https://api.whereby.dev/v1"`
	SignalingURL               string   `yaml:"signaling_url" env:"ROOMCTL_SIGNALING_URL" env-default:"wss://signal.appearin.net/protocol/socket.io/v4"`
	BaseDomain                 string   `yaml:"base_domain" env:"ROOMCTL_BASE_DOMAIN" env-default:"whereby.com"`
	ICEServers                 []string `yaml:"ice_servers" env:"ROOMCTL_ICE_SERVERS"`
	AcceptStreamsFromBothSides bool     `yaml:"accept_streams_from_both_sides" env:"ROOMCTL_ACCEPT_STREAMS_FROM_BOTH_SIDES"`

	RoomURL     string `yaml:"room_url" env:"ROOMCTL_ROOM_URL"`
	RoomKey     string `yaml:"room_key" env:"ROOMCTL_ROOM_KEY"`
	DisplayName string `yaml:"display_name" env:"ROOMCTL_DISPLAY_NAME" env-default:"roomctl"`
	ExternalID  string `yaml:"external_id" env:"ROOMCTL_EXTERNAL_ID"`

	// Device publishes a synthetic camera when set to "static".
	Device            string `yaml:"device" env:"ROOMCTL_DEVICE"`
	CameraEnabled     bool   `yaml:"camera_enabled" env:"ROOMCTL_CAMERA_ENABLED"`
	MicrophoneEnabled bool   `yaml:"microphone_enabled" env:"ROOMCTL_MICROPHONE_ENABLED"`

	LogLevel   string `yaml:"log_level" env:"ROOMCTL_LOG_LEVEL" env-default:"info"`
	StatusAddr string `yaml:"status_addr" env:"ROOMCTL_STATUS_ADDR"`
}

// Load reads .env if present, then path (or $ROOMCTL_CONFIG) when given,
// then the environment. Environment values win over the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv(envConfigPath)
	}

	var (
		cfg Config
		err error
	)
	if path != "" {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return nil, errors.Join(ErrNotFound, statErr)
		}
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, errors.Join(ErrRead, err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if len(c.ICEServers) == 0 {
		c.ICEServers = []string{defaultSTUNServer}
	}
}

// Validate checks what is needed to join.
func (c *Config) Validate() error {
	if c.RoomURL == "" {
		return ErrRoomURL
	}
	return nil
}
