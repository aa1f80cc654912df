package adapter

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the adapter side of pairing: where the host listens and
// the shared secret minted when the user paired this client. Values
// come from easel.yml with EASEL_* environment overrides.
type Config struct {
	Url string `mapstructure:"url"`
	App string `mapstructure:"app"`
	Secret string `mapstructure:"secret"`
	WsHandshakeTimeout time.Duration `mapstructure:"ws_handshake_timeout"`
	AuthTimeout time.Duration `mapstructure:"auth_timeout"`
	ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout"`
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("easel")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.easel")

	v.SetEnvPrefix("EASEL")
	v.AutomaticEnv()

	defaults := DefaultHostAdapterSettings()
	v.SetDefault("url", "ws://127.0.0.1:8697/pair")
	v.SetDefault("app", "easel")
	// a default is required for the env override to reach Unmarshal
	v.SetDefault("secret", "")
	v.SetDefault("ws_handshake_timeout", defaults.WsHandshakeTimeout)
	v.SetDefault("auth_timeout", defaults.AuthTimeout)
	v.SetDefault("reconnect_timeout", defaults.ReconnectTimeout)
	v.SetDefault("ping_timeout", defaults.PingTimeout)
	v.SetDefault("write_timeout", defaults.WriteTimeout)
	v.SetDefault("read_timeout", defaults.ReadTimeout)

	if err := v.ReadInConfig(); err != nil {
		// env-only configuration is fine, a missing file is not
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, err
	}
	return config, nil
}

func (self *Config) Auth() (*SessionAuth, error) {
	if self.Secret == "" {
		return nil, fmt.Errorf("missing pairing secret")
	}
	secret, err := hex.DecodeString(self.Secret)
	if err != nil {
		return nil, fmt.Errorf("pairing secret must be hex: %w", err)
	}
	return NewSessionAuth(self.App, secret), nil
}

func (self *Config) Settings() *HostAdapterSettings {
	return &HostAdapterSettings{
		WsHandshakeTimeout: self.WsHandshakeTimeout,
		AuthTimeout: self.AuthTimeout,
		ReconnectTimeout: self.ReconnectTimeout,
		PingTimeout: self.PingTimeout,
		WriteTimeout: self.WriteTimeout,
		ReadTimeout: self.ReadTimeout,
	}
}
