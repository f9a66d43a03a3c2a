package cli

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/yungbote/intellimix-backend/internal/apiclient"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

const (
	defaultServer       = "http://localhost:8080"
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 2 * time.Second
)

// Settings is the resolved flag, env and file configuration.
type Settings struct {
	Server       string
	Token        string
	Timeout      time.Duration
	NoPush       bool
	PollInterval time.Duration
	JSON         bool
}

func loadSettings() Settings {
	return Settings{
		Server:       viper.GetString("server"),
		Token:        viper.GetString("token"),
		Timeout:      viper.GetDuration("timeout"),
		NoPush:       viper.GetBool("no_push"),
		PollInterval: viper.GetDuration("poll_interval"),
		JSON:         viper.GetBool("json"),
	}
}

func newClient(s Settings) (*apiclient.Client, error) {
	if s.Token == "" {
		return nil, fmt.Errorf("no token; pass --token, set MIXCTL_TOKEN or run 'mixctl token'")
	}
	return apiclient.New(logger.Nop(), apiclient.Config{
		BaseURL:    s.Server,
		Token:      s.Token,
		Timeout:    s.Timeout,
		MaxRetries: 2,
	})
}
