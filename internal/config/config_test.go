package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/notify-engine/internal/channel"
	"github.com/aliskhannn/notify-engine/internal/model"
)

const minimal = `
storage:
  driver: memory
email:
  smtp_host: mail.local
  smtp_port: "25"
  from: noreply@example.com
retry:
  attempts: 3
  delay: 100ms
  backoff: 2
dispatch:
  workers: 2
  backoff_base: 10s
  backoff_cap: 5m
channels:
  - channel: email
    provider: smtp
    rate_limit_per_minute: 60
    default: true
templates:
  - id: welcome
    channel: email
    subject: "Hi {{.name}}"
    body: "Welcome {{.name}}"
    required_variables: [name]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))

	return dir
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, RateLimitMemory, cfg.RateLimit.Backend)
	assert.Equal(t, ":8080", cfg.Server.HTTPPort)

	assert.Equal(t, 2, cfg.Dispatch.Workers)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.BackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.BackoffCap)
	assert.Equal(t, time.Second, cfg.Dispatch.PollInterval)
	assert.Equal(t, 5, cfg.Dispatch.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.Delay)

	require.Len(t, cfg.Channels, 1)
	assert.Equal(t, channel.Binding{Channel: model.ChannelEmail, ProviderName: "smtp", RateLimitPerMinute: 60, IsDefault: true}, cfg.Channels[0])

	require.Len(t, cfg.Templates, 1)
	assert.Equal(t, "Hi {{.name}}", cfg.Templates[0].SubjectTemplate)
	assert.Equal(t, []string{"name"}, cfg.Templates[0].RequiredVariables)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SMTP_HOST", "smtp.override")
	t.Setenv("HTTP_PORT", ":9090")

	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "smtp.override", cfg.Email.SMTPHost)
	assert.Equal(t, ":9090", cfg.Server.HTTPPort)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:    Server{HTTPPort: ":8080"},
			Storage:   Storage{Driver: StorageMemory},
			RateLimit: RateLimit{Backend: RateLimitMemory},
			Email:     Email{SMTPHost: "mail.local"},
			Dispatch: Dispatch{
				Workers: 1, BackoffBase: time.Second, BackoffCap: time.Minute,
				SendTimeout: 30 * time.Second, ProcessingTimeout: 5 * time.Minute, RateLimitMaxWait: 2 * time.Second,
			},
			Channels: []channel.Binding{{Channel: model.ChannelEmail, ProviderName: "smtp"}},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cases := map[string]func(*Config){
		"unknown storage":       func(c *Config) { c.Storage.Driver = "sqlite" },
		"postgres without host": func(c *Config) { c.Storage.Driver = StoragePostgres },
		"redis without address": func(c *Config) { c.RateLimit.Backend = RateLimitRedis },
		"no workers":            func(c *Config) { c.Dispatch.Workers = 0 },
		"cap below base":        func(c *Config) { c.Dispatch.BackoffCap = time.Millisecond },
		"no bindings":           func(c *Config) { c.Channels = nil },
		"unknown channel":       func(c *Config) { c.Channels[0].Channel = "fax" },
		"sms without creds": func(c *Config) {
			c.Channels = append(c.Channels, channel.Binding{Channel: model.ChannelSMS, ProviderName: "twilio"})
		},
		"push without project": func(c *Config) {
			c.Channels = append(c.Channels, channel.Binding{Channel: model.ChannelPush, ProviderName: "fcm"})
		},
		"template without id":     func(c *Config) { c.Templates = []model.Template{{Channel: model.ChannelEmail}} },
		"negative retry budget":   func(c *Config) { c.Dispatch.MaxRetries = -1 },
		"email without smtp host": func(c *Config) { c.Email.SMTPHost = "" },
		"processing timeout below send timeout": func(c *Config) {
			c.Dispatch.SendTimeout = 10 * time.Minute
		},
		"processing timeout equal to send plus max wait": func(c *Config) {
			c.Dispatch.ProcessingTimeout = 32 * time.Second
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg = valid()
	cfg.Dispatch.ProcessingTimeout = 0
	assert.NoError(t, cfg.Validate(), "sweeper disabled")
}

func TestDSN(t *testing.T) {
	n := DatabaseNode{Host: "db", Port: "5432", User: "u", Pass: "p", Name: "notify", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/notify?sslmode=disable", n.DSN())

	r := RabbitMQ{Host: "mq", Port: 5672, User: "guest", Password: "guest"}
	assert.Equal(t, "amqp://guest:guest@mq:5672", r.URL())
}
