package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Build       BuildConfig       `mapstructure:"build"`
	SSH         SSHConfig         `mapstructure:"ssh"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"` // empty disables API auth
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn"`
}

type BuildConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	StopGrace    time.Duration `mapstructure:"stop_grace"`
	AllowedTools []string      `mapstructure:"allowed_tools"`
}

type SSHConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	EvictInterval  time.Duration `mapstructure:"evict_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	KnownHosts     string        `mapstructure:"known_hosts"`
}

type CredentialsConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "shipyard.db")
	v.SetDefault("build.timeout", 300*time.Second)
	v.SetDefault("build.stop_grace", 5*time.Second)
	v.SetDefault("build.allowed_tools", []string{"mvn", "./mvnw", "gradle", "./gradlew", "npm", "npx", "yarn", "pnpm"})
	v.SetDefault("ssh.connect_timeout", 30*time.Second)
	v.SetDefault("ssh.idle_timeout", 5*time.Minute)
	v.SetDefault("ssh.evict_interval", time.Minute)
	v.SetDefault("ssh.probe_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
}

// New prepares a viper instance with defaults and SHIPYARD_* environment overrides.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("shipyard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	return cfg, nil
}

// Provider holds the current configuration and swaps it when the config file changes.
type Provider struct {
	v       *viper.Viper
	log     zerolog.Logger
	mu      sync.RWMutex
	current *Config

	reloadMu   sync.Mutex
	lastReload time.Time
	onReload   []func(*Config)
}

// Load reads path (if set) into v and decodes it.
func Load(v *viper.Viper, path string, log zerolog.Logger) (*Provider, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	return &Provider{v: v, log: log, current: cfg}, nil
}

func (p *Provider) Get() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// OnReload registers fn to run after every successful reload.
func (p *Provider) OnReload(fn func(*Config)) {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()
	p.onReload = append(p.onReload, fn)
}

func (p *Provider) Reload() error {
	cfg, err := Decode(p.v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.current = cfg
	p.mu.Unlock()
	return nil
}

// Watch reloads the provider whenever the config file changes on disk.
func (p *Provider) Watch() {
	if p.v.ConfigFileUsed() == "" {
		return
	}
	p.v.OnConfigChange(func(e fsnotify.Event) { p.handleChange(e.Name) })
	p.v.WatchConfig()
}

func (p *Provider) handleChange(name string) {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	// editors fire several events per save
	if time.Since(p.lastReload) < 500*time.Millisecond {
		return
	}
	p.lastReload = time.Now()

	if err := p.Reload(); err != nil {
		p.log.Error().Err(err).Str("file", name).Msg("failed to reload config")
		return
	}
	p.log.Info().Str("file", name).Msg("config reloaded")
	cfg := p.Get()
	for _, fn := range p.onReload {
		fn(cfg)
	}
}
