package config

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"ftp_bounce/models"
)

var (
	ErrMissingRemoteHost = errors.New("remote host is required")
	ErrMissingLocalHost  = errors.New("local host is required")
)

const (
	DefaultControlPort     = 21
	DefaultBouncePort      = 1258
	DefaultTraversalDepth  = 3
	DefaultControlTimeout  = 10 * time.Second
	DefaultDataReadTimeout = 60 * time.Second
	DefaultMaxHandlers     = 16
)

// Config параметры запуска
type Config struct {
	RemoteHost string `yaml:"remote_host"`
	LocalHost  string `yaml:"local_host"`
	// BindHost адрес, на котором слушает приёмник данных
	BindHost    string `yaml:"bind_host"`
	ControlPort int    `yaml:"control_port"`
	BouncePort  int    `yaml:"bounce_port"`

	TraversalDepth  int           `yaml:"traversal_depth"`
	ControlTimeout  time.Duration `yaml:"control_timeout"`
	DataReadTimeout time.Duration `yaml:"data_read_timeout"`
	MaxHandlers     int           `yaml:"max_handlers"`
	// Settle сколько ждать соединение данных после команды, 0 - не ждать
	Settle time.Duration `yaml:"settle"`

	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	OutputDir string `yaml:"output_dir"`
	Journal   string `yaml:"journal"`
	Preflight bool   `yaml:"preflight"`
}

// Default возвращает конфигурацию по умолчанию
func Default() Config {
	return Config{
		BindHost:        "0.0.0.0",
		ControlPort:     DefaultControlPort,
		BouncePort:      DefaultBouncePort,
		TraversalDepth:  DefaultTraversalDepth,
		ControlTimeout:  DefaultControlTimeout,
		DataReadTimeout: DefaultDataReadTimeout,
		MaxHandlers:     DefaultMaxHandlers,
		User:            "anonymous",
		Password:        "pass",
		OutputDir:       ".",
	}
}

// Load читает YAML файл поверх значений по умолчанию и применяет переменные окружения.
// Пустой путь означает только значения по умолчанию и окружение.
func Load(path string) (Config, error) {
	conf := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return conf, errors.Wrapf(err, "reading config file %s", path)
		}
		if err := yaml.UnmarshalStrict(data, &conf); err != nil {
			return conf, errors.Wrapf(err, "parsing config file %s", path)
		}
	}
	if err := conf.applyEnv(); err != nil {
		return conf, err
	}
	return conf, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("FTPBOUNCE_RHOST"); v != "" {
		c.RemoteHost = v
	}
	if v := os.Getenv("FTPBOUNCE_LHOST"); v != "" {
		c.LocalHost = v
	}
	if v := os.Getenv("FTPBOUNCE_PASSWORD"); v != "" {
		c.Password = v
	}
	ints := map[string]*int{
		"FTPBOUNCE_RPORT": &c.ControlPort,
		"FTPBOUNCE_LPORT": &c.BouncePort,
		"FTPBOUNCE_DEPTH": &c.TraversalDepth,
	}
	for name, dst := range ints {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "environment variable %s", name)
		}
		*dst = n
	}
	return nil
}

// Target собирает описание цели из конфигурации
func (c Config) Target() models.Target {
	return models.Target{
		RemoteHost:  c.RemoteHost,
		ControlPort: c.ControlPort,
		LocalHost:   c.LocalHost,
		BouncePort:  c.BouncePort,
	}
}

// Validate проверяет конфигурацию перед запуском
func (c Config) Validate() error {
	if c.RemoteHost == "" {
		return ErrMissingRemoteHost
	}
	if c.LocalHost == "" {
		return ErrMissingLocalHost
	}
	if ip := net.ParseIP(c.LocalHost); ip == nil || ip.To4() == nil {
		return errors.Errorf("local host %q must be an IPv4 address", c.LocalHost)
	}
	if c.ControlPort <= 0 || c.ControlPort > 65535 {
		return errors.Errorf("invalid control port %d", c.ControlPort)
	}
	// 0 допустим только для тестов, порт выбирает система
	if c.BouncePort < 0 || c.BouncePort > 65535 {
		return errors.Errorf("invalid bounce port %d", c.BouncePort)
	}
	if c.TraversalDepth < 0 {
		return errors.Errorf("invalid traversal depth %d", c.TraversalDepth)
	}
	if c.ControlTimeout <= 0 || c.DataReadTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.MaxHandlers <= 0 {
		return errors.Errorf("invalid max handlers %d", c.MaxHandlers)
	}
	return nil
}
