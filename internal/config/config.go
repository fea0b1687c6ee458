package config

import (
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Default values applied by Load for optional fields left empty.
const (
	DefaultSourcePath  = "/api/exchange/exchanges"
	DefaultWidgetName  = "exchange"
	DefaultPlaceholder = "Select exchange"
	DefaultLogLevel    = "info"
)

// Storage names accepted in the storages list.
const (
	TERMINAL      = "terminal"
	MYSQL         = "mysql"
	ELASTICSEARCH = "elastic_search"
	INFLUXDB      = "influxdb"
	NATSSTORAGE   = "nats"
	CLICKHOUSE    = "clickhouse"
	S3STORAGE     = "s3"
	WEBSOCKET     = "websocket"
)

var storageNames = map[string]bool{
	TERMINAL:      true,
	MYSQL:         true,
	ELASTICSEARCH: true,
	INFLUXDB:      true,
	NATSSTORAGE:   true,
	CLICKHOUSE:    true,
	S3STORAGE:     true,
	WEBSOCKET:     true,
}

// Config contains config values for the app.
// Struct values are loaded from user defined JSON config file.
type Config struct {
	Source     Source     `json:"source"`
	Widget     Widget     `json:"widget"`
	Refresh    Refresh    `json:"refresh"`
	Server     Server     `json:"server"`
	Storages   []string   `json:"storages"`
	Connection Connection `json:"connection"`
	Log        Log        `json:"log"`
}

// Source contains config values for the remote exchange list endpoint.
type Source struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Endpoint returns the full URL of the exchange list.
func (s Source) Endpoint() string {
	return strings.TrimSuffix(s.URL, "/") + "/" + strings.TrimPrefix(s.Path, "/")
}

// Widget contains config values for the selection widget being refreshed.
type Widget struct {
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
}

// Refresh contains config values for scheduling refreshes.
// Zero interval means a single refresh at startup.
type Refresh struct {
	IntervalSec int `json:"interval_sec"`
}

// Server contains config values for the document HTTP server.
// Empty address disables the server.
type Server struct {
	Address string `json:"address"`
}

// Connection contains config values for different API and storage connections.
type Connection struct {
	REST       REST       `json:"rest"`
	Terminal   Terminal   `json:"terminal"`
	MySQL      MySQL      `json:"mysql"`
	ES         ES         `json:"elastic_search"`
	InfluxDB   InfluxDB   `json:"influxdb"`
	NATS       NATS       `json:"nats"`
	ClickHouse ClickHouse `json:"clickhouse"`
	S3         S3         `json:"s3"`
	WS         WS         `json:"websocket"`
}

// REST contains config values for REST API connection.
type REST struct {
	ReqTimeoutSec       int `json:"request_timeout_sec"`
	MaxIdleConns        int `json:"max_idle_conns"`
	MaxIdleConnsPerHost int `json:"max_idle_conns_per_host"`
}

// Terminal contains config values for terminal display.
type Terminal struct {
	TimeFormat string `json:"time_format"`
}

// MySQL contains config values for mysql.
type MySQL struct {
	User               string `json:"user"`
	Password           string `json:"password"`
	URL                string `json:"URL"`
	Schema             string `json:"schema"`
	ReqTimeoutSec      int    `json:"request_timeout_sec"`
	ConnMaxLifetimeSec int    `json:"conn_max_lifetime_sec"`
	MaxOpenConns       int    `json:"max_open_conns"`
	MaxIdleConns       int    `json:"max_idle_conns"`
}

// ES contains config values for elastic search.
type ES struct {
	Addresses           []string `json:"addresses"`
	Username            string   `json:"username"`
	Password            string   `json:"password"`
	IndexName           string   `json:"index_name"`
	ReqTimeoutSec       int      `json:"request_timeout_sec"`
	MaxIdleConns        int      `json:"max_idle_conns"`
	MaxIdleConnsPerHost int      `json:"max_idle_conns_per_host"`
}

// InfluxDB contains config values for influxdb.
type InfluxDB struct {
	Organization  string `json:"organization"`
	Bucket        string `json:"bucket"`
	Token         string `json:"token"`
	URL           string `json:"URL"`
	ReqTimeoutSec int    `json:"request_timeout_sec"`
	MaxIdleConns  int    `json:"max_idle_conns"`
}

// NATS contains config values for nats.
type NATS struct {
	Addresses       []string `json:"addresses"`
	Username        string   `json:"username"`
	Password        string   `json:"password"`
	SubjectBaseName string   `json:"subject_base_name"`
	ReqTimeoutSec   int      `json:"request_timeout_sec"`
}

// ClickHouse contains config values for clickhouse.
type ClickHouse struct {
	User          string   `json:"user"`
	Password      string   `json:"password"`
	URL           string   `json:"URL"`
	Schema        string   `json:"schema"`
	ReqTimeoutSec int      `json:"request_timeout_sec"`
	AltHosts      []string `json:"alt_hosts"`
	Compression   bool     `json:"compression"`
}

// S3 contains config values for s3.
type S3 struct {
	AWSRegion           string `json:"aws_region"`
	AccessKeyID         string `json:"access_key_id"`
	SecretAccessKey     string `json:"secret_access_key"`
	Bucket              string `json:"bucket"`
	UsePrefixForObjName bool   `json:"use_prefix_for_object_name"`
	ReqTimeoutSec       int    `json:"request_timeout_sec"`
	MaxIdleConns        int    `json:"max_idle_conns"`
	MaxIdleConnsPerHost int    `json:"max_idle_conns_per_host"`
}

// WS contains config values for the websocket snapshot feed.
type WS struct {
	WriteTimeoutSec int `json:"write_timeout_sec"`
}

// Log contains config values for logging.
type Log struct {
	Level    string `json:"level"`
	FilePath string `json:"file_path"`
}

// Load reads the JSON config file at path, fills defaults and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening config file")
	}
	defer f.Close()

	var cfg Config
	if err = jsoniter.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config file")
	}

	cfg.setDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Source.Path == "" {
		c.Source.Path = DefaultSourcePath
	}
	if c.Widget.Name == "" {
		c.Widget.Name = DefaultWidgetName
	}
	if c.Widget.Placeholder == "" {
		c.Widget.Placeholder = DefaultPlaceholder
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate checks user defined values which have no sensible default.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Source.URL) == "" {
		return errors.New("source url is required")
	}
	if c.Refresh.IntervalSec < 0 {
		return errors.New("refresh interval_sec should not be negative")
	}
	for _, str := range c.Storages {
		if !storageNames[str] {
			return errors.Errorf("unknown storage %q", str)
		}
	}
	if c.HasStorage(WEBSOCKET) && c.Server.Address == "" {
		return errors.New("websocket storage needs server address")
	}
	switch c.Log.Level {
	case "error", "info", "debug":
	default:
		return errors.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// HasStorage reports whether the named storage is enabled.
func (c *Config) HasStorage(name string) bool {
	for _, str := range c.Storages {
		if str == name {
			return true
		}
	}
	return false
}
