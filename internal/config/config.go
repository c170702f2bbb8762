package config

import (
	"errors"
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Coordinator is the configuration of the rendezvous coordinator.
type Coordinator struct {
	Env              string        `yaml:"env" env:"ENV" env-default:"local"`
	Listen           string        `yaml:"listen" env:"LISTEN" env-default:"127.0.0.1:5000"`
	CredentialsFile  string        `yaml:"credentials_file" env:"CREDENTIALS_FILE" env-default:"credentials.txt"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout" env:"HEARTBEAT_TIMEOUT" env-default:"3s"`
	SweepInterval    time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"1s"`
	BufferSize       int           `yaml:"buffer_size" env:"BUFFER_SIZE" env-default:"1024"`
	RateLimit        float64       `yaml:"rate_limit" env:"RATE_LIMIT" env-default:"50"`
	RateBurst        int           `yaml:"rate_burst" env:"RATE_BURST" env-default:"100"`
	MDNS             MDNS          `yaml:"mdns"`
}

type MDNS struct {
	Enabled  bool   `yaml:"enabled" env:"MDNS_ENABLED" env-default:"false"`
	Instance string `yaml:"instance" env:"MDNS_INSTANCE" env-default:"peersync"`
}

// Peer is the configuration of a file-sharing peer.
type Peer struct {
	Env               string        `yaml:"env" env:"ENV" env-default:"local"`
	LogFile           string        `yaml:"log_file" env:"LOG_FILE" env-default:"peer.log"`
	Coordinator       string        `yaml:"coordinator" env:"COORDINATOR"`
	AdvertiseHost     string        `yaml:"advertise_host" env:"ADVERTISE_HOST" env-default:"127.0.0.1"`
	DataListen        string        `yaml:"data_listen" env:"DATA_LISTEN" env-default:"127.0.0.1:0"`
	ShareDir          string        `yaml:"share_dir" env:"SHARE_DIR" env-default:"."`
	DownloadDir       string        `yaml:"download_dir" env:"DOWNLOAD_DIR" env-default:"."`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL" env-default:"2s"`
	RequestTimeout    time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"5s"`
	MaxUploads        int           `yaml:"max_uploads" env:"MAX_UPLOADS" env-default:"10"`
	SharesDB          string        `yaml:"shares_db" env:"SHARES_DB" env-default:"shares.db"`
	HistoryDB         string        `yaml:"history_db" env:"HISTORY_DB" env-default:"history.sqlite"`
	AutoPublish       bool          `yaml:"auto_publish" env:"AUTO_PUBLISH" env-default:"false"`
	Username          string        `yaml:"username" env:"PEER_USERNAME"`
	Password          string        `yaml:"password" env:"PEER_PASSWORD"`
}

var (
	ErrInvalidBufferSize = errors.New("buffer size must be positive")
	ErrInvalidTimeout    = errors.New("timeouts and intervals must be positive")
	ErrInvalidMaxUploads = errors.New("max uploads must be positive")
)

// Validate checks values cleanenv cannot express.
func (c *Coordinator) Validate() error {
	if c.BufferSize <= 0 {
		return ErrInvalidBufferSize
	}
	if c.HeartbeatTimeout <= 0 || c.SweepInterval <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// Validate checks values cleanenv cannot express.
func (p *Peer) Validate() error {
	if p.HeartbeatInterval <= 0 || p.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if p.MaxUploads <= 0 {
		return ErrInvalidMaxUploads
	}
	return nil
}

// MustLoadCoordinator loads the coordinator configuration or panics.
func MustLoadCoordinator() *Coordinator {
	var cfg Coordinator
	mustRead(fetchConfigPath(), &cfg)

	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}
	return &cfg
}

// MustLoadPeer loads the peer configuration or panics.
func MustLoadPeer() *Peer {
	var cfg Peer
	mustRead(fetchConfigPath(), &cfg)

	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}
	return &cfg
}

// Load reads configPath (or the environment alone when configPath is empty)
// into cfg.
func Load(configPath string, cfg any) error {
	// .env is optional
	_ = godotenv.Load()

	if configPath == "" {
		return cleanenv.ReadEnv(cfg)
	}

	if _, err := os.Stat(configPath); err != nil {
		return err
	}
	return cleanenv.ReadConfig(configPath, cfg)
}

func mustRead(configPath string, cfg any) {
	if err := Load(configPath, cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}
}

// Priority: flag > env > default.
// default value is empty string.
func fetchConfigPath() string {
	var res string

	if flag.Lookup("config") == nil {
		flag.StringVar(&res, "config", "", "path to config file")
	}
	flag.Parse()

	if f := flag.Lookup("config"); f != nil {
		res = f.Value.String()
	}

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}
