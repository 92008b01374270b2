package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port         int           `yaml:"port" default:"8000"`
		Host         string        `yaml:"host" default:"0.0.0.0"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
		IdleTimeout  time.Duration `yaml:"idle_timeout" default:"60s"`
	} `yaml:"server"`

	Browser struct {
		AIStudioURL       string        `yaml:"aistudio_url" default:"https://aistudio.google.com/"`
		HeadlessMode      bool          `yaml:"headless_mode" default:"true"`
		UserAgent         string        `yaml:"user_agent"`
		InitialPoolSize   int           `yaml:"initial_pool_size" default:"3"`
		MaxPoolSize       int           `yaml:"max_pool_size" default:"10"`
		OperationTimeout  time.Duration `yaml:"operation_timeout" default:"30s"`
		LoginCheckTimeout time.Duration `yaml:"login_check_timeout" default:"5s"`
		DebuggingPort     int           `yaml:"debugging_port" default:"0"`
	} `yaml:"browser"`

	Retry struct {
		Attempts     int           `yaml:"attempts" default:"3"`
		InitialDelay time.Duration `yaml:"initial_delay" default:"1s"`
		MaxDelay     time.Duration `yaml:"max_delay" default:"10s"`
		Factor       float64       `yaml:"factor" default:"2.0"`
		Jitter       float64       `yaml:"jitter" default:"0.1"`
	} `yaml:"retry"`

	Performance struct {
		MaxConcurrentRequests int           `yaml:"max_concurrent_requests" default:"5"`
		CleanupDelay          time.Duration `yaml:"cleanup_delay" default:"5m"`
	} `yaml:"performance"`

	Models struct {
		Supported []string `yaml:"supported"`
		Default   string   `yaml:"default" default:"Gemini 1.5 Pro"`
	} `yaml:"models"`

	API struct {
		Keys []string `yaml:"keys"`
	} `yaml:"api"`

	KeepAlive struct {
		Enabled       bool          `yaml:"enabled" default:"true"`
		CheckInterval time.Duration `yaml:"check_interval" default:"5m"`
	} `yaml:"keep_alive"`

	RateLimit struct {
		Enabled           bool `yaml:"enabled" default:"true"`
		RequestsPerMinute int  `yaml:"requests_per_minute" default:"60"`
		Burst             int  `yaml:"burst" default:"10"`
	} `yaml:"rate_limit"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`

		Adapters []struct {
			Name    string                 `yaml:"name"`
			Type    string                 `yaml:"type"`
			Enabled bool                   `yaml:"enabled"`
			Options map[string]interface{} `yaml:"options"`
		} `yaml:"adapters"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool          `yaml:"enabled" default:"false"`
		URL      string        `yaml:"url" default:"redis://localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db" default:"0"`
		Timeout  time.Duration `yaml:"timeout" default:"5s"`
		TTL      time.Duration `yaml:"ttl" default:"24h"`
	} `yaml:"redis"`
}

// expandEnvVars expands environment variables in a string using ${VAR} or $VAR syntax
func expandEnvVars(s string) string {
	// Expand ${VAR} syntax
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	// Expand $VAR syntax
	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	s = re2.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	config := &Config{}

	// Set defaults
	config.Server.Port = 8000
	config.Server.Host = "0.0.0.0"
	config.Server.ReadTimeout = 30 * time.Second
	config.Server.WriteTimeout = 30 * time.Second
	config.Server.IdleTimeout = 60 * time.Second

	config.Browser.AIStudioURL = "https://aistudio.google.com/"
	config.Browser.HeadlessMode = true
	config.Browser.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	config.Browser.InitialPoolSize = 3
	config.Browser.MaxPoolSize = 10
	config.Browser.OperationTimeout = 30 * time.Second
	config.Browser.LoginCheckTimeout = 5 * time.Second

	config.Retry.Attempts = 3
	config.Retry.InitialDelay = 1 * time.Second
	config.Retry.MaxDelay = 10 * time.Second
	config.Retry.Factor = 2.0
	config.Retry.Jitter = 0.1

	config.Performance.MaxConcurrentRequests = 5
	config.Performance.CleanupDelay = 5 * time.Minute

	config.Models.Supported = []string{
		"Gemini 1.5 Pro",
		"Gemini 1.5 Flash",
		"Gemini 2.0 Flash",
	}
	config.Models.Default = "Gemini 1.5 Pro"

	config.KeepAlive.Enabled = true
	config.KeepAlive.CheckInterval = 5 * time.Minute

	config.RateLimit.Enabled = true
	config.RateLimit.RequestsPerMinute = 60
	config.RateLimit.Burst = 10

	config.Logging.Level = "info"
	config.Logging.Format = "json"
	config.Logging.Output = "stdout"

	config.Redis.URL = "redis://localhost:6379"
	config.Redis.DB = 0
	config.Redis.Timeout = 5 * time.Second
	config.Redis.TTL = 24 * time.Hour

	// Load from YAML file if it exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			// Expand environment variables in the YAML content
			yamlContent := expandEnvVars(string(data))

			if err := yaml.Unmarshal([]byte(yamlContent), config); err != nil {
				return nil, err
			}
		}
	}

	// Override with environment variables
	config.loadFromEnv()

	return config, nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}

	if url := os.Getenv("AISTUDIO_URL"); url != "" {
		c.Browser.AIStudioURL = url
	}

	if headless := os.Getenv("BROWSER_HEADLESS"); headless != "" {
		c.Browser.HeadlessMode = headless == "true" || headless == "1"
	}

	if userAgent := os.Getenv("BROWSER_USER_AGENT"); userAgent != "" {
		c.Browser.UserAgent = userAgent
	}

	if poolSize := os.Getenv("BROWSER_INITIAL_POOL_SIZE"); poolSize != "" {
		if size, err := strconv.Atoi(poolSize); err == nil {
			c.Browser.InitialPoolSize = size
		}
	}

	if maxPool := os.Getenv("BROWSER_MAX_POOL_SIZE"); maxPool != "" {
		if size, err := strconv.Atoi(maxPool); err == nil {
			c.Browser.MaxPoolSize = size
		}
	}

	if opTimeout := os.Getenv("BROWSER_OPERATION_TIMEOUT"); opTimeout != "" {
		if timeout, err := time.ParseDuration(opTimeout); err == nil {
			c.Browser.OperationTimeout = timeout
		}
	}

	if maxConcurrent := os.Getenv("MAX_CONCURRENT_REQUESTS"); maxConcurrent != "" {
		if n, err := strconv.Atoi(maxConcurrent); err == nil {
			c.Performance.MaxConcurrentRequests = n
		}
	}

	if cleanupDelay := os.Getenv("REQUEST_CLEANUP_DELAY"); cleanupDelay != "" {
		if delay, err := time.ParseDuration(cleanupDelay); err == nil {
			c.Performance.CleanupDelay = delay
		}
	}

	if keepAlive := os.Getenv("KEEP_ALIVE_ENABLED"); keepAlive != "" {
		c.KeepAlive.Enabled = keepAlive == "true" || keepAlive == "1"
	}

	if interval := os.Getenv("KEEP_ALIVE_CHECK_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			c.KeepAlive.CheckInterval = d
		}
	}

	if apiKeys := os.Getenv("API_KEYS"); apiKeys != "" {
		keys := make([]string, 0)
		for _, key := range strings.Split(apiKeys, ",") {
			if key = strings.TrimSpace(key); key != "" {
				keys = append(keys, key)
			}
		}
		c.API.Keys = keys
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	if redisEnabled := os.Getenv("REDIS_ENABLED"); redisEnabled != "" {
		c.Redis.Enabled = redisEnabled == "true" || redisEnabled == "1"
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.URL = redisURL
	}

	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		c.Redis.Password = redisPassword
	}

	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			c.Redis.DB = db
		}
	}

	if redisTimeout := os.Getenv("REDIS_TIMEOUT"); redisTimeout != "" {
		if timeout, err := time.ParseDuration(redisTimeout); err == nil {
			c.Redis.Timeout = timeout
		}
	}
}
