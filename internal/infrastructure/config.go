package infra

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix env prefix for viper
const EnvPrefix = "SYNCD"

// runtime environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// AppConfig App option object
type AppConfig struct {
	AppID          string        `mapstructure:"app_id" json:"app_id" yaml:"app_id" validate:"required"`            // Application ID
	Host           string        `mapstructure:"host" json:"host" yaml:"host"`                                      // bind host address
	Port           int           `mapstructure:"port" json:"port" yaml:"port"`                                      // bind listen port
	Env            string        `mapstructure:"env" json:"env" yaml:"env" validate:"oneof=development production"` // runtime environment
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"`     // abort requests exceeding this duration
	Sync           struct {
		QuietPeriod   time.Duration `mapstructure:"quiet_period" json:"quiet_period" yaml:"quiet_period" validate:"min=0"`       // debounce window for outbound writes
		FlushInterval time.Duration `mapstructure:"flush_interval" json:"flush_interval" yaml:"flush_interval" validate:"min=0"` // background flush period, 0 disables
		DeviceID      string        `mapstructure:"device_id" json:"device_id" yaml:"device_id"`                                 // stable client identity, generated when empty
		IDLength      int           `mapstructure:"id_length" json:"id_length" yaml:"id_length"`                                 // length of the generated device ID
	} `mapstructure:"sync" json:"sync" yaml:"sync"`
	Backend struct {
		BaseURL string        `mapstructure:"base_url" json:"base_url" yaml:"base_url" validate:"required,url"` // progress API base URL
		Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`                            // per-call HTTP timeout
	} `mapstructure:"backend" json:"backend" yaml:"backend"`
	Cache struct {
		Driver   string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"oneof=redis sqlite memory"` // local cache backend
		Path     string `mapstructure:"path" json:"path" yaml:"path"`                                           // sqlite database path
		Host     string `mapstructure:"host" json:"host" yaml:"host"`                                           // redis host
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`                                           // redis port
		Password string `mapstructure:"password" json:"password" yaml:"password"`                               // redis password
	} `mapstructure:"cache" json:"cache" yaml:"cache"`
	Logging struct {
		FilePath string `mapstructure:"file_path" json:"file_path" yaml:"file_path"`                            // log file path
		Level    string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error"` // global logging level
	} `mapstructure:"logging" json:"logging" yaml:"logging"`
	DevOP struct {
		APM bool `mapstructure:"apm" json:"apm" yaml:"apm"`
	} `mapstructure:"devop" json:"devop" yaml:"devop"`
}

// InitConfig init app config using viper
func InitConfig() (*AppConfig, error) {
	// app
	pflag.String("host", "127.0.0.1", "binding address")
	pflag.String("app_id", "", "application identifier (required)")
	pflag.String("env", "development", "runtime environment, can be 'development' or 'production'")
	pflag.Int("port", 8081, "listening port")
	pflag.Duration("request_timeout", 30*time.Second, "abort requests exceeding this duration")

	// sync engine
	pflag.Duration("sync.quiet_period", 1*time.Second, "quiet period before a local mutation is pushed to the backend")
	pflag.Duration("sync.flush_interval", 5*time.Minute, "period of the background flush of unsynced records, 0 disables it")
	pflag.String("sync.device_id", "", "stable device identifier, generated on startup when empty")
	pflag.Int("sync.id_length", 24, "length of the generated device identifier")

	// backend
	pflag.String("backend.base_url", "", "base URL of the progress backend (required)")
	pflag.Duration("backend.timeout", 15*time.Second, "HTTP timeout for backend calls")

	// local cache
	pflag.String("cache.driver", "memory", "local cache driver, one of 'redis', 'sqlite' or 'memory'")
	pflag.String("cache.path", "progress-cache.db", "sqlite cache database path")
	pflag.String("cache.host", "127.0.0.1", "redis host")
	pflag.Int("cache.port", 6379, "redis server port")
	pflag.String("cache.password", "", "redis server password")

	// logging
	pflag.String("logging.level", "info", "logging level")
	pflag.String("logging.file_path", "", "log to file")

	// DevOp
	pflag.Bool("devop.apm", false, "enable apm metrics")

	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config = new(AppConfig)
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.Logging.Level == "debug" {
		if configJSON, err := json.MarshalIndent(config, "", "  "); err == nil {
			log.Printf("App config: %s\n", string(configJSON))
		}
	}
	return config, nil
}

func validateConfig(config *AppConfig) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if name == "-" || name == "" {
			name = fld.Tag.Get("yaml")
			if name == "-" || name == "" {
				return ""
			}
		}
		return name
	})
	err := validate.Struct(config)
	if _, ok := err.(*validator.InvalidValidationError); ok {
		log.Fatalf("Failed to validate config: %s", err)
	}
	if err == nil {
		return nil
	}

	var msg []string
	for _, field := range err.(validator.ValidationErrors) {
		namespace := field.Namespace()
		fieldName := namespace[strings.IndexByte(namespace, '.')+1:] // trim top level namespace
		switch field.Tag() {
		case "required":
			msg = append(msg, fmt.Sprintf("%s is required", fieldName))
		case "oneof":
			msg = append(msg, fmt.Sprintf("%s must be one of (%s)", fieldName, field.Param()))
		case "url":
			msg = append(msg, fmt.Sprintf("%s must be a valid URL", fieldName))
		case "min":
			msg = append(msg, fmt.Sprintf("%s must be at least %s", fieldName, field.Param()))
		}
	}
	if len(msg) > 0 {
		return fmt.Errorf("failed to validate config: \n%s", strings.Join(msg, "\n"))
	}
	return nil
}
