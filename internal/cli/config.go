package cli

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eunmann/lakemeta/pkg/filescan"
	"github.com/eunmann/lakemeta/pkg/recordkey"
)

// Config is the resolved configuration of one invocation. Flags win over
// LAKEMETA_* environment variables, which win over the config file.
type Config struct {
	Concurrency int              `mapstructure:"concurrency"`
	KeepGoing   bool             `mapstructure:"keep_going"`
	Keygen      recordkey.Config `mapstructure:"keygen"`
	S3          S3Config         `mapstructure:"s3"`
}

// S3Config configures access to s3:// files.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// flagKeys maps config keys to the flags overriding them.
var flagKeys = map[string]string{
	"concurrency":                  "concurrency",
	"keep_going":                   "keep-going",
	"s3.region":                    "s3-region",
	"s3.endpoint":                  "s3-endpoint",
	"s3.path_style":                "s3-path-style",
	"keygen.type":                  "keygen-type",
	"keygen.record_key_fields":     "record-key-fields",
	"keygen.partition_path_fields": "partition-path-fields",
	"keygen.hive_style":            "hive-style",
	"keygen.url_encode":            "url-encode",
}

// loadConfig reads the config file at path (if any), the environment and
// the flags of cmd.
func loadConfig(cmd *cobra.Command, path string) (*Config, error) {
	cfg := &Config{Concurrency: filescan.DefaultConcurrency}

	v := viper.New()
	v.SetEnvPrefix("LAKEMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for key, name := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string(nil), parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
