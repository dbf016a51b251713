package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/encodarr/internal/config"
	"github.com/jmylchreest/encodarr/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing encodarr configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the effective configuration values in YAML format.

This resolves the config file, environment variables, and defaults the
same way the server does. You can redirect this output to a file to
create a configuration template:

  encodarr config show > config.yaml

Configuration can be set via:
  - Config file (config.yaml, .encodarr.yaml, /etc/encodarr/config.yaml)
  - Environment variables (ENCODARR_SERVER_PORT, ENCODARR_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the ENCODARR_ prefix and underscores for nesting.
Example: server.port -> ENCODARR_SERVER_PORT`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

// toMap converts a struct to a map, formatting durations for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = v
			}
		}
	}
	return result
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# encodarr Configuration")
	fmt.Println("# ======================")
	fmt.Println("#")
	fmt.Println("# Effective values after config file, environment, and defaults.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   ENCODARR_SERVER_HOST, ENCODARR_SERVER_PORT")
	fmt.Println("#   ENCODARR_DATABASE_DRIVER, ENCODARR_DATABASE_DSN")
	fmt.Println("#   ENCODARR_STORAGE_BASE_DIR, ENCODARR_ENCODER_BINARY_PATH")
	fmt.Println("#   ENCODARR_LOGGING_LEVEL, ENCODARR_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
