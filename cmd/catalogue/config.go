package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/catalogue/pkg/catalogue/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage catalogue configuration settings.

Settings are resolved from, highest precedence first:
  1. command-line flags
  2. CATALOGUE_* environment variables (e.g. CATALOGUE_INPUT_DATA)
  3. ./catalogue_config.yaml in the working directory
  4. $XDG_CONFIG_HOME/catalogue/config.yaml
  5. built-in defaults

The project file may only contain input_data, code, catalogue_results,
output_data and csv, each a string or null.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration merged from all sources.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the project configuration file",
	Long: `Write ./catalogue_config.yaml with the current path settings, so later runs
in this directory need no flags. Values of a previous file are printed
before it is replaced.

With --user, write a default user configuration file instead if none exists.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Show configuration file paths",
	Long:        `Display the paths of the user and project configuration files.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runConfigPath,
}

var configInitUser bool

func init() {
	configInitCmd.Flags().BoolVar(&configInitUser, "user", false, "write the user config file instead of the project file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	if configFile := v.ConfigFileUsed(); configFile != "" {
		fmt.Printf("Config file:  %s\n", configFile)
	} else {
		fmt.Println("Config file:  (none found)")
	}
	if _, found, _ := config.ReadProject("."); found {
		fmt.Printf("Project file: %s\n", config.ProjectPath("."))
	} else {
		fmt.Println("Project file: (none found)")
	}
	fmt.Println()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Print(string(data))
	fmt.Printf("# hash workers in effect: %d\n", cfg.HashWorkers())

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	var overrides []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "CATALOGUE_") {
			overrides = append(overrides, kv)
		}
	}
	sort.Strings(overrides)
	if len(overrides) == 0 {
		fmt.Println("(none)")
	}
	for _, kv := range overrides {
		fmt.Println(kv)
	}
	return nil
}

// runConfigInit writes the project file or the default user config.
func runConfigInit(cmd *cobra.Command, args []string) error {
	if configInitUser {
		existed := fileExists(config.UserConfigPath())
		path, err := config.WriteDefault()
		if err != nil {
			return err
		}
		if existed {
			printInfo("Config file already exists: %s", path)
			return nil
		}
		printInfo("Created default config file: %s", path)
		return nil
	}

	values := map[string]string{
		config.KeyInputData:  cfg.InputData,
		config.KeyCode:       cfg.Code,
		config.KeyResults:    cfg.Results,
		config.KeyOutputData: cfg.OutputData,
	}
	if cfg.CSV != "" {
		values[config.KeyCSV] = cfg.CSV
	}
	if cfg.Code == cfg.Results {
		return fmt.Errorf("the %s and %s paths cannot be the same", config.KeyResults, config.KeyCode)
	}

	previous, found, err := config.WriteProject(".", values)
	if err != nil {
		return err
	}
	if found {
		printInfo("Previous config file found with values:")
		printValues(previous)
	} else {
		printInfo("No previous config file found")
	}
	printInfo("New config file values:")
	printValues(values)
	printInfo("Written to %s", config.ProjectPath("."))
	return nil
}

func printValues(values map[string]string) {
	for _, k := range config.ProjectKeys {
		val, ok := values[k]
		if !ok {
			val = "null"
		}
		printInfo("  %s: %s", k, val)
	}
}

// runConfigPath shows the config file paths.
func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Println(config.UserConfigPath())
	fmt.Println(config.ProjectPath("."))
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
