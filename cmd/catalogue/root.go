package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/catalogue/pkg/catalogue/config"
	"github.com/jamesainslie/catalogue/pkg/catalogue/logging"
	"github.com/jamesainslie/catalogue/pkg/catalogue/output"
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

// errAttention is returned when a command completed but its outcome needs
// the operator (mismatch, unclean compare). It exits 2 without an error line.
// Notices such as an existing lock are reported and exit 0.
var errAttention = errors.New("outcome needs attention")

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "catalogue",
		Short: "Record the provenance of analysis results",
		Long: `Catalogue records which input data and which code commit produced a
set of analysis results.

Run 'catalogue engage' before an analysis to snapshot the input data and
code, and 'catalogue disengage' afterwards. If neither changed in between,
a permanent record of input, code and output hashes is written to the
catalogue_results directory.

Examples:
  catalogue engage                          # Snapshot ./data and the current repo
  catalogue disengage --output_data out     # Record results in ./out
  catalogue compare 20240301-120500         # Compare a record with the current state
  catalogue compare a.json b.json           # Compare two records
  catalogue history                         # List recent records
  catalogue config init                     # Write ./catalogue_config.yaml`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/catalogue/config.yaml)")
	flags.String(config.KeyInputData, "", "path to the input data (default: data)")
	flags.String(config.KeyCode, "", "path inside the git repository holding the code (default: .)")
	flags.String(config.KeyResults, "", "directory for lock files and records; cannot be the code directory (default: catalogue_results)")
	flags.String(config.KeyOutputData, "", "path to the analysis output data (default: results)")
	flags.String(config.KeyCSV, "", "record to this CSV file inside catalogue_results instead of one JSON file per record")
	flags.IntP("workers", "w", 0, "concurrent output file hashes (0=auto)")
	flags.StringP("format", "o", "pretty", "output format (pretty, plain, json, yaml, template)")
	flags.String("template", "", "Go template for output, e.g. '{{.Manifest.CodeCommit}}' (implies --format template)")
	flags.BoolP("quiet", "q", false, "minimal output")
	flags.BoolP("verbose", "v", false, "debug output on stderr")

	// Bind flags to viper
	for _, key := range config.ProjectKeys {
		_ = v.BindPFlag(key, flags.Lookup(key))
	}
	_ = v.BindPFlag("hash.workers", flags.Lookup("workers"))
	_ = v.BindPFlag("format", flags.Lookup("format"))
	_ = v.BindPFlag("template", flags.Lookup("template"))
	_ = v.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = v.BindPFlag("verbose", flags.Lookup("verbose"))
}

// setup loads configuration and starts logging.
func setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	var err error
	cfg, err = config.Load(v, ".")
	if err != nil {
		return err
	}

	consoleLevel := ""
	if getVerbose() {
		consoleLevel = "debug"
	}
	if err := logging.Init(cfg.LoggingConfig(consoleLevel)); err != nil {
		// Logging is best effort; continue without it.
		printVerbose("logging disabled: %v", err)
	}
	logging.Get("cli").Debug("configuration loaded", "command", cmd.Name(), "config", v.ConfigFileUsed())
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	// Commands that fail skip post-run hooks, so the log is closed here.
	_ = logging.Close()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errAttention):
		return 2
	default:
		printError("%v", err)
		return 1
	}
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return v.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return v.GetBool("quiet")
}

// render writes the report in the selected output format.
func render(r *output.Report) error {
	name := v.GetString("format")
	tmpl := v.GetString("template")
	if tmpl != "" {
		name = "template"
	}
	formatter, err := output.Get(name)
	if err != nil {
		return fmt.Errorf("unknown output format %q: available formats are %v", name, output.Available())
	}
	if tf, ok := formatter.(*output.TemplateFormatter); ok {
		if tmpl == "" {
			return fmt.Errorf("--format template requires --template")
		}
		tf.SetTemplate(tmpl)
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, r); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	if getQuiet() && name != "json" && name != "yaml" && name != "template" {
		if !r.OK {
			fmt.Fprintln(os.Stderr, r.Message)
		}
	} else {
		fmt.Print(buf.String())
	}
	if !r.OK && !r.Notice {
		return errAttention
	}
	return nil
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
