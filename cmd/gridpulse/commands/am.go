package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/gridpulse/am"
	"github.com/teranos/gridpulse/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage gridpulse configuration",
	Long: `am — Manage gridpulse configuration ("I am")

Display and manage gridpulse configuration settings.

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/gridpulse/config.toml)
3. User config (~/.gridpulse/am.toml)
4. Project config (gridpulse.toml or am.toml, searched upward from cwd)
5. Explicit config (--config)
6. Environment variables (GRIDPULSE_* prefix)

Examples:
  gridpulse am show                    # Show the effective configuration
  gridpulse am show --format json      # ... as JSON
  gridpulse am get planner.hard_cap    # Get one value
  gridpulse am validate                # Validate files and the merged result
  gridpulse am init                    # Write a starter ~/.gridpulse/am.toml`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective gridpulse configuration merged from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., planner.hard_cap, executor.disk.path)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long: `Check every config file for syntax errors and unknown keys, then
validate the merged configuration including all job definitions.

With --watch the check is repeated every time a config file is saved,
until interrupted.`,
	RunE: runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long: `Show the configuration cascade and which files were checked.

Lists all configuration sources in order of precedence, showing
which files exist and which settings each one contributes.`,
	RunE: runAmWhere,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter configuration file",
	Long: `Write the default configuration with one example job. Without a path
the user config ~/.gridpulse/am.toml is written. An existing file is rotated
into .back1..3 and only replaced with --force.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmInit,
}

var (
	configFormat  string
	initForce     bool
	validateWatch bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", am.FormatTOML, "Output format: toml, json, yaml")
	amValidateCmd.Flags().BoolVar(&validateWatch, "watch", false, "Re-validate whenever a config file changes")
	amInitCmd.Flags().BoolVar(&initForce, "force", false, "Replace an existing file (a backup is kept)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	settings, err := am.EffectiveSettings()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	out, err := am.Render(settings, configFormat)
	if err != nil {
		return err
	}
	if configFormat != am.FormatJSON {
		fmt.Println("# gridpulse configuration")
	}
	fmt.Print(string(out))
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v, err := am.GetViper()
	if err != nil {
		return err
	}
	if !v.IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}

	fmt.Println(v.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	err := validateOnce()
	if !validateWatch {
		return err
	}
	if err != nil {
		pterm.Error.Println(err)
	}

	paths := make([]string, 0, 4)
	for _, cf := range am.ConfigPaths() {
		paths = append(paths, cf.Path)
	}
	cw, err := am.NewConfigWatcher(paths, func(cfg *am.Config, err error) {
		if err != nil {
			pterm.Error.Println(reloadProblem(err))
			return
		}
		pterm.Success.Printf("Configuration is valid (%d jobs)\n", len(cfg.Jobs))
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	pterm.Info.Println("Watching config files, Ctrl+C to stop")
	return cw.Run(ctx)
}

// reloadProblem tells a config that parses but breaks a rule apart from one
// that could not be read at all.
func reloadProblem(err error) string {
	if errors.IsInvalidRequestError(err) {
		return fmt.Sprintf("Configuration is invalid: %v", err)
	}
	return fmt.Sprintf("Configuration could not be loaded: %v", err)
}

func validateOnce() error {
	problems := 0
	for _, cf := range am.ConfigPaths() {
		if _, err := os.Stat(cf.Path); err != nil {
			continue
		}
		report, err := am.CheckFile(cf.Path)
		if err != nil {
			pterm.Error.Printf("%v\n%s\n", err, errors.FlattenDetails(err))
			problems++
			continue
		}
		for _, key := range report.UnknownKeys {
			pterm.Warning.Printf("%s: unknown key %s\n", cf.Path, key)
		}
	}
	if problems > 0 {
		return errors.Newf("%d config file(s) could not be parsed", problems)
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	pterm.Success.Printf("Configuration is valid (%d jobs)\n", len(cfg.Jobs))
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return errors.Wrap(err, "failed to get config introspection")
	}

	fmt.Println("Configuration cascade (later overrides earlier):")
	for i, cf := range append([]am.ConfigFile{{Path: "built-in defaults", Source: am.SourceDefault}}, am.ConfigPaths()...) {
		status := ""
		if cf.Source != am.SourceDefault {
			status = " (missing)"
			if _, err := os.Stat(cf.Path); err == nil {
				status = ""
			}
		}
		fmt.Printf("  %d. [%-8s] %s%s\n", i+1, cf.Source, cf.Path, status)
	}
	fmt.Printf("  %d. [%-8s] %s_* environment variables\n\n", len(am.ConfigPaths())+2, am.SourceEnvironment, am.EnvPrefix)

	// Group settings by where they came from
	groups := make(map[string][]am.SettingInfo)
	for _, s := range intro.Settings {
		key := string(s.Source)
		if s.Source != am.SourceDefault && s.Source != am.SourceEnvironment {
			key = s.SourcePath
		}
		groups[key] = append(groups[key], s)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println("Active configuration:")
	for _, k := range keys {
		settings := groups[k]
		fmt.Printf("\n%s: %d settings from %s\n", settings[0].Source, len(settings), k)
		for _, s := range settings {
			value := fmt.Sprintf("%v", s.Value)
			if len(value) > 50 {
				value = value[:47] + "..."
			}
			fmt.Printf("  %s = %s\n", s.Key, value)
		}
	}
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to find home directory")
		}
		path = filepath.Join(home, ".gridpulse", "am.toml")
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return errors.WithHint(
			errors.Newf("%s already exists", path),
			"pass --force to replace it; the old file is kept as .back1")
	}

	if err := am.WriteConfig(path, am.DefaultConfig()); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", path)
	return nil
}
