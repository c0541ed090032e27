package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pulsebatch/am"
	"github.com/teranos/pulsebatch/errors"
)

func newAmCmd(a *app) *cobra.Command {
	amCmd := &cobra.Command{
		Use:   "am",
		Short: "Manage pulsebatch configuration",
		Long: `am - Manage pulsebatch configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/pulsebatch/pulsebatch.toml)
3. User config (~/.pulsebatch/pulsebatch.toml)
4. Project config (./pulsebatch.toml, searched upwards)
5. Environment variables (PULSEBATCH_* prefix, e.g. PULSEBATCH_BATCH_BATCH_SIZE)
6. Command line flags of 'pulsebatch run'

Examples:
  pulsebatch am show                  # Show current configuration
  pulsebatch am show --format json    # Show configuration in JSON format
  pulsebatch am show --sources        # Show where every setting comes from
  pulsebatch am init                  # Write the defaults to ./pulsebatch.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	amCmd.AddCommand(newAmShowCmd(a))
	amCmd.AddCommand(newAmInitCmd())
	return amCmd
}

func newAmShowCmd(a *app) *cobra.Command {
	var (
		format  string
		sources bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the effective pulsebatch configuration from all sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sources {
				return runAmSources(cmd)
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			data, err := cfg.Render(format)
			if err != nil {
				return err
			}
			if format != am.FormatJSON {
				fmt.Fprintf(cmd.OutOrStdout(), "# pulsebatch configuration\n")
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", am.FormatTOML, "Output format: toml, json, yaml")
	cmd.Flags().BoolVar(&sources, "sources", false, "List every setting with the layer it came from")
	return cmd
}

func runAmSources(cmd *cobra.Command) error {
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return err
	}

	data := pterm.TableData{{"KEY", "VALUE", "SOURCE", "FROM"}}
	for _, s := range intro.Settings {
		value := fmt.Sprintf("%v", s.Value)
		if len(value) > 50 {
			value = value[:47] + "..."
		}
		data = append(data, []string{s.Key, value, string(s.Source), s.SourcePath})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render sources")
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}

func newAmInitCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Long: `Write the built-in defaults as TOML. An existing file is kept as
a rotating backup (.back1, .back2, .back3).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				wd, err := os.Getwd()
				if err != nil {
					return errors.Wrap(err, "failed to get working directory")
				}
				path = filepath.Join(wd, am.ConfigFileName)
			}

			if err := am.Defaults().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Where to write (default ./"+am.ConfigFileName+")")
	return cmd
}
