package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/doxen-app/doxen/pkg/common"
	"github.com/doxen-app/doxen/pkg/gateway"
	"github.com/doxen-app/doxen/pkg/repository"
	"github.com/doxen-app/doxen/pkg/types"
	"github.com/spf13/cobra"
)

// Build information (injected at compile time via ldflags)
var Version = "dev"

var (
	configPath string
	jsonOutput bool
)

// Custom help template with styled output
var helpTemplate = `{{with .Long}}{{. | trim}}

{{end}}{{if .HasAvailableSubCommands}}` + `{{.CommandPath}}` + ` ` + `<command>` + `

{{end}}{{if .HasAvailableSubCommands}}Commands:
{{range .Commands}}{{if .IsAvailableCommand}}  {{rpad .Name .NamePadding }}  {{.Short}}
{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}
Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}
`

var rootCmd = &cobra.Command{
	Use:   "doxen",
	Short: "Gmail and Slack import gateway",
	Long: lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Render("doxen") + ` - Gmail and Slack import gateway

Connects user Gmail and Slack accounts over OAuth and imports threads and
channels into projects as text documents.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		SetJSONOutput(jsonOutput)
	},
}

func init() {
	rootCmd.SetHelpTemplate(helpTemplate)
	rootCmd.SetVersionTemplate(fmt.Sprintf("  %s version %s\n", BrandStyle.Render("doxen"), Version))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Path to a yaml or json config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(connectionCmd)
	rootCmd.AddCommand(tokenCmd)
}

// Execute runs the CLI
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintError(err)
	}
	return err
}

func loadConfig() (types.AppConfig, error) {
	if configPath != "" {
		if err := os.Setenv("CONFIG_PATH", configPath); err != nil {
			return types.AppConfig{}, err
		}
	}

	cm, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		return types.AppConfig{}, err
	}
	cfg, err := cm.Decode()
	if err != nil {
		return types.AppConfig{}, err
	}
	gateway.SetupLogging(cfg)
	return cfg, nil
}

// openPostgres connects to the configured database. Admin commands only work
// against a persistent store.
func openPostgres(cfg types.AppConfig) (*repository.PostgresBackend, error) {
	if cfg.IsLocalMode() {
		return nil, fmt.Errorf("mode is %q: this command needs postgres (set mode: %s)", cfg.Mode, types.ModeRemote)
	}
	return repository.NewPostgresBackend(cfg.Database.Postgres)
}
