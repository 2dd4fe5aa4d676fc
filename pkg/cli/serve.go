package cli

import (
	"github.com/doxen-app/doxen/pkg/gateway"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	Long:  `Run the HTTP gateway in the foreground until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		gw, err := gateway.New(cfg)
		if err != nil {
			return err
		}
		return gw.Start()
	},
}
