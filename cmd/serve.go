package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the candidate and interview HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		cmd.SetContext(ctx)

		return withApplication(cmd, true, func(ctx context.Context, a *application) error {
			a.logger.Info("starting the aura-hire api",
				zap.String("version", version),
				zap.String("storage", a.config.Storage.Driver),
			)
			return server.New(a.registry, a.interviews, a.logger).Run(ctx, a.config.Server.Listen)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default :8080)")
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}
