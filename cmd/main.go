package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"storyreel/internal/api"
	"storyreel/internal/app"
	"storyreel/internal/cli/scheme/colours"
)

func main() {
	// SIGINT/SIGTERM cancel every in-flight operation, image jobs included
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := app.NewCLI(ctx)
	rootCmd := cli.RootCommand()

	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cli.Config().Server.Addr
			}
			return api.Serve(cli.Context(), addr, cli.Service())
		},
	}
	serveCmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default from server.addr)")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, colours.Warning.Sprint("Interrupted"))
			os.Exit(130)
		}
		colours.Error.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
