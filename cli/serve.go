package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blixt/nexus/devserver"
	"github.com/blixt/nexus/logging"
)

func (a *app) serveCommand() *cobra.Command {
	var (
		addr        string
		noStreaming bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local server that echoes prompts back",
		Long: `Serve runs a stand-in for the model server speaking the same protocol: a
token stream at /ws/{thread_id}/{model} and a JSON endpoint at
/ChatResponse/{model}. Every answer repeats the prompt after a short thinking
block, which makes it handy for trying the client without the real server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.Console(cmd.ErrOrStderr(), logging.ParseLevel(a.cfg.LogLevel))
			opts := []devserver.Option{devserver.WithLogger(log)}
			if noStreaming {
				opts = append(opts, devserver.WithoutStreaming())
			}
			srv := devserver.New(devserver.Echo, opts...)
			if err := srv.Start(addr); err != nil {
				return err
			}
			defer srv.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s (Ctrl+C to stop)\n", srv.Addr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			stats := srv.Stats()
			log.Info().Int("streams", stats.Streams).Int("fallbacks", stats.Fallbacks).Msg("shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "address to listen on")
	cmd.Flags().BoolVar(&noStreaming, "no-streaming", false, "only serve the fallback endpoint")
	return cmd
}
