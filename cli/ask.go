package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blixt/nexus/chat"
	"github.com/blixt/nexus/stream"
	"github.com/blixt/nexus/writer"
)

func (a *app) askCommand() *cobra.Command {
	var thread string
	cmd := &cobra.Command{
		Use:   "ask <prompt>...",
		Short: "Ask a single question and print the answer",
		Long: `Ask sends one prompt, prints the answer and exits. The exchange is saved as a
new conversation unless --thread names an existing one to continue.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			if thread != "" {
				if err := sess.Book().Select(thread); err != nil {
					return err
				}
			}
			return a.ask(cmd.Context(), cmd.OutOrStdout(), sess, strings.Join(args, " "), a.cfg.Model)
		},
	}
	cmd.Flags().StringVarP(&thread, "thread", "t", "", "ID of a conversation to continue")
	return cmd
}

// ask sends prompt through sess and prints the answer to out as it streams.
// Interrupting cancels the request. A failed answer has its message printed
// and returns errReported.
func (a *app) ask(ctx context.Context, out io.Writer, sess *chat.Session, prompt string, model chat.Model) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	w := newWriter(out)
	r := writer.NewRenderer(w, string(model), a.cfg.ShowThinking)
	a.current.Store(r)
	defer a.current.Store(nil)

	errc := make(chan error, 1)
	go func() {
		defer w.Done()
		_, err := sess.Ask(ctx, prompt, model, r.Observe)
		errc <- err
	}()
	w.StartAndWait()

	err := <-errc
	var streamErr *stream.Error
	if errors.As(err, &streamErr) {
		a.log.Debug().Err(err).Msg("answer failed")
		return errReported
	}
	return err
}
