// Package cli wires configuration, logging, transports and history into the
// nexus commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/blixt/nexus/chat"
	"github.com/blixt/nexus/config"
	"github.com/blixt/nexus/conversation"
	"github.com/blixt/nexus/logging"
	"github.com/blixt/nexus/store"
	"github.com/blixt/nexus/transport"
	"github.com/blixt/nexus/writer"
)

type app struct {
	cfg      config.Config
	log      zerolog.Logger
	logClose io.Closer
	envFiles []string

	// current is the renderer of the answer being printed, if any.
	current atomic.Pointer[writer.Renderer]
}

// Execute runs the nexus command line and returns the process exit code.
func Execute(args []string) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func NewRootCommand() *cobra.Command {
	a := &app{envFiles: []string{".env"}}
	defaults := config.Default()

	root := &cobra.Command{
		Use:   "nexus",
		Short: "Chat with the Gemini and DeepSeek endpoints from the terminal",
		Long: `Nexus streams answers from the Gemini and DeepSeek model endpoints over a
WebSocket, falling back to a plain HTTP request when streaming isn't available.
Conversations are kept in a local history file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Flags())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logClose != nil {
				return a.logClose.Close()
			}
			return nil
		},
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, args)
		},
	}

	flags := root.PersistentFlags()
	flags.String("url", defaults.HTTPURL, "base URL of the model server")
	flags.String("ws-url", "", "base URL for streaming (derived from --url if empty)")
	flags.StringP("model", "m", string(defaults.Model), "model to talk to (Gemini or DeepSeek)")
	flags.String("history", defaults.HistoryFile, "conversation history file (.json, .yaml or .yml)")
	flags.Bool("show-thinking", false, "print the model's thinking before its answer")
	flags.Int("rate-limit", defaults.RateLimit, "maximum requests per minute (0 disables)")
	flags.Duration("connect-timeout", defaults.Timeouts.Connect, "time allowed to open a stream before falling back")
	flags.Duration("idle-timeout", defaults.Timeouts.Idle, "silence after which a stream is considered finished")
	flags.Duration("response-timeout", defaults.Timeouts.Response, "maximum time for a whole answer")
	flags.String("log-file", defaults.LogFile, "file to write logs to")
	flags.String("log-level", defaults.LogLevel, "log level (debug, info, warn, error, off)")

	root.AddCommand(a.chatCommand())
	root.AddCommand(a.askCommand())
	root.AddCommand(a.historyCommand())
	root.AddCommand(a.serveCommand())
	return root
}

func (a *app) setup(flags *pflag.FlagSet) error {
	cfg, err := config.Load(a.envFiles...)
	if err != nil {
		return err
	}
	if err := applyFlags(&cfg, flags); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	log, closer, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		// Logging is best effort; the chat works without it.
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
	a.log, a.logClose = log, closer
	return nil
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "url":
			cfg.HTTPURL, err = flags.GetString(f.Name)
		case "ws-url":
			cfg.WebSocketURL, err = flags.GetString(f.Name)
		case "model":
			var name string
			if name, err = flags.GetString(f.Name); err == nil {
				cfg.Model, err = chat.ParseModel(name)
			}
		case "history":
			cfg.HistoryFile, err = flags.GetString(f.Name)
		case "show-thinking":
			cfg.ShowThinking, err = flags.GetBool(f.Name)
		case "rate-limit":
			cfg.RateLimit, err = flags.GetInt(f.Name)
		case "connect-timeout":
			cfg.Timeouts.Connect, err = flags.GetDuration(f.Name)
		case "idle-timeout":
			cfg.Timeouts.Idle, err = flags.GetDuration(f.Name)
		case "response-timeout":
			cfg.Timeouts.Response, err = flags.GetDuration(f.Name)
		case "log-file":
			cfg.LogFile, err = flags.GetString(f.Name)
		case "log-level":
			cfg.LogLevel, err = flags.GetString(f.Name)
		}
		if err != nil {
			err = fmt.Errorf("--%s: %w", f.Name, err)
		}
	})
	return err
}

func (a *app) book() (*conversation.Book, error) {
	book, err := conversation.Open(conversation.NewKVStore(store.NewFile(a.cfg.HistoryFile)))
	if err != nil {
		return nil, fmt.Errorf("failed to load history from %s: %w", a.cfg.HistoryFile, err)
	}
	return book, nil
}

func (a *app) session() (*chat.Session, error) {
	book, err := a.book()
	if err != nil {
		return nil, err
	}
	client := chat.New(
		transport.NewWebSocket(a.cfg.StreamURL(), transport.WithWebSocketLogger(a.log)),
		transport.NewHTTP(a.cfg.HTTPURL, transport.WithHTTPLogger(a.log)),
		chat.WithTimeouts(a.cfg.Timeouts),
		chat.WithRateLimit(a.cfg.RateLimit),
		chat.WithLogger(a.log),
		chat.WithStatus(a.onStatus),
	)
	return chat.NewSession(client, book), nil
}

func (a *app) onStatus(threadID string, status chat.Status) {
	a.log.Debug().Str("thread", threadID).Str("status", string(status)).Msg("connection status")
	if status != chat.StatusConnected {
		return
	}
	if r := a.current.Load(); r != nil {
		r.Connected()
	}
}

// newWriter returns a writer for out, only animating when out is a terminal.
func newWriter(out io.Writer) *writer.Writer {
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return writer.New(writer.WithOutput(out))
	}
	return writer.New(writer.WithOutput(out), writer.WithDelay(nil), writer.WithoutColor(), writer.WithoutSpinner())
}

// errReported is returned when the failure has already been shown to the user.
var errReported = errors.New("request failed")
