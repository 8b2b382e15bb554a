package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/blixt/nexus/chat"
	"github.com/blixt/nexus/conversation"
	"github.com/blixt/nexus/writer"
)

const replHelp = `Commands:
  /new             start a new conversation
  /model <name>    switch model (Gemini or DeepSeek)
  /list            list conversations
  /open <id>       continue a conversation
  /delete <id>     delete a conversation
  /help            show this help
  exit             quit`

func (a *app) chatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [prompt]...",
		Short: "Chat interactively (the default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, args)
		},
	}
}

// repl holds the state of an interactive chat.
type repl struct {
	app   *app
	sess  *chat.Session
	model chat.Model
	out   io.Writer
}

func (a *app) runChat(cmd *cobra.Command, args []string) error {
	sess, err := a.session()
	if err != nil {
		return err
	}
	r := &repl{app: a, sess: sess, model: a.cfg.Model, out: cmd.OutOrStdout()}

	// The liner package makes the input prompt a lot nicer to use, supporting
	// arrow keys and common keyboard shortcuts.
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	getInput := func() string {
		input, err := line.Prompt(fmt.Sprintf("[%s] ", r.model))
		if err != nil || input == "exit" {
			return ""
		}
		line.AppendHistory(input)
		return input
	}

	var input string
	if len(args) > 0 {
		input = strings.Join(args, " ")
		fmt.Fprintln(r.out, input)
	} else {
		writer.Write(fmt.Sprintf("Talking to %s. Type /help for commands.", r.model), writer.WithOutput(r.out))
		fmt.Fprintln(r.out)
		input = getInput()
	}

	for input != "" {
		quit, err := r.handle(cmd.Context(), input)
		if err != nil && !errors.Is(err, errReported) {
			fmt.Fprintf(r.out, "%v\n", err)
		}
		if quit {
			break
		}
		fmt.Fprintln(r.out)
		input = getInput()
	}
	return nil
}

// handle runs a single line of input, either a command or a prompt.
func (r *repl) handle(ctx context.Context, input string) (quit bool, err error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		if input == "" {
			return false, nil
		}
		fmt.Fprintln(r.out)
		return false, r.app.ask(ctx, r.out, r.sess, input, r.model)
	}

	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	book := r.sess.Book()
	switch name {
	case "/new":
		book.Clear()
		fmt.Fprintln(r.out, "Started a new conversation.")
	case "/model":
		model, err := chat.ParseModel(arg)
		if err != nil {
			return false, err
		}
		r.model = model
		fmt.Fprintf(r.out, "Switched to %s.\n", model)
	case "/list":
		active, _ := book.Active()
		printConversations(r.out, book.All(), active.ID)
	case "/open":
		if err := book.Select(arg); err != nil {
			return false, err
		}
		c, _ := book.Active()
		if m, err := chat.ParseModel(c.Model); err == nil {
			r.model = m
		}
		printConversation(r.out, c, r.app.cfg.ShowThinking)
	case "/delete":
		if err := book.Delete(arg); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Deleted %s.\n", arg)
	case "/help":
		fmt.Fprintln(r.out, replHelp)
	case "/quit", "/exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q, type /help for a list", name)
	}
	return false, nil
}

func printConversation(out io.Writer, c conversation.Conversation, showThinking bool) {
	fmt.Fprintf(out, "%s (%s)\n", c.Title, c.ID)
	for _, m := range c.Messages {
		fmt.Fprintln(out)
		switch m.Role {
		case conversation.RoleUser:
			fmt.Fprintf(out, "You: %s\n", m.Content)
		default:
			if showThinking && m.Thinking != "" {
				fmt.Fprintf(out, "%s (thinking): %s\n", m.Model, m.Thinking)
			}
			fmt.Fprintf(out, "%s: %s\n", m.Model, m.Content)
		}
	}
}
