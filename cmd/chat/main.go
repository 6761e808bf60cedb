// Command chat is a terminal client for the portfolio chat backend.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/portfolio-platform/internal/chat"
	"github.com/suPer8Hu/portfolio-platform/internal/config"
)

var (
	baseURL     string
	profileID   string
	legacy      bool
	idleTimeout time.Duration
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the portfolio assistant from a terminal",
	Long: `Chat reads one message per line from stdin and streams the assistant's
reply as it arrives, showing tool activity while the backend works.

Flags default to the server's environment (CHAT_API_BASE_URL,
CHAT_PROFILE_ID, CHAT_LEGACY_ENDPOINT, CHAT_STREAM_IDLE_TIMEOUT).

Examples:
  chat --base-url http://localhost:8000 --profile-id 3f1c...
  echo "What did you build at Acme?" | chat --legacy`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

func init() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	rootCmd.Flags().StringVar(&baseURL, "base-url", cfg.ChatAPIBaseURL, "chat API base URL")
	rootCmd.Flags().StringVar(&profileID, "profile-id", cfg.ChatProfileID, "profile the assistant answers about")
	rootCmd.Flags().BoolVar(&legacy, "legacy", cfg.ChatLegacyEndpoint, "use the legacy stream endpoint")
	rootCmd.Flags().DurationVar(&idleTimeout, "idle-timeout", cfg.ChatStreamIdleTimeout, "give up when the stream is silent this long (0 disables)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := chat.NewSession(chat.NewClient(baseURL, legacy), profileID,
		chat.WithID("terminal"),
		chat.WithLogger(logger),
		chat.WithIdleTimeout(idleTimeout),
	)
	return converse(ctx, sess, cmd.InOrStdin(), cmd.OutOrStdout())
}

// converse submits each non-blank input line and renders the session's
// events until in is exhausted or ctx ends.
func converse(ctx context.Context, sess *chat.Session, in io.Reader, out io.Writer) error {
	p := newPrinter(out)
	cancel := sess.Watch(p.handle)
	defer cancel()

	p.printMessages(sess.Messages())

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		err := sess.Submit(ctx, line)
		switch {
		case err == nil:
		case errors.Is(err, chat.ErrNotConfigured):
			return errors.New("no chat endpoint configured: pass --base-url or set CHAT_API_BASE_URL")
		default:
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
