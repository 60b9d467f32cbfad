package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-concierge/internal/conversation"
	"github.com/sells-group/lead-concierge/internal/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in the terminal",
	Long:  "Starts an interactive conversation. Type /lead to see what has been collected, /quit to end the session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("chat"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		env.Queue.Start(context.WithoutCancel(ctx), 1)
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout(cfg.Server.ShutdownTimeout))
			defer cancel()
			env.Queue.Close()
			env.Queue.Wait(drainCtx) //nolint:errcheck
		}()

		return runChat(ctx, env.Orchestrator, cmd.InOrStdin(), cmd.OutOrStdout(), uuid.NewString())
	},
}

// chatter is the orchestrator surface the terminal loop uses.
type chatter interface {
	HandleTurn(ctx context.Context, req conversation.ChatRequest) conversation.ChatResponse
	LeadData(sessionID string) (conversation.LeadData, error)
	EndSession(ctx context.Context, sessionID string) (session.EndResult, error)
}

// runChat reads one message per line until EOF or /quit, then ends the
// session so contact details are never left uncaptured.
func runChat(ctx context.Context, c chatter, in io.Reader, out io.Writer, sessionID string) error {
	fmt.Fprintln(out, "Chatting with Leni. /lead shows collected details, /quit ends.") //nolint:errcheck

	sc := bufio.NewScanner(in)
	captured := false
	for {
		fmt.Fprint(out, "> ") //nolint:errcheck
		if !sc.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return endChat(ctx, c, out, sessionID)
		case "/lead":
			printLead(c, out, sessionID)
			continue
		}

		resp := c.HandleTurn(ctx, conversation.ChatRequest{Message: line, SessionID: sessionID})
		fmt.Fprintf(out, "\nLeni: %s\n", resp.Response) //nolint:errcheck
		if len(resp.Suggestions) > 0 {
			fmt.Fprintf(out, "      [%s]\n", strings.Join(resp.Suggestions, "] [")) //nolint:errcheck
		}
		if resp.Metadata.LeadCaptured && !captured {
			captured = true
			fmt.Fprintf(out, "      (lead captured, score %d)\n", resp.Metadata.LeadScore) //nolint:errcheck
		}
		fmt.Fprintln(out) //nolint:errcheck
	}
	if err := sc.Err(); err != nil {
		return eris.Wrap(err, "chat: read input")
	}
	return endChat(ctx, c, out, sessionID)
}

func printLead(c chatter, out io.Writer, sessionID string) {
	data, err := c.LeadData(sessionID)
	if err != nil {
		fmt.Fprintln(out, "Nothing collected yet.") //nolint:errcheck
		return
	}
	b, _ := json.MarshalIndent(data, "", "  ")
	fmt.Fprintln(out, string(b)) //nolint:errcheck
}

func endChat(ctx context.Context, c chatter, out io.Writer, sessionID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	res, err := c.EndSession(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		fmt.Fprintln(out, "A hui hou!") //nolint:errcheck
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "chat: end session")
	}
	if res.Captured {
		fmt.Fprintf(out, "Mahalo! Lead %s saved. A hui hou!\n", res.LeadID) //nolint:errcheck
		return nil
	}
	fmt.Fprintln(out, "A hui hou!") //nolint:errcheck
	return nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
