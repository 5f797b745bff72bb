package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Shiori/internal/shiori/turn"
)

// TurnHandler answers one chat turn.
type TurnHandler interface {
	Handle(ctx context.Context, req turn.Request) (*turn.Response, error)
}

type chatOptions struct {
	userID   string
	affairID string
	attach   []string
	verbose  bool
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	co := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the engine from the terminal, one message per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(cmd, a.Turns(), co)
		},
	}
	cmd.Flags().StringVar(&co.userID, "user", "cli", "User id whose memory the session uses.")
	cmd.Flags().StringVar(&co.affairID, "affair", "", "Affair id the conversation is about.")
	cmd.Flags().StringSliceVar(&co.attach, "attach", nil, "Document keys attached to the first message (repeatable).")
	cmd.Flags().BoolVarP(&co.verbose, "verbose", "v", false, "Print strategy and provenance after each reply.")
	return cmd
}

func runChat(cmd *cobra.Command, turns TurnHandler, co *chatOptions) error {
	in := bufio.NewScanner(cmd.InOrStdin())
	in.Buffer(make([]byte, 64*1024), 1<<20)
	out := cmd.OutOrStdout()

	attach := co.attach
	prompt(out)
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "" {
			prompt(out)
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}
		resp, err := turns.Handle(cmd.Context(), turn.Request{
			Message:          line,
			UserID:           co.userID,
			AffairID:         co.affairID,
			AttachedFileKeys: attach,
		})
		attach = nil
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			prompt(out)
			continue
		}
		fmt.Fprintln(out, resp.Reply)
		if co.verbose {
			printDetails(out, resp)
		}
		prompt(out)
	}
	return in.Err()
}

func prompt(w io.Writer) { fmt.Fprint(w, "> ") }

func printDetails(w io.Writer, resp *turn.Response) {
	fmt.Fprintf(w, "  [strategy: %s, trace: %s]\n", resp.Strategy, resp.TraceID)
	if p := resp.Provenance; p != nil {
		if len(p.Files) > 0 {
			fmt.Fprintf(w, "  [files: %s]\n", strings.Join(p.Files, ", "))
		}
		if len(p.Sources) > 0 {
			fmt.Fprintf(w, "  [sources: %s]\n", strings.Join(p.Sources, ", "))
		}
	}
	if s := resp.SimilarPast; s != nil {
		fmt.Fprintf(w, "  [similar past question (%.2f): %s]\n", s.Score, s.Question)
	}
}
