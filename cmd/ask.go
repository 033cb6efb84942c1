package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"strings"

	"github.com/samsaffron/llm-gateway/internal/chat"
	"github.com/samsaffron/llm-gateway/internal/frame"
	"github.com/samsaffron/llm-gateway/internal/llm"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	askModel  string
	askSystem string
	askFile   string
	askURL    string
	askDirect bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and stream the answer",
	Long: `Ask a question and stream the answer to stdout.

By default the request goes through a running gateway. With --direct the
gateway runs in-process using the local provider credentials.

Examples:
  llm-gateway ask "What is the capital of France?"
  llm-gateway ask -m deepseek-r1 "Prove that sqrt(2) is irrational"
  llm-gateway ask -f main.go "What does this program do?"
  llm-gateway ask --direct -m gpt-4o "Summarize TCP vs UDP"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "Model id (default from config)")
	askCmd.Flags().StringVar(&askSystem, "system", "", "System instruction")
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "Attach a file")
	askCmd.Flags().StringVar(&askURL, "url", "", "Gateway URL (default from config)")
	askCmd.Flags().BoolVar(&askDirect, "direct", false, "Call providers in-process instead of through a gateway")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	model := orDefault(askModel, appConfig.Client.Model)
	var att *chat.Attachment
	if askFile != "" {
		var err error
		if att, err = chat.ReadAttachment(askFile); err != nil {
			return err
		}
	}
	req := chat.BuildRequest(model, askSystem, nil, question, att)
	if err := req.Validate(); err != nil {
		return err
	}

	var frames iter.Seq2[frame.Frame, error]
	if askDirect {
		gw := llm.NewGateway(appConfig.ProviderConfigs(), logger)
		frames = errorFrames(gw.Stream(ctx, req))
	} else {
		seq, err := newRemoteClient(askURL).Open(ctx, req)
		if err != nil {
			return err
		}
		frames = seq
	}

	st := newStyles(term.IsTerminal(int(os.Stdout.Fd())))
	return printAnswer(cmd.OutOrStdout(), frames, st)
}

// errorFrames lifts an in-process frame stream to the client's shape: an
// error frame ends the stream as an error.
func errorFrames(seq iter.Seq[frame.Frame]) iter.Seq2[frame.Frame, error] {
	return func(yield func(frame.Frame, error) bool) {
		for f := range seq {
			if f.IsError() {
				yield(frame.Frame{}, errors.New(f.Error))
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// printAnswer writes frame text as it arrives, then the finish annotation
// and deduplicated citations.
func printAnswer(out io.Writer, frames iter.Seq2[frame.Frame, error], st styles) error {
	var (
		reason    frame.FinishReason
		citations []frame.Citation
		usage     *frame.Usage
	)
	for f, err := range frames {
		if err != nil {
			fmt.Fprintln(out)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		fmt.Fprint(out, f.Text)
		if f.FinishReason != frame.FinishNone {
			reason = f.FinishReason
		}
		if f.Usage != nil {
			usage = f.Usage
		}
		citations = append(citations, f.Citations...)
	}
	fmt.Fprintln(out, chat.Annotation(reason))
	for i, c := range chat.DedupCitations(citations) {
		fmt.Fprintln(out, st.dim.Render(fmt.Sprintf("[%d] %s %s", i+1, orDefault(c.Title, c.URI), c.URI)))
	}
	if usage != nil {
		logger.Debug().Int("prompt_tokens", usage.PromptTokens).Int("completion_tokens", usage.CompletionTokens).Msg("usage")
	}
	return nil
}
