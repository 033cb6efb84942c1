package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/samsaffron/llm-gateway/internal/chat"
	"github.com/samsaffron/llm-gateway/internal/llm"
	"github.com/samsaffron/llm-gateway/internal/remote"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	chatModel  string
	chatUser   string
	chatSystem string
	chatURL    string
)

const chatHelp = `Start an interactive chat session against a running gateway.

Conversations are kept in memory; with --user they are loaded from and
saved to the gateway's conversation store.

Commands:
  /new               start a new conversation
  /list              list conversations
  /select N          switch to conversation N from /list
  /delete N          delete conversation N
  /clear             delete every conversation
  /model ID          set the active conversation's model
  /system TEXT       set the active conversation's system instruction
  /attach PATH       attach a file to the next message
  /edit TEXT         replace your last message and regenerate
  /regen             regenerate the last answer
  /stop              stop the running generation
  /quit              exit

Examples:
  llm-gateway chat
  llm-gateway chat --model deepseek-r1 --user alice`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat against a running gateway",
	Long:  chatHelp,
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Model for new conversations")
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "", "User id for saved conversations")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "System instruction for new conversations")
	chatCmd.Flags().StringVar(&chatURL, "url", "", "Gateway URL (default from config)")
}

// newRemoteClient builds the gateway client from config; override wins
// over the configured URL.
func newRemoteClient(override string) *remote.Client {
	url := appConfig.Client.URL
	if override != "" {
		url = override
	}
	return remote.NewClient(url,
		remote.WithToken(appConfig.Client.Token),
		remote.WithLogger(logger))
}

// chatSession bundles the reconciler with the terminal it renders to.
type chatSession struct {
	r       *chat.Reconciler
	out     io.Writer
	styles  styles
	model   string
	system  string
	pending *chat.Attachment
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := newRemoteClient(chatURL)
	out := cmd.OutOrStdout()
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	st := newStyles(interactive)

	userID := appConfig.Client.UserID
	if chatUser != "" {
		userID = chatUser
	}
	model := appConfig.Client.Model
	if chatModel != "" {
		model = chatModel
	}

	notify := chat.NotifyFunc(func(level chat.Level, msg string) {
		fmt.Fprintln(out, st.notice(level, msg))
	})

	var saver *remote.Debouncer[[]chat.Conversation]
	var persister chat.Persister
	if userID != "" {
		saver = remote.NewDebouncer(remote.SaveDelay, func(convs []chat.Conversation) {
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.SaveConversations(saveCtx, userID, convs); err != nil {
				logger.Warn().Err(err).Msg("failed to save conversations")
				notify(chat.LevelError, "Could not save conversations: "+err.Error())
			}
		})
		persister = chat.PersistFunc(saver.Schedule)
	}

	r := chat.New(chat.Options{
		Streamer:  client,
		Titler:    chat.NewTitleGenerator(client, logger),
		Notifier:  notify,
		Persister: persister,
		UserID:    userID,
		Logger:    logger,
	})
	defer func() {
		r.Close()
		if saver != nil {
			saver.Stop()
		}
	}()

	if userID != "" {
		var saved []chat.Conversation
		if err := client.LoadConversations(ctx, userID, &saved); err != nil {
			return fmt.Errorf("load conversations: %w", err)
		}
		if err := r.Load(saved); err != nil {
			return err
		}
		if len(saved) > 0 {
			fmt.Fprintln(out, st.dim.Render(fmt.Sprintf("Loaded %d conversations for %s.", len(saved), userID)))
		}
	}

	s := &chatSession{r: r, out: out, styles: st, model: model, system: chatSystem}
	lines := readLines(os.Stdin)
	if interactive {
		fmt.Fprintln(out, st.dim.Render("Type a message, /help for commands, /quit to exit."))
	}

	for {
		if interactive {
			fmt.Fprint(out, st.prompt.Render("> "))
		}
		line, ok := <-lines
		if !ok {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := s.command(ctx, line, lines)
			if err != nil {
				fmt.Fprintln(out, st.notice(chat.LevelError, err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}
		s.send(ctx, line, lines)
	}
}

// readLines feeds stdin lines to a channel so input stays readable while a
// generation is streaming.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func (s *chatSession) command(ctx context.Context, line string, lines <-chan string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(s.out, chatHelp)
	case "/new":
		s.r.NewConversation()
		s.applyDefaults()
		fmt.Fprintln(s.out, s.styles.dim.Render("New conversation."))
	case "/list":
		s.list()
	case "/select":
		c, err := s.pick(arg)
		if err != nil {
			return false, err
		}
		if err := s.r.Select(c.ID); err != nil {
			return false, err
		}
		s.show(c.ID)
	case "/delete":
		c, err := s.pick(arg)
		if err != nil {
			return false, err
		}
		return false, s.r.Delete(c.ID)
	case "/clear":
		s.r.Clear()
	case "/model":
		if arg == "" {
			c, _ := s.r.Active()
			fmt.Fprintln(s.out, orDefault(c.ModelID, s.model))
			return false, nil
		}
		s.model = arg
		return false, s.r.SetModel(arg)
	case "/system":
		s.system = arg
		return false, s.r.SetSystemInstruction(arg)
	case "/attach":
		att, err := chat.ReadAttachment(arg)
		if err != nil {
			return false, err
		}
		s.pending = att
		fmt.Fprintln(s.out, s.styles.dim.Render(fmt.Sprintf("Attached %s (%s).", att.Name, att.MIMEType)))
	case "/edit":
		c, ok := s.r.Active()
		id := lastUserMessage(c)
		if !ok || id == "" {
			return false, chat.ErrNotFound
		}
		s.stream(ctx, lines, func(ctx context.Context) error { return s.r.Edit(ctx, id, arg) })
	case "/regen":
		s.stream(ctx, lines, s.r.Regenerate)
	case "/stop":
		s.r.Stop()
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

// applyDefaults carries the session's model and instruction into a fresh
// conversation.
func (s *chatSession) applyDefaults() {
	if s.model != "" && s.model != chat.DefaultModel {
		if err := s.r.SetModel(s.model); err != nil {
			fmt.Fprintln(s.out, s.styles.notice(chat.LevelError, err.Error()))
		}
	}
	if s.system != "" {
		_ = s.r.SetSystemInstruction(s.system)
	}
}

func (s *chatSession) send(ctx context.Context, text string, lines <-chan string) {
	if _, ok := s.r.Active(); !ok {
		s.r.NewConversation()
		s.applyDefaults()
	}
	att := s.pending
	s.pending = nil
	s.stream(ctx, lines, func(ctx context.Context) error { return s.r.Send(ctx, text, att) })
}

// stream runs a generation and prints the assistant text as it grows.
// Interrupt or /stop returns to the prompt at once with the partial reply;
// the abandoned request is cancelled and finalizes in the background.
func (s *chatSession) stream(ctx context.Context, lines <-chan string, run func(context.Context) error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	ticker := time.NewTicker(3 * chat.FlushInterval)
	defer ticker.Stop()

	p := &printer{out: s.out}
	stop := func() {
		s.r.Stop()
		c, _ := s.r.Active()
		p.update(c)
		p.finish(c, s.styles)
	}
	for {
		select {
		case err := <-done:
			c, _ := s.r.Active()
			p.update(c)
			p.finish(c, s.styles)
			if err != nil && !errors.Is(err, chat.ErrGenerating) {
				logger.Debug().Err(err).Msg("generation ended with error")
			}
			if errors.Is(err, chat.ErrGenerating) {
				fmt.Fprintln(s.out, s.styles.notice(chat.LevelError, "Still generating; /stop first."))
			}
			return
		case <-ticker.C:
			c, _ := s.r.Active()
			p.update(c)
		case <-sig:
			stop()
			return
		case line, ok := <-lines:
			if !ok {
				// Piped input ran out; let the reply finish.
				lines = nil
				continue
			}
			if strings.TrimSpace(line) == "/stop" {
				stop()
				return
			}
			fmt.Fprintln(s.out, s.styles.dim.Render("(generating; /stop to interrupt)"))
		}
	}
}

func (s *chatSession) list() {
	convs := s.r.Conversations()
	if len(convs) == 0 {
		fmt.Fprintln(s.out, s.styles.dim.Render("No conversations."))
		return
	}
	active, _ := s.r.Active()
	for i, c := range convs {
		marker := " "
		if c.ID == active.ID {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s %2d. %s %s\n", marker, i+1, c.Title,
			s.styles.dim.Render(fmt.Sprintf("(%s, %d messages)", orDefault(c.ModelID, chat.DefaultModel), len(c.Messages))))
	}
}

func (s *chatSession) pick(arg string) (chat.Conversation, error) {
	var n int
	if _, err := fmt.Sscanf(arg, "%d", &n); err != nil {
		return chat.Conversation{}, fmt.Errorf("expected a conversation number from /list")
	}
	convs := s.r.Conversations()
	if n < 1 || n > len(convs) {
		return chat.Conversation{}, chat.ErrNotFound
	}
	return convs[n-1], nil
}

func (s *chatSession) show(id string) {
	for _, c := range s.r.Conversations() {
		if c.ID != id {
			continue
		}
		fmt.Fprintln(s.out, s.styles.title.Render(c.Title))
		for _, m := range c.Messages {
			fmt.Fprintln(s.out, s.styles.role(m.Role)+" "+m.Content)
		}
	}
}

func lastUserMessage(c chat.Conversation) string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == llm.RoleUser {
			return c.Messages[i].ID
		}
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
