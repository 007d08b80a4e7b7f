package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/implantai/backend/internal/app"
	"github.com/zhouzirui/implantai/backend/internal/config"
	"github.com/zhouzirui/implantai/backend/internal/logger"
	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/implantai/backend/internal/service/chat"
	"github.com/zhouzirui/implantai/backend/internal/service/imaging"
	"github.com/zhouzirui/implantai/backend/internal/storage/audit"
)

const chatLongDesc string = `Start an interactive clinical conversation in the terminal.

Type a case description and press enter. Replies are rendered as
markdown. Slash commands:

  /models            list models (* marks the selection)
  /model <id>        switch model: auto, pro, flash, lite
  /actions [cat]     list quick actions, optionally by category
  /action <id>       submit a quick action with pending attachments
  /attach <files..>  downscale images and attach them to the next message
  /history [n]       show the last n journaled turns (needs AUDIT_DB_PATH)
  /reset             start a new conversation
  /help              show this help
  /quit              exit

Examples:
  implantctl chat
  implantctl chat --model pro
  implantctl --config implantai.toml chat`

const chatShortDesc string = "Chat with the clinical assistant"

var (
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	bannerStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

var errQuit = errors.New("quit")

type chatCommander struct {
	model      string
	verbose    bool
	configPath string
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// --config is a persistent flag of the root command
			if path, err := cmd.Flags().GetString("config"); err == nil {
				cmder.configPath = path
			}
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&cmder.model, "model", "m", string(catalog.Auto), "Model to start with")
	cmd.Flags().BoolVarP(&cmder.verbose, "verbose", "v", false, "Log service activity to stderr")

	return cmd
}

func (c *chatCommander) loadConfig() (*config.Config, error) {
	if c.configPath != "" {
		return config.LoadWithFile(c.configPath)
	}
	return config.Load()
}

func (c *chatCommander) run(ctx context.Context, out io.Writer) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	if !c.verbose {
		cfg.Log.Level = "error"
	}
	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	application, err := app.Build(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer application.Close()

	if _, err := application.Chat.SelectModel(ctx, c.model); err != nil {
		return err
	}

	repl := NewREPL(application.Chat, out, NewMarkdownRenderer())
	if application.Journal != nil {
		repl.WithJournal(application.Journal)
	}
	repl.Banner(cfg.AI.HasCredential())

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyFile := filepath.Join(os.TempDir(), "implantctl_history")
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		input, err := line.Prompt(repl.Prompt())
		if err != nil {
			// Ctrl+C, Ctrl+D
			fmt.Fprintln(out)
			return nil
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		if err := repl.Handle(ctx, input); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(out, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
	}
}

// Journal lists turns recorded by the audit journal.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// REPL interprets one line of terminal input at a time.
type REPL struct {
	svc     *chatservice.Service
	out     io.Writer
	render  func(string) string
	pending []chat.Image
	opts    imaging.Options
	journal Journal
}

// NewREPL creates a REPL writing to out. render formats assistant markdown.
func NewREPL(svc *chatservice.Service, out io.Writer, render func(string) string) *REPL {
	if render == nil {
		render = func(s string) string { return s }
	}
	return &REPL{svc: svc, out: out, render: render, opts: imaging.DefaultOptions()}
}

// WithJournal enables the /history command.
func (r *REPL) WithJournal(j Journal) *REPL {
	r.journal = j
	return r
}

// NewMarkdownRenderer returns a glamour renderer, or plain passthrough when
// the terminal style cannot be initialized.
func NewMarkdownRenderer() func(string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return nil
	}
	return func(content string) string {
		rendered, err := r.Render(content)
		if err != nil {
			return content
		}
		return rendered
	}
}

// Banner prints the greeting and configuration warnings.
func (r *REPL) Banner(hasCredential bool) {
	fmt.Fprintln(r.out, bannerStyle.Render("ImplantAI  ·  /help for commands"))
	turns := r.svc.Turns(context.Background())
	if len(turns) > 0 {
		fmt.Fprintln(r.out, r.render(turns[0].Text))
	}
	if !hasCredential {
		fmt.Fprintln(r.out, errorStyle.Render("ARK_API_KEY is not set; messages will fail with a configuration error."))
	}
}

// Prompt renders the input prompt with the selected model and attachments.
func (r *REPL) Prompt() string {
	label := string(r.svc.SelectedModel())
	if len(r.pending) > 0 {
		label += fmt.Sprintf(" +%d img", len(r.pending))
	}
	return label + "> "
}

// Handle processes one input line. It returns errQuit when the user exits.
func (r *REPL) Handle(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	if !strings.HasPrefix(input, "/") {
		return r.submit(func() (chatservice.SubmitResult, error) {
			return r.svc.Submit(ctx, input, r.pending)
		})
	}

	fields := strings.Fields(input)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit", "/q":
		return errQuit
	case "/help", "/?":
		fmt.Fprintln(r.out, chatLongDesc)
	case "/models":
		selected := r.svc.SelectedModel()
		for _, cfg := range catalog.Configs() {
			marker := " "
			if cfg.ID == selected {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %-6s %-22s %s\n", marker, cfg.ID, cfg.Label, dimStyle.Render(cfg.Description))
		}
	case "/model":
		if len(args) != 1 {
			return errors.New("usage: /model <auto|pro|flash|lite>")
		}
		m, err := r.svc.SelectModel(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "model: %s (bound to %s)\n", m, catalog.Resolve(m))
	case "/actions":
		category := catalog.Category("")
		if len(args) > 0 {
			category = catalog.Category(args[0])
			if !catalog.ValidCategory(category) {
				return fmt.Errorf("unknown category %q", args[0])
			}
		}
		for _, a := range r.svc.Actions().ListByCategory(category) {
			fmt.Fprintf(r.out, "%-18s %-11s %s\n", a.ID, dimStyle.Render(string(a.Category)), a.Label)
		}
	case "/action":
		if len(args) != 1 {
			return errors.New("usage: /action <id>")
		}
		return r.submit(func() (chatservice.SubmitResult, error) {
			return r.svc.SubmitAction(ctx, args[0], r.pending)
		})
	case "/attach":
		if len(args) == 0 {
			return errors.New("usage: /attach <files...>")
		}
		r.attach(args)
	case "/history":
		return r.history(ctx, args)
	case "/reset":
		if _, err := r.svc.Reset(ctx); err != nil {
			return err
		}
		r.pending = nil
		fmt.Fprintln(r.out, dimStyle.Render("conversation reset"))
	default:
		return fmt.Errorf("unknown command %s, try /help", name)
	}
	return nil
}

func (r *REPL) history(ctx context.Context, args []string) error {
	if r.journal == nil {
		return errors.New("audit journal is disabled, set AUDIT_DB_PATH")
	}
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return errors.New("usage: /history [n]")
		}
		limit = n
	}

	entries, err := r.journal.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(r.out, dimStyle.Render("no journaled turns"))
		return nil
	}

	for _, e := range entries {
		who := string(e.Speaker)
		if e.Model != "" {
			who += "/" + e.Model
		}
		text := strings.Join(strings.Fields(e.Text), " ")
		if runes := []rune(text); len(runes) > 72 {
			text = string(runes[:72]) + "…"
		}
		if e.ImageCount > 0 {
			text += dimStyle.Render(fmt.Sprintf(" [+%d img]", e.ImageCount))
		}
		if e.Failure {
			who = errorStyle.Render(who)
		}
		fmt.Fprintf(r.out, "%s #%d %s %s\n", dimStyle.Render(e.CreatedAt.Local().Format(time.TimeOnly)), e.Conversation, who, text)
	}
	return nil
}

func (r *REPL) attach(paths []string) {
	files := make([]imaging.File, 0, len(paths))
	for _, p := range paths {
		files = append(files, imaging.File{
			Name: p,
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}

	batch := imaging.PreprocessAll(files, r.opts)
	for _, res := range batch.Results {
		r.pending = append(r.pending, res.Image)
		fmt.Fprintf(r.out, "attached %s %s\n", res.Name, dimStyle.Render(fmt.Sprintf("%dx%d", res.Width, res.Height)))
	}
	for _, fe := range batch.Errors {
		fmt.Fprintf(r.out, "%s %s: %v\n", errorStyle.Render("skipped"), fe.Name, fe.Err)
	}
}

func (r *REPL) submit(send func() (chatservice.SubmitResult, error)) error {
	fmt.Fprintln(r.out, dimStyle.Render("thinking..."))
	result, err := send()
	if err != nil {
		return err
	}
	r.pending = nil

	header := assistantStyle.Render("ImplantAI")
	if result.Reply.Model != "" {
		header += " " + dimStyle.Render("("+string(result.Reply.Model)+")")
	}
	fmt.Fprintln(r.out, header)
	fmt.Fprintln(r.out, r.render(result.Reply.Text))
	return nil
}
