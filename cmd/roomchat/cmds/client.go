package cmds

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/roomchat/pkg/chat"
)

type clientSettings struct {
	URL    string
	Room   string
	Name   string
	Model  string
	UseRag bool
}

func NewClientCommand() *cobra.Command {
	s := &clientSettings{}
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Join a room from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&s.URL, "url", "ws://localhost:8787/ws", "Websocket endpoint")
	cmd.Flags().StringVar(&s.Room, "room", "", "Room to join (server default when empty)")
	cmd.Flags().StringVar(&s.Name, "name", "anonymous", "Display name")
	cmd.Flags().StringVar(&s.Model, "model", "", "Model to answer with (server default when empty)")
	cmd.Flags().BoolVar(&s.UseRag, "rag", false, "Answer from documentation search")
	return cmd
}

func dialURL(s *clientSettings) (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", errors.Wrap(err, "parse url")
	}
	if s.Room != "" {
		q := u.Query()
		q.Set("room", s.Room)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func runClient(s *clientSettings, in io.Reader, out io.Writer) error {
	target, err := dialURL(s)
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", target)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	st := newStyles(out)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			ev, err := chat.Decode(data)
			if err != nil {
				log.Debug().Err(err).Msg("ignoring unknown frame")
				continue
			}
			_, _ = fmt.Fprint(out, st.render(ev))
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "connection closed")
		case line, ok := <-lines:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			data, err := chat.Encode(chat.AddEvent{
				Message: chat.Message{ID: uuid.NewString(), User: s.Name, Role: chat.RoleUser, Content: line},
				Model:   s.Model,
				UseRag:  s.UseRag,
			})
			if err != nil {
				return err
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return errors.Wrap(err, "send message")
			}
		}
	}
}

type styles struct {
	user   lipgloss.Style
	bot    lipgloss.Style
	status lipgloss.Style
	errorS lipgloss.Style
}

// newStyles colours output only when it goes to a terminal.
func newStyles(w io.Writer) styles {
	if f, ok := w.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain}
	}
	return styles{
		user:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		bot:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170")),
		status: lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244")),
		errorS: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
}

func (st styles) message(m chat.Message) string {
	author := st.user
	if m.Role == chat.RoleAssistant {
		author = st.bot
	}
	return fmt.Sprintf("%s %s\n", author.Render(m.User+":"), m.Content)
}

func (st styles) render(ev chat.Event) string {
	switch e := ev.(type) {
	case chat.AllEvent:
		var b strings.Builder
		b.WriteString(st.status.Render(fmt.Sprintf("-- %d messages in room --", len(e.Messages))) + "\n")
		for _, m := range e.Messages {
			b.WriteString(st.message(m))
		}
		return b.String()
	case chat.AddEvent:
		return st.message(e.Message)
	case chat.UpdateEvent:
		return st.status.Render("(edited)") + " " + st.message(e.Message)
	case chat.SessionLoadingEvent:
		return st.status.Render("-- starting session --") + "\n"
	case chat.SessionReadyEvent:
		return st.status.Render("-- session "+e.SessionID+" ready --") + "\n"
	case chat.SessionFailedEvent:
		return st.errorS.Render("-- session failed: "+e.Error+" --") + "\n"
	default:
		return ""
	}
}
