// ABOUTME: Renders a session's message log to a standalone HTML transcript.
// ABOUTME: Message bodies are treated as markdown and converted with goldmark.

package transcript

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/helpdesk-console/internal/wire"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Transcript {{.ChatID}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
.meta { color: #666; font-size: 0.9rem; }
.msg { margin: 1rem 0; padding: 0.5rem 1rem; border-left: 3px solid #ccc; }
.msg.agent { border-left-color: #36c; }
.msg .from { font-weight: bold; }
.msg .time { color: #999; font-size: 0.8rem; margin-left: 0.5rem; }
</style>
</head>
<body>
<h1>Conversation with {{.UserName}}</h1>
<p class="meta">Session {{.ChatID}} &middot; started {{.StartedAt}}{{if .EndedAt}} &middot; ended {{.EndedAt}}{{end}}</p>
{{range .Messages}}<div class="msg{{if .Agent}} agent{{end}}">
<span class="from">{{.Sender}}</span><span class="time">{{.Time}}</span>
{{.Body}}
</div>
{{end}}</body>
</html>
`

var page = template.Must(template.New("transcript").Parse(pageTemplate))

type renderedMessage struct {
	Sender string
	Time   string
	Agent  bool
	Body   template.HTML
}

// Render produces a standalone HTML transcript for one session.
func Render(session wire.ChatSession, messages []wire.ChatMessage) ([]byte, error) {
	md := goldmark.New()

	name := session.UserDisplayName
	if name == "" {
		name = session.UserID
	}

	data := struct {
		ChatID    string
		UserName  string
		StartedAt string
		EndedAt   string
		Messages  []renderedMessage
	}{
		ChatID:    session.ChatID,
		UserName:  name,
		StartedAt: session.CreatedAt.Format(time.RFC1123),
	}
	if session.EndedAt != nil {
		data.EndedAt = session.EndedAt.Format(time.RFC1123)
	}

	for _, m := range messages {
		var body bytes.Buffer
		if err := md.Convert([]byte(m.Content), &body); err != nil {
			return nil, fmt.Errorf("rendering message %d: %w", m.ID, err)
		}

		agent := m.SenderType == wire.SenderCustomerService
		sender := name
		if agent {
			sender = "Support"
		}
		data.Messages = append(data.Messages, renderedMessage{
			Sender: sender,
			Time:   m.CreatedAt.Format("15:04:05"),
			Agent:  agent,
			Body:   template.HTML(body.String()),
		})
	}

	var out bytes.Buffer
	if err := page.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("rendering transcript: %w", err)
	}
	return out.Bytes(), nil
}

// WriteFile renders the transcript and writes it to path.
func WriteFile(path string, session wire.ChatSession, messages []wire.ChatMessage) error {
	html, err := Render(session, messages)
	if err != nil {
		return err
	}
	return os.WriteFile(path, html, 0644)
}
