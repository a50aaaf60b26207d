package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"quickchat/internal/chat/client"
	"quickchat/internal/chat/domain"
)

// 只顯示最後幾則
const historyLines = 20

type view struct {
	mu     sync.Mutex
	out    io.Writer
	engine *client.Engine
	dirty  chan struct{}
}

func newView(out io.Writer) *view {
	return &view{out: out, dirty: make(chan struct{}, 1)}
}

// invalidate engine OnChange hook, redraw is coalesced by loop
func (v *view) invalidate() {
	select {
	case v.dirty <- struct{}{}:
	default:
	}
}

func (v *view) loop(ctx context.Context) {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	pending := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.dirty:
			pending = true
		case <-ticker.C:
			if pending {
				pending = false
				v.printConversation()
			}
		}
	}
}

func (v *view) notice(format string, args ...interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "! "+format+"\n", args...)
}

func (v *view) printHelp() {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, `commands:
  /users               refresh the user list
  /open <member>       open a conversation
  <text>               send text to the open conversation
  /img <file>          send an image
  /rm <id> [me|everyone]
  /online              refresh presence
  /quit`)
}

func (v *view) printUsers() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, u := range v.engine.Users() {
		mark := " "
		if v.engine.IsOnline(u.ID) {
			mark = "*"
		}
		badge := ""
		if n := v.engine.Unseen(u.ID); n > 0 {
			badge = fmt.Sprintf(" (%d)", n)
		}
		fmt.Fprintf(v.out, "%s %-20s %s%s\n", mark, u.ID, u.FullName, badge)
	}
}

func (v *view) printConversation() {
	v.mu.Lock()
	defer v.mu.Unlock()

	counterpart := v.engine.Selected()
	if counterpart == "" {
		return
	}
	if v.engine.State(counterpart) != client.Loaded {
		fmt.Fprintf(v.out, "-- %s: loading --\n", counterpart)
		return
	}

	online := ""
	if v.engine.IsOnline(counterpart) {
		online = " (online)"
	}
	fmt.Fprintf(v.out, "-- %s%s --\n", counterpart, online)

	msgs := v.engine.Messages()
	if len(msgs) > historyLines {
		msgs = msgs[len(msgs)-historyLines:]
	}
	for _, m := range msgs {
		fmt.Fprintln(v.out, formatMessage(m, counterpart))
	}
}

func formatMessage(m domain.Message, counterpart string) string {
	who := "me"
	if m.Sender == counterpart {
		who = counterpart
	}
	status := ""
	switch {
	case client.IsPending(m):
		status = " …"
	case m.Sender != counterpart && m.Seen:
		status = " ✓✓"
	case m.Sender != counterpart:
		status = " ✓"
	}
	body := m.Text
	if m.Image != "" {
		body += " [image " + m.Image + "]"
	}
	return fmt.Sprintf("[%s] %s: %s%s  #%s", m.CreatedAt.Local().Format("15:04"), who, body, status, m.ID)
}

func contentOf(text, image string) domain.MessageContent {
	return domain.MessageContent{Text: text, Image: image}
}

// imageDataURL 讀檔轉成 data url，server 會上傳到物件儲存
func imageDataURL(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return "data:" + http.DetectContentType(raw) + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
