package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/suPer8Hu/portfolio-platform/internal/chat"
)

var statusLabels = map[chat.Status]string{
	chat.StatusWaiting:     "thinking...",
	chat.StatusToolCalling: "calling tools...",
	chat.StatusToolResult:  "reading tool results...",
}

// printer writes assistant text incrementally. Message events carry the
// whole content so far; only the unseen suffix is printed.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	current string
	printed int
	midLine bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) printMessages(msgs []chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if m.Author == chat.AuthorAssistant {
			fmt.Fprintln(p.out, m.Content)
		}
	}
}

func (p *printer) handle(ev chat.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case chat.EventStatus:
		if ev.Status == chat.StatusIdle {
			p.breakLine()
			p.current, p.printed = "", 0
			return
		}
		if label, ok := statusLabels[ev.Status]; ok {
			p.breakLine()
			fmt.Fprintf(p.out, "  [%s]\n", label)
		}
	case chat.EventMessage:
		m := ev.Message
		if m == nil || m.Author != chat.AuthorAssistant {
			return
		}
		if m.ID != p.current {
			p.breakLine()
			p.current, p.printed = m.ID, 0
		}
		if len(m.Content) <= p.printed {
			return
		}
		fmt.Fprint(p.out, m.Content[p.printed:])
		p.printed = len(m.Content)
		p.midLine = true
	}
}

func (p *printer) breakLine() {
	if p.midLine {
		fmt.Fprintln(p.out)
		p.midLine = false
	}
}
