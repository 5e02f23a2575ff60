// Package presenter surfaces backend messages to the user.
package presenter

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Prefix is prepended to every presented message.
const Prefix = "Message from Axum: "

// Presenter shows a message to the user and returns once it has been handled.
type Presenter interface {
	Present(message string)
}

// Format returns the text shown for message.
func Format(message string) string {
	return Prefix + message
}

var (
	alertStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// AlertPresenter draws a boxed alert on out. With a non-nil in, Present blocks
// until the user presses Enter, in is exhausted or Dismiss is called.
type AlertPresenter struct {
	mu        sync.Mutex
	out       io.Writer
	acks      chan struct{}
	dismissed chan struct{}
	once      sync.Once
}

func NewAlertPresenter(out io.Writer, in io.Reader) *AlertPresenter {
	p := &AlertPresenter{out: out, dismissed: make(chan struct{})}
	if in != nil {
		p.acks = make(chan struct{})
		go p.readAcks(bufio.NewReader(in))
	}
	return p
}

// readAcks turns input lines into acknowledgements. acks is closed on EOF so
// every later alert returns immediately.
func (p *AlertPresenter) readAcks(in *bufio.Reader) {
	defer close(p.acks)
	for {
		if _, err := in.ReadString('\n'); err != nil {
			return
		}
		select {
		case p.acks <- struct{}{}:
		case <-p.dismissed:
			return
		}
	}
}

func (p *AlertPresenter) Present(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out, alertStyle.Render(Format(message)))
	if p.acks == nil {
		return
	}

	fmt.Fprintln(p.out, hintStyle.Render("press Enter to dismiss"))
	select {
	case <-p.acks:
	case <-p.dismissed:
	}
}

// Dismiss releases a pending alert and stops waiting for later ones.
func (p *AlertPresenter) Dismiss() {
	p.once.Do(func() { close(p.dismissed) })
}

// Func adapts a plain function to Presenter.
type Func func(message string)

func (f Func) Present(message string) { f(message) }
