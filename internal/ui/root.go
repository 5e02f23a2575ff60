package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

var (
	ErrAlreadyMounted = errors.New("ui: root already mounted")
	ErrInvalidTarget  = errors.New("ui: mount target must be an id selector like #app")
)

// Root is the application's top-level view. It can be mounted once.
type Root struct {
	mu     sync.Mutex
	out    io.Writer
	title  string
	target string
}

func NewRoot(title string, out io.Writer) *Root {
	return &Root{title: title, out: out}
}

// Mount attaches the root to the host element named by target.
func (r *Root) Mount(target string) error {
	if len(target) < 2 || !strings.HasPrefix(target, "#") || strings.ContainsAny(target[1:], " #.") {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.target != "" {
		return ErrAlreadyMounted
	}
	r.target = target

	_, err := fmt.Fprintf(r.out, "%s ready (mounted on %s)\n", r.title, target)
	return err
}

func (r *Root) Mounted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target != ""
}

// Target returns the element the root is mounted on, or "".
func (r *Root) Target() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}
