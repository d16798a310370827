// Package dashboardtest provides recording fakes of the dashboard's browser
// collaborators for tests.
package dashboardtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/usms-bridge/usms-scraper/pkg/browser"
	"github.com/usms-bridge/usms-scraper/pkg/dashboard"
)

// Call captures one operation on a FakePage.
type Call struct {
	Op       string
	Selector string
	Value    string
}

func (c Call) String() string {
	switch {
	case c.Value != "":
		return fmt.Sprintf("%s %s=%s", c.Op, c.Selector, c.Value)
	case c.Selector != "":
		return c.Op + " " + c.Selector
	default:
		return c.Op
	}
}

// FakePage records operations and serves configured texts.
// Selectors missing from Elements behave like a locator that matched nothing.
type FakePage struct {
	mu    sync.Mutex
	Calls []Call

	// Elements maps selectors to the inner text they resolve to
	Elements map[string]string

	// Errors maps "op selector" (or "op" for Navigate and Close) to an error
	Errors map[string]error

	// Dead makes Alive return false
	Dead bool

	// OnLogin, when set, runs after the login form is submitted
	OnLogin func(p *FakePage)

	// LoginButton is the selector whose click triggers OnLogin
	LoginButton string
}

// NewFakePage returns a page serving the given elements.
func NewFakePage(elements map[string]string) *FakePage {
	if elements == nil {
		elements = map[string]string{}
	}
	return &FakePage{
		Elements: elements,
		Errors:   map[string]error{},
	}
}

func (p *FakePage) record(op, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, Call{Op: op, Selector: selector, Value: value})

	key := op
	if selector != "" {
		key = op + " " + selector
	}
	return p.Errors[key]
}

// Navigate records the navigation.
func (p *FakePage) Navigate(url string) error {
	return p.record("navigate", url, "")
}

// WaitFor reports whether selector is present.
func (p *FakePage) WaitFor(selector string, timeout time.Duration) error {
	if err := p.record("wait", selector, ""); err != nil {
		return err
	}
	if _, ok := p.lookup(selector); !ok {
		return fmt.Errorf("wait for %s: %w", selector, browser.ErrElementNotFound)
	}
	return nil
}

// Text returns the configured text for selector.
func (p *FakePage) Text(selector string, timeout time.Duration) (string, error) {
	if err := p.record("text", selector, ""); err != nil {
		return "", err
	}
	text, ok := p.lookup(selector)
	if !ok {
		return "", fmt.Errorf("read %s: %w", selector, browser.ErrElementNotFound)
	}
	return text, nil
}

// Fill records the value.
func (p *FakePage) Fill(selector, value string) error {
	return p.record("fill", selector, value)
}

// Click records the click and runs OnLogin for the login button.
func (p *FakePage) Click(selector string) error {
	if err := p.record("click", selector, ""); err != nil {
		return err
	}
	if p.OnLogin != nil && selector == p.LoginButton {
		p.OnLogin(p)
	}
	return nil
}

// Alive reports the configured liveness.
func (p *FakePage) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.Dead
}

// Close records the close.
func (p *FakePage) Close() error {
	return p.record("close", "", "")
}

// Set adds or replaces an element.
func (p *FakePage) Set(selector, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Elements[selector] = text
}

// Fail makes the next and all following calls of key fail with err.
func (p *FakePage) Fail(key string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Errors[key] = err
}

// Ops returns the recorded calls in string form.
func (p *FakePage) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ops := make([]string, 0, len(p.Calls))
	for _, c := range p.Calls {
		ops = append(ops, c.String())
	}
	return ops
}

// Count returns how many recorded calls have the given op.
func (p *FakePage) Count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, c := range p.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (p *FakePage) lookup(selector string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text, ok := p.Elements[selector]
	return text, ok
}

// FakeBackend hands out pages in order. Errors are returned for the
// attempts listed in Failures before any page is handed out.
type FakeBackend struct {
	mu sync.Mutex

	// Pages are returned by successive successful Connect calls
	Pages []*FakePage

	// Failures are returned, in order, before Pages are used
	Failures []error

	// Attempts counts Connect calls
	Attempts int
}

// ErrNoPages is returned once every configured page has been handed out.
var ErrNoPages = errors.New("fake backend has no more pages")

// Connect returns the next failure or page.
func (b *FakeBackend) Connect() (dashboard.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Attempts++

	if len(b.Failures) > 0 {
		err := b.Failures[0]
		b.Failures = b.Failures[1:]
		return nil, err
	}

	if len(b.Pages) == 0 {
		return nil, ErrNoPages
	}

	page := b.Pages[0]
	b.Pages = b.Pages[1:]
	return page, nil
}

// RecordingSleep records requested delays without waiting.
type RecordingSleep struct {
	mu     sync.Mutex
	Delays []time.Duration
}

// Sleep records d and returns ctx.Err().
func (s *RecordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Delays = append(s.Delays, d)
	return ctx.Err()
}
