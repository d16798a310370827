package browser

import (
	"errors"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// UpdateLastUsed updates the LastUsedAt timestamp to the current time.
func (s *Session) UpdateLastUsed() {
	s.LastUsedAt = time.Now()
}

// Alive reports whether the remote browser is still connected and the page open.
func (s *Session) Alive() bool {
	if s.Browser == nil || s.Page == nil {
		return false
	}
	return s.Browser.IsConnected() && !s.Page.IsClosed()
}

// Navigate navigates the session's page to url and waits for the load event.
func (s *Session) Navigate(url string) error {
	s.UpdateLastUsed()

	waitUntil := playwright.WaitUntilState("load")
	_, err := s.Page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
	})
	if err != nil {
		return classifyNavigation("navigate "+url, err, s.Alive())
	}

	s.CurrentURL = s.Page.URL()
	return nil
}

// Text returns the trimmed inner text of the first element matching selector.
func (s *Session) Text(selector string, timeout time.Duration) (string, error) {
	s.UpdateLastUsed()

	text, err := s.locate(selector).InnerText(playwright.LocatorInnerTextOptions{
		Timeout: s.timeoutOr(timeout),
	})
	if err != nil {
		return "", classify("read "+selector, err, s.Alive())
	}

	return strings.TrimSpace(text), nil
}

// WaitFor waits until an element matching selector is attached to the page.
// It returns an error wrapping ErrElementNotFound when the wait times out.
func (s *Session) WaitFor(selector string, timeout time.Duration) error {
	s.UpdateLastUsed()

	state := playwright.WaitForSelectorState("attached")
	err := s.locate(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   &state,
		Timeout: s.timeoutOr(timeout),
	})
	return classify("wait for "+selector, err, s.Alive())
}

// Fill fills an input element with the specified value.
func (s *Session) Fill(selector, value string) error {
	s.UpdateLastUsed()

	err := s.locate(selector).Fill(value, playwright.LocatorFillOptions{
		Timeout: s.timeoutOr(0),
	})
	return classify("fill "+selector, err, s.Alive())
}

// Click clicks the first element matching selector.
func (s *Session) Click(selector string) error {
	s.UpdateLastUsed()

	err := s.locate(selector).Click(playwright.LocatorClickOptions{
		Timeout: s.timeoutOr(0),
	})
	if err != nil {
		return classify("click "+selector, err, s.Alive())
	}

	// Update current URL in case click caused navigation
	s.CurrentURL = s.Page.URL()
	return nil
}

// Close releases the page, context and browser connection. Every resource
// is closed even when an earlier one fails.
func (s *Session) Close() error {
	var errs []error
	if s.Page != nil {
		errs = append(errs, s.Page.Close())
	}
	if s.Context != nil {
		errs = append(errs, s.Context.Close())
	}
	if s.Browser != nil {
		errs = append(errs, s.Browser.Close())
	}
	return errors.Join(errs...)
}

func (s *Session) locate(selector string) playwright.Locator {
	return s.Page.Locator(normalizeSelector(selector)).First()
}

func (s *Session) timeoutOr(d time.Duration) *float64 {
	if d > 0 {
		return playwright.Float(milliseconds(d))
	}
	return playwright.Float(s.operationTimeout)
}

// normalizeSelector adds the xpath= engine prefix to bare XPath expressions.
func normalizeSelector(selector string) string {
	if strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(/") {
		return "xpath=" + selector
	}
	return selector
}
