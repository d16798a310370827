// Package browser provides remote browser automation through Playwright.
//
// The browsers run on a separate backend, either a `playwright run-server`
// instance or any Chrome DevTools Protocol endpoint. A Connector owns the
// local Playwright driver and opens one Session per call to Connect; each
// Session wraps a browser connection, an isolated context and a single page.
//
// # Session Lifecycle
//
//  1. Connect: Connector.Connect makes one connection attempt
//  2. Use: Navigate, WaitFor, Text, Fill and Click operate on the page
//  3. Close: Session.Close releases page, context and connection
//
// Retrying failed connections is left to the caller.
//
// # Errors
//
// Operation errors are classified before they are returned:
//
//   - ErrSessionInvalid: the remote session is gone (target closed, the
//     browser disconnected, or the backend reported a missing session).
//     The session must be closed and replaced.
//   - ErrElementNotFound: the locator matched nothing before the timeout.
//
// Use errors.Is to test for either class.
//
// # Example Usage
//
//	connector := browser.NewConnector(browser.Options{
//	    Endpoint: "ws://localhost:4444/",
//	    Protocol: browser.ProtocolPlaywright,
//	    Headless: true,
//	})
//	if err := connector.Initialize(); err != nil {
//	    return err
//	}
//	defer connector.Shutdown()
//
//	session, err := connector.Connect()
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	err = session.Navigate("https://example.com")
//	text, err := session.Text("//h1", 5*time.Second)
package browser
