// File: internal/provider/errors.go
package provider

import "fmt"

// bodyLimit bounds how much of a response body is kept on an error. Full
// provider error pages can run to kilobytes of HTML.
const bodyLimit = 512

// TransportError reports a decision-source transport failure: a non-2xx
// status, a network error, or an undecodable response. Status is zero when
// no HTTP response was received. The agent treats any TransportError as
// fatal to the run; retry policy lives below it, in the provider clients.
type TransportError struct {
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("provider %s: API error: status %d: %s", e.Provider, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("provider %s: transport failure", e.Provider)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// truncateBody clips s to the error body limit.
func truncateBody(s string) string {
	if len(s) <= bodyLimit {
		return s
	}
	return s[:bodyLimit] + "..."
}
