package vcs

import "fmt"

// ConnectionError reports a failed backend connection probe. It aborts the
// whole run: no inventory data can be trusted from a backend that cannot be
// reached.
type ConnectionError struct {
	Backend string
	URL     string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("backend %s: connecting to %s: %v", e.Backend, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// FetchError reports a failed or empty inventory fetch. A backend returning
// zero repositories is a contract violation and is reported this way too.
type FetchError struct {
	Backend string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("backend %s: fetching repositories: %v", e.Backend, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
