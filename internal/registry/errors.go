package registry

import "fmt"

// NetworkError reports a failed registry request. The fetcher only returns
// it when no cached or bundled data could stand in.
type NetworkError struct {
	Op  string // "version check", "registry download", ...
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
