package catalog

import "fmt"

// NotInstalledError is returned when an operation needs install-side data
// the add-on does not have.
type NotInstalledError struct {
	ID string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("extension %q is not installed", e.ID)
}

// CollaboratorError wraps a failure reported by the install collaborator.
// Catalog state is unchanged when it is returned.
type CollaboratorError struct {
	ID  string
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.ID, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
