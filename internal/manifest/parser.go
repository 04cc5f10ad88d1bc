package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/extkit-labs/extkit/internal/registry"
	"github.com/spf13/afero"
)

// FileName is the metadata file at the root of every add-on.
const FileName = "package.json"

// InvalidError reports a package.json that parsed but failed validation.
type InvalidError struct {
	Path   string
	Issues []ValidationIssue
}

func (e *InvalidError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.Path != "" {
			msgs = append(msgs, is.Path+": "+is.Message)
		} else {
			msgs = append(msgs, is.Message)
		}
	}
	return fmt.Sprintf("invalid %s: %s", e.Path, strings.Join(msgs, "; "))
}

// rawPackage accepts the npm-style author object as well as a string.
type rawPackage struct {
	registry.Metadata
	Author json.RawMessage `json:"author,omitempty"`
}

type authorObject struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ParsePackage decodes package.json data into registry metadata without
// validating it.
func ParsePackage(data []byte) (registry.Metadata, error) {
	var raw rawPackage
	if err := json.Unmarshal(data, &raw); err != nil {
		return registry.Metadata{}, fmt.Errorf("parsing package metadata: %w", err)
	}
	md := raw.Metadata
	md.Author = parseAuthor(raw.Author)
	return md, nil
}

func parseAuthor(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj authorObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if obj.Email != "" {
		return fmt.Sprintf("%s <%s>", obj.Name, obj.Email)
	}
	return obj.Name
}

// Load reads dir/package.json from fsys, validates it and parses it. A
// missing file is reported with fs.ErrNotExist; a schema failure with
// *InvalidError.
func Load(fsys afero.Fs, dir string) (registry.Metadata, error) {
	path := filepath.Join(dir, FileName)
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return registry.Metadata{}, fmt.Errorf("reading %s: %w", path, fs.ErrNotExist)
		}
		return registry.Metadata{}, fmt.Errorf("reading %s: %w", path, err)
	}

	result, err := Validate(data)
	if err != nil {
		return registry.Metadata{}, fmt.Errorf("validating %s: %w", path, err)
	}
	if !result.Valid {
		return registry.Metadata{}, &InvalidError{Path: path, Issues: result.Issues}
	}
	return ParsePackage(data)
}
