// Package manifest reads and validates the package.json that describes an
// installed add-on. Validation runs against an embedded JSON schema.
package manifest
