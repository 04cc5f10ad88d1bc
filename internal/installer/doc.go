// Package installer is the on-disk side of add-on management. Add-ons live
// under an extensions root as <root>/<location>/<id>/, each with a
// package.json. A disabled add-on carries a .disabled marker file.
package installer
