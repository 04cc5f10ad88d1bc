// Package compat decides which version of a registry entry the running host
// can install. Versions are examined newest first; the newest compatible
// version wins, and when the newest version is not usable the result says
// whether the host is too old or too new for it.
package compat
