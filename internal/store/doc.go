// Package store defines the run-progress repository contract shared by the
// progress store sink and the HTTP run endpoints. Implementations live in
// subpackages; this package imports no drivers.
package store
