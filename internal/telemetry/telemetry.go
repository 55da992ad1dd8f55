// Package telemetry is the logging surface used by every pipeline component.
package telemetry

import (
	"fmt"
)

// API is an abstraction over logging so that tests can assert on reports.
type API interface {
	// ReportBroken reports a component that broke in a way that should be addressed.
	// The id names the component, formatted `component.method`, lowercase, dashes
	// between words.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that is not broken but may warrant investigation.
	ReportWarning(id string, params ...any)

	// ReportInfo reports normal progress.
	ReportInfo(msg string, params ...any)

	// ReportDebug reports detail that is dropped unless verbose logging is on.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the count of an event at this point in time.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id or message with a namespace.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportInfo(msg string, params ...any) {
	s.inner.ReportInfo(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}

// Nop discards every report.
type Nop struct{}

func (Nop) ReportBroken(string, ...any)  {}
func (Nop) ReportWarning(string, ...any) {}
func (Nop) ReportInfo(string, ...any)    {}
func (Nop) ReportDebug(string, ...any)   {}
func (Nop) ReportCount(string, int64)    {}
