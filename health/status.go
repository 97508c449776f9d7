package health

import (
	"regexp"
	"strings"
	"time"

	"github.com/c360/visionflow/operation"
)

// Status levels
const (
	LevelHealthy   = "healthy"
	LevelDegraded  = "degraded"
	LevelUnhealthy = "unhealthy"
)

// Pre-compiled regexes for error message sanitization
var (
	urlRegex        = regexp.MustCompile(`(https?|nats|wss?)://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`(^|\s)/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health of an operation or a whole engine
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	State       string    `json:"state,omitempty"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related counters
type Metrics struct {
	Cycles       uint64    `json:"cycles"`
	ErrorCount   int       `json:"error_count"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool { return s.Status == LevelHealthy }

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool { return s.Status == LevelDegraded }

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool { return s.Status == LevelUnhealthy }

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, sub)
	return s
}

// sanitizeErrorMessage strips URLs, absolute paths, IP addresses and
// credentials from an error message before it is served.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}
	s := urlRegex.ReplaceAllString(err, "[URL]")
	s = unixPathRegex.ReplaceAllString(s, "$1[PATH]")
	s = ipAddrRegex.ReplaceAllString(s, "[IP]")

	lower := strings.ToLower(s)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret") || strings.Contains(lower, "credential") {
		s = credentialRegex.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// FromState maps an operation state to a health status. Running is healthy,
// a transition or pause is degraded and a stop with an error is unhealthy.
// A clean stop is healthy: sources stop on their own when they finish.
func FromState(name string, state operation.State, err error) Status {
	var s Status
	switch {
	case err != nil && state == operation.Stopped:
		s = NewUnhealthy(name, sanitizeErrorMessage(err.Error()))
	case state == operation.Running:
		s = NewHealthy(name, "Running")
	case state == operation.Stopped:
		s = NewHealthy(name, "Stopped")
	default:
		s = NewDegraded(name, state.String())
	}
	s.State = state.String()
	return s
}

// FromOperation reports the current health of op
func FromOperation(op operation.Operation) Status {
	st := FromState(op.Name(), op.State(), op.Err())
	if c, ok := op.(interface{ Cycles() uint64 }); ok {
		m := &Metrics{Cycles: c.Cycles()}
		if op.Err() != nil {
			m.ErrorCount = 1
		}
		st = st.WithMetrics(m)
	}
	return st
}
