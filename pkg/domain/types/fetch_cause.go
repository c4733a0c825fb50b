package types

// FetchCause is the terminal reason a source fetch task failed
type FetchCause string

const (
	FetchCauseTimeout        FetchCause = "timeout"
	FetchCauseAuthentication FetchCause = "authentication"
	FetchCauseQuota          FetchCause = "quota"
	FetchCauseUnknown        FetchCause = "unknown"
	FetchCauseGlobalTimeout  FetchCause = "global-timeout"
)

// Retryable reports whether another attempt may succeed after a failure with this cause
func (c FetchCause) Retryable() bool {
	switch c {
	case FetchCauseAuthentication, FetchCauseGlobalTimeout:
		return false
	default:
		return true
	}
}

func (c FetchCause) String() string {
	return string(c)
}
