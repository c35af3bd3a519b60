package stage

// Health summarizes the readiness of one pipeline stage, including the
// provider chain behind it.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy marks a stage as ready to accept work.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy marks a stage as blocked, with detail naming the cause.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
