package core

import "time"

// Status is the outcome of one target.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Result describes what happened to a single Target.
type Result struct {
	Target   Target
	Status   Status
	Reason   string
	Bytes    int64
	SHA256   string
	Attempts int
	Duration time.Duration
	Err      error
}

// Report collects results in the order the targets were given.
type Report struct {
	Results []Result
}

// Count returns how many results have the given status.
func (r *Report) Count(status Status) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Failed returns the failed results.
func (r *Report) Failed() []Result {
	if r == nil {
		return nil
	}
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Bytes returns the number of bytes downloaded in this report.
func (r *Report) Bytes() int64 {
	if r == nil {
		return 0
	}
	var total int64
	for _, res := range r.Results {
		if res.Status == StatusDownloaded {
			total += res.Bytes
		}
	}
	return total
}
