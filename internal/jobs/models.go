package jobs

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a build job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// CancelReason is the error message set when a user cancels a job.
const CancelReason = "build canceled by user"

// RestartReason is the error message set when a daemon restart interrupts a running job.
const RestartReason = "build interrupted by daemon restart"

var allStatuses = []Status{StatusQueued, StatusRunning, StatusReady, StatusFailed}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status permits no further automatic transitions.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Target selects the output platform of a build.
type Target string

const (
	TargetWeb     Target = "web"
	TargetAndroid Target = "android"
)

// ParseTarget converts a string into a known Target.
func ParseTarget(value string) (Target, bool) {
	normalized := Target(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case TargetWeb, TargetAndroid:
		return normalized, true
	}
	return "", false
}

// Job represents a build job persisted in SQLite.
type Job struct {
	ID            string
	TemplateRef   string
	Target        Target
	Status        Status
	OverridesJSON string
	ErrorMessage  string
	LastLogLine   string

	// Per-target result references. Only the slots matching Target are
	// populated by a build; slots for other targets survive a rebuild.
	ResultRef         string
	WebArchiveRef     string
	WebEntryRef       string
	AndroidPackageRef string

	CoverRef           string
	ScreenshotRefsJSON string
	VideoRef           string

	TimingsJSON string
	StartedAt   *time.Time
	FinishedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SetFailed marks the job failed with the given message and stamps completion.
func (j *Job) SetFailed(message string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.FinishedAt = &now
}

// SetReady marks the job ready and stamps completion.
func (j *Job) SetReady() {
	now := time.Now().UTC()
	j.Status = StatusReady
	j.ErrorMessage = ""
	j.FinishedAt = &now
}

// ClearTargetRefs clears the result references belonging to the given target
// only. Artifacts of a previously built, different target remain addressable.
func (j *Job) ClearTargetRefs(target Target) {
	switch target {
	case TargetWeb:
		j.WebArchiveRef = ""
		j.WebEntryRef = ""
	case TargetAndroid:
		j.AndroidPackageRef = ""
	}
	j.ResultRef = ""
	j.CoverRef = ""
	j.ScreenshotRefsJSON = ""
	j.VideoRef = ""
}

// Timings decodes the per-step duration map. Absent or malformed data yields
// an empty map.
func (j *Job) Timings() map[string]time.Duration {
	out := map[string]time.Duration{}
	raw := strings.TrimSpace(j.TimingsJSON)
	if raw == "" {
		return out
	}
	var millis map[string]int64
	if err := json.Unmarshal([]byte(raw), &millis); err != nil {
		return out
	}
	for step, ms := range millis {
		out[step] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// SetTimings encodes the per-step duration map onto the record.
func (j *Job) SetTimings(timings map[string]time.Duration) {
	if len(timings) == 0 {
		j.TimingsJSON = ""
		return
	}
	millis := make(map[string]int64, len(timings))
	for step, d := range timings {
		millis[step] = d.Milliseconds()
	}
	raw, err := json.Marshal(millis)
	if err != nil {
		return
	}
	j.TimingsJSON = string(raw)
}

// ScreenshotRefs decodes the ordered screenshot reference list.
func (j *Job) ScreenshotRefs() []string {
	raw := strings.TrimSpace(j.ScreenshotRefsJSON)
	if raw == "" {
		return nil
	}
	var refs []string
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return nil
	}
	return refs
}

// SetScreenshotRefs encodes the ordered screenshot reference list.
func (j *Job) SetScreenshotRefs(refs []string) {
	if len(refs) == 0 {
		j.ScreenshotRefsJSON = ""
		return
	}
	raw, err := json.Marshal(refs)
	if err != nil {
		return
	}
	j.ScreenshotRefsJSON = string(raw)
}
