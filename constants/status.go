package constants

// JobStatus is the canonical state for rows in the jobs table.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "pending"    // inserted by intake, waiting for a worker
	JobStatusProcessing JobStatus = "processing" // claimed by exactly one worker
	JobStatusCompleted  JobStatus = "completed"  // terminal, metrics set
	JobStatusFailed     JobStatus = "failed"     // terminal, error_detail set
)

// JobStatuses lists every state in lifecycle order.
var JobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusProcessing,
	JobStatusCompleted,
	JobStatusFailed,
}

var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known states.
func (s JobStatus) Valid() bool {
	for _, v := range JobStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the job lifecycle.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusStrings returns the states as plain strings, e.g. for enum columns.
func StatusStrings() []string {
	out := make([]string, len(JobStatuses))
	for i, s := range JobStatuses {
		out[i] = string(s)
	}
	return out
}
