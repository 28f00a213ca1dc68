package model

// Stage is the pipeline state a Build Record occupies, derived from its key prefix.
type Stage int

const (
	StageInbox Stage = iota
	StageInProgress
	StageSuccess
	StageFailure
)

// Commit states understood by the GitHub statuses API.
const (
	CommitStatePending = "pending"
	CommitStateSuccess = "success"
	CommitStateFailure = "failure"
)

func (s Stage) String() string {
	switch s {
	case StageInbox:
		return "inbox"
	case StageInProgress:
		return "inProgress"
	case StageSuccess:
		return "success"
	case StageFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// CommitState maps an observed stage to the status reported for the commit.
// Inbox is never reported.
func (s Stage) CommitState() (string, bool) {
	switch s {
	case StageInProgress:
		return CommitStatePending, true
	case StageSuccess:
		return CommitStateSuccess, true
	case StageFailure:
		return CommitStateFailure, true
	default:
		return "", false
	}
}
