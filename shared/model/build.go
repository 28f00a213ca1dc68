// shared/model/build.go
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrInvalidSHA      = errors.New("invalid git sha")
	ErrNoGitRef        = errors.New("both git refs were null")
	ErrMalformedRecord = errors.New("malformed build record")
)

var shaPattern = regexp.MustCompile(`^[a-f0-9]{40}$`)

// BuildRecord is the per-commit metadata blob stored at <stageLocation>/<gitSha>.
// PushReceivedAtMillis is the time origin every elapsed-time value is measured from.
type BuildRecord struct {
	GithubRepoFullName   string  `json:"githubRepoFullName"`
	GitSha               string  `json:"gitSha"`
	GitShaBefore         *string `json:"gitShaBefore"`
	GitRef               *string `json:"gitRef"`
	GitBaseRef           *string `json:"gitBaseRef"`
	HeadCommitMessage    string  `json:"headCommitMessage"`
	HeadCommiterUsername string  `json:"headCommiterUsername"`
	PushReceivedAtMillis int64   `json:"pushReceivedAtMillis"`
}

// records written before the field rename carry the webhook timestamp name
type legacyTimestamp struct {
	GithubPushWebhookTimestampMillis *int64 `json:"githubPushWebhookTimestampMillis"`
}

// IsValidSHA reports whether s is a full 40-digit lowercase hex commit sha.
func IsValidSHA(s string) bool {
	return shaPattern.MatchString(s)
}

// Ref picks the ref a notification should describe: gitRef first, then gitBaseRef.
func (r *BuildRecord) Ref() (string, error) {
	if r.GitRef != nil {
		return *r.GitRef, nil
	}
	if r.GitBaseRef != nil {
		return *r.GitBaseRef, nil
	}
	return "", fmt.Errorf("%w for %s", ErrNoGitRef, r.GitSha)
}

// Encode serializes the record to the JSON form stored in the bucket.
func Encode(r *BuildRecord) ([]byte, error) {
	if !IsValidSHA(r.GitSha) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSHA, r.GitSha)
	}
	return json.Marshal(r)
}

// Decode parses a stored record, accepting the legacy timestamp field name.
func Decode(data []byte) (*BuildRecord, error) {
	var record BuildRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	if record.PushReceivedAtMillis == 0 {
		var legacy legacyTimestamp
		if err := json.Unmarshal(data, &legacy); err == nil && legacy.GithubPushWebhookTimestampMillis != nil {
			record.PushReceivedAtMillis = *legacy.GithubPushWebhookTimestampMillis
		}
	}

	if !IsValidSHA(record.GitSha) {
		return nil, fmt.Errorf("%w: %w %q", ErrMalformedRecord, ErrInvalidSHA, record.GitSha)
	}
	return &record, nil
}
