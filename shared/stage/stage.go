// Package stage maps storage keys onto pipeline stages.
package stage

import (
	"errors"
	"fmt"
	"strings"

	"rawci/shared/model"
)

var ErrUnclassifiedLocation = errors.New("unclassified location")

// Locations holds the folder prefix configured for each stage, without a trailing slash.
type Locations struct {
	Inbox      string
	InProgress string
	Success    string
	Failure    string
}

// Folder returns the configured prefix for a stage.
func (l Locations) Folder(s model.Stage) string {
	switch s {
	case model.StageInbox:
		return l.Inbox
	case model.StageInProgress:
		return l.InProgress
	case model.StageSuccess:
		return l.Success
	case model.StageFailure:
		return l.Failure
	default:
		return ""
	}
}

// Key builds the storage key of a record: <stageLocation>/<gitSha>.
func (l Locations) Key(s model.Stage, sha string) string {
	return l.Folder(s) + "/" + sha
}

// Classification is the result of looking at a storage key.
type Classification struct {
	Stage model.Stage
	SHA   string
	Key   string
}

// SHAFromKey returns the substring after the last path separator.
func SHAFromKey(key string) string {
	return key[strings.LastIndex(key, "/")+1:]
}

// Classify decides which stage a key belongs to. ok is false when the key does
// not end in a commit sha, which is ordinary bucket noise (logs, artifacts).
// A sha-named key under no configured prefix returns ErrUnclassifiedLocation.
func (l Locations) Classify(key string) (c Classification, ok bool, err error) {
	sha := SHAFromKey(key)
	if !model.IsValidSHA(sha) {
		return Classification{}, false, nil
	}

	// the folder is everything before the sha; nested stage folders must not shadow each other
	dir := ""
	if i := strings.LastIndex(key, "/"); i >= 0 {
		dir = key[:i]
	}
	for _, s := range []model.Stage{model.StageInbox, model.StageInProgress, model.StageSuccess, model.StageFailure} {
		if folder := l.Folder(s); folder != "" && dir == folder {
			return Classification{Stage: s, SHA: sha, Key: key}, true, nil
		}
	}
	return Classification{}, true, fmt.Errorf("%w: don't know how to handle file %s", ErrUnclassifiedLocation, key)
}
