package stage

import (
	"errors"
	"testing"

	"rawci/shared/model"
)

const sha = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

var testLocations = Locations{
	Inbox:      "inbox",
	InProgress: "in-progress",
	Success:    "success",
	Failure:    "failure",
}

func TestClassify(t *testing.T) {
	cases := []struct {
		key  string
		want model.Stage
	}{
		{"inbox/" + sha, model.StageInbox},
		{"in-progress/" + sha, model.StageInProgress},
		{"success/" + sha, model.StageSuccess},
		{"failure/" + sha, model.StageFailure},
	}
	for _, tc := range cases {
		c, ok, err := testLocations.Classify(tc.key)
		if err != nil || !ok {
			t.Fatalf("Classify(%q) = %v, %v", tc.key, ok, err)
		}
		if c.Stage != tc.want || c.SHA != sha || c.Key != tc.key {
			t.Errorf("Classify(%q) = %+v, want stage %s", tc.key, c, tc.want)
		}
	}
}

func TestClassifyDiscardsNonSHAKeys(t *testing.T) {
	for _, key := range []string{
		"success/" + sha + ".log",
		"build-logs/" + sha + ".log",
		"in-progress/README",
		"failure/AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		"unknown/short",
	} {
		_, ok, err := testLocations.Classify(key)
		if ok || err != nil {
			t.Errorf("Classify(%q) = %v, %v, want discarded", key, ok, err)
		}
	}
}

func TestClassifyUnknownPrefix(t *testing.T) {
	_, ok, err := testLocations.Classify("elsewhere/" + sha)
	if !ok {
		t.Fatal("sha-named key should not be discarded")
	}
	if !errors.Is(err, ErrUnclassifiedLocation) {
		t.Errorf("err = %v, want ErrUnclassifiedLocation", err)
	}

	// prefix must end at a folder boundary
	if _, _, err := testLocations.Classify("successful/" + sha); !errors.Is(err, ErrUnclassifiedLocation) {
		t.Errorf("successful/ matched success/: %v", err)
	}
}

func TestClassifyNestedFolders(t *testing.T) {
	nested := Locations{Inbox: "ci", InProgress: "ci/in-progress", Success: "ci/success", Failure: "ci/failure"}
	cases := []struct {
		key  string
		want model.Stage
	}{
		{"ci/" + sha, model.StageInbox},
		{"ci/in-progress/" + sha, model.StageInProgress},
		{"ci/success/" + sha, model.StageSuccess},
		{"ci/failure/" + sha, model.StageFailure},
	}
	for _, tc := range cases {
		c, ok, err := nested.Classify(tc.key)
		if err != nil || !ok || c.Stage != tc.want {
			t.Errorf("Classify(%q) = %s, %v, %v, want %s", tc.key, c.Stage, ok, err, tc.want)
		}
	}

	if _, _, err := nested.Classify("ci/failure/retry-2/" + sha); !errors.Is(err, ErrUnclassifiedLocation) {
		t.Errorf("deeper key matched a stage folder: %v", err)
	}
}

func TestKey(t *testing.T) {
	if got := testLocations.Key(model.StageInProgress, sha); got != "in-progress/"+sha {
		t.Errorf("Key = %q", got)
	}
	if got := SHAFromKey("a/b/c/" + sha); got != sha {
		t.Errorf("SHAFromKey = %q", got)
	}
	if got := SHAFromKey(sha); got != sha {
		t.Errorf("SHAFromKey(no slash) = %q", got)
	}
}
