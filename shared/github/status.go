// Package github posts commit statuses so the GitHub UI shows a pending dot,
// green check or red X next to a commit.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

const (
	DefaultBaseURL   = "https://api.github.com"
	DefaultUserAgent = "rawci-status-reporter"
	// descriptionSuffix marks statuses posted by this system.
	descriptionSuffix = " [RAWCI]"
)

// StatusRequest is the body of POST /repos/{repo}/statuses/{sha}.
type StatusRequest struct {
	State       string `json:"state"`
	TargetURL   string `json:"target_url"`
	Description string `json:"description"`
	Context     string `json:"context"`
}

// Outcome is what the status API said. It is logged and otherwise ignored.
type Outcome struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (o Outcome) Log() {
	if o.Err != nil {
		log.Printf("❌ commit status post %s failed: %v", o.URL, o.Err)
		return
	}
	log.Printf("✅ commit status post %s -> %d %s", o.URL, o.StatusCode, o.Body)
}

type Reporter struct {
	baseURL    string
	token      string
	userAgent  string
	context    string
	httpClient *http.Client
}

// NewReporter creates a reporter. statusContext distinguishes this system's
// checks from others on the same commit, e.g. "raw-ci/unit-tests".
func NewReporter(baseURL, token, userAgent, statusContext string, httpClient *http.Client) *Reporter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Reporter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		userAgent:  userAgent,
		context:    statusContext,
		httpClient: httpClient,
	}
}

// Report posts state for sha. The response is never inspected for success.
func (r *Reporter) Report(ctx context.Context, repoFullName, sha, state, detailURL, description string) Outcome {
	url := fmt.Sprintf("%s/repos/%s/statuses/%s", r.baseURL, repoFullName, sha)
	body, err := json.Marshal(StatusRequest{
		State:       state,
		TargetURL:   detailURL,
		Description: description + descriptionSuffix,
		Context:     r.context,
	})
	if err != nil {
		return Outcome{URL: url, Err: err}
	}
	log.Printf("📤 httpPostGitShaStatusToGithub %s %s", url, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Outcome{URL: url, Err: err}
	}
	req.Header.Set("Authorization", "token "+r.token)
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Outcome{URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return Outcome{URL: url, StatusCode: resp.StatusCode, Body: string(respBody)}
}
