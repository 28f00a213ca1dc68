package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"rawci/shared/auth"
	"rawci/shared/model"
	"rawci/shared/pipeline"
	"rawci/shared/records"
)

const maxWebhookBodySize = 25 << 20

// pushPayload is the subset of GitHub's push webhook that becomes a Build Record.
type pushPayload struct {
	After      string  `json:"after"`
	Before     *string `json:"before"`
	Ref        *string `json:"ref"`
	BaseRef    *string `json:"base_ref"`
	Repository *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	HeadCommit *struct {
		Message   string `json:"message"`
		Committer struct {
			Username string `json:"username"`
		} `json:"committer"`
	} `json:"head_commit"`
}

func (p pushPayload) validate() error {
	if !model.IsValidSHA(p.After) {
		return fmt.Errorf("after: %w: %q", model.ErrInvalidSHA, p.After)
	}
	if p.Repository == nil || p.Repository.FullName == "" {
		return fmt.Errorf("repository.full_name is required")
	}
	if p.HeadCommit == nil {
		return fmt.Errorf("head_commit is required")
	}
	if p.Ref == nil && p.BaseRef == nil {
		return model.ErrNoGitRef
	}
	return nil
}

// PushHandler turns a GitHub push into an inbox record and a pipeline-start message.
type PushHandler struct {
	register      *records.Register
	publisher     *pipeline.Publisher
	webhookSecret []byte
	Now           func() time.Time
}

func NewPushHandler(register *records.Register, publisher *pipeline.Publisher, webhookSecret []byte) *PushHandler {
	return &PushHandler{
		register:      register,
		publisher:     publisher,
		webhookSecret: webhookSecret,
		Now:           time.Now,
	}
}

func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	if deliveryID == "" {
		deliveryID = uuid.New().String()
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		log.Printf("❌ [%s] Failed to read webhook body: %v", deliveryID, err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if len(h.webhookSecret) > 0 {
		if err := auth.VerifyWebhookSignature(h.webhookSecret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
			log.Printf("⚠️ [%s] Webhook signature rejected from %s", deliveryID, r.RemoteAddr)
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
	}

	if event := r.Header.Get("X-GitHub-Event"); event == "ping" {
		log.Printf("📬 [%s] ping received", deliveryID)
		fmt.Fprint(w, "pong")
		return
	}

	var push pushPayload
	if err := json.Unmarshal(body, &push); err != nil {
		log.Printf("❌ [%s] Invalid push body: %v", deliveryID, err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := push.validate(); err != nil {
		log.Printf("❌ [%s] Malformed push: %v", deliveryID, err)
		http.Error(w, "Malformed push: "+err.Error(), http.StatusBadRequest)
		return
	}

	record := &model.BuildRecord{
		GithubRepoFullName:   push.Repository.FullName,
		GitSha:               push.After,
		GitShaBefore:         push.Before,
		GitRef:               push.Ref,
		GitBaseRef:           push.BaseRef,
		HeadCommitMessage:    push.HeadCommit.Message,
		HeadCommiterUsername: push.HeadCommit.Committer.Username,
		PushReceivedAtMillis: h.Now().UnixMilli(),
	}
	log.Printf("📬 [%s] onGithubPushTriggerNewBuild %s@%s", deliveryID, record.GithubRepoFullName, record.GitSha)

	key, err := h.register.Put(r.Context(), model.StageInbox, record)
	if err != nil {
		log.Printf("❌ [%s] Failed to save build record: %v", deliveryID, err)
		http.Error(w, "Failed to save build record", http.StatusInternalServerError)
		return
	}
	log.Printf("✅ [%s] saved %s", deliveryID, key)

	// the record exists now; a lost start signal is logged, not surfaced
	h.publisher.PublishNewBuild(r.Context(), record.GitSha, h.register.URL(key)).Log()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "bucket=%s gitShaFilePath=%s", h.register.Bucket(), key)
}
