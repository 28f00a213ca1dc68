package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"rawci/shared/chat"
	"rawci/shared/config"
	"rawci/shared/github"
	"rawci/shared/message"
	"rawci/shared/model"
	"rawci/shared/pipeline"
	"rawci/shared/records"
	"rawci/shared/stage"
	"rawci/shared/template"
)

// ErrRecordGone means the notified record no longer exists at any version.
var ErrRecordGone = errors.New("build record already gone")

// Action is the exit action taken for one notification.
type Action string

const (
	ActionIgnored  Action = "ignored"
	ActionNone     Action = "none"
	ActionDeleted  Action = "deleted"
	ActionRetained Action = "retained"
	ActionChained  Action = "chained"
)

type StatusReporter interface {
	Report(ctx context.Context, repoFullName, sha, state, detailURL, description string) github.Outcome
}

type ChatNotifier interface {
	Notify(ctx context.Context, s model.Stage, record *model.BuildRecord) ([]chat.Outcome, error)
}

// Result summarises what one activation did.
type Result struct {
	Key    string
	Stage  model.Stage
	Action Action
}

// Reconciler reacts to a Build Record appearing under a stage folder: it
// reports the commit status, sends the chat notification and then runs the
// stage's exit action.
type Reconciler struct {
	register    *records.Register
	status      StatusReporter
	chat        ChatNotifier
	publisher   *pipeline.Publisher
	options     config.Options
	buildLogURL func(sha string) string
	Now         func() time.Time
}

func NewReconciler(register *records.Register, status StatusReporter, notifier ChatNotifier, publisher *pipeline.Publisher, options config.Options, buildLogURL func(string) string) *Reconciler {
	return &Reconciler{
		register:    register,
		status:      status,
		chat:        notifier,
		publisher:   publisher,
		options:     options,
		buildLogURL: buildLogURL,
		Now:         time.Now,
	}
}

// Handle processes one storage notification. Noise (non-"exists" states,
// non-sha keys, inbox writes) returns ActionIgnored with no error. A sha-named
// key outside every stage folder returns stage.ErrUnclassifiedLocation. A record
// missing at both the notified and the latest version returns ErrRecordGone;
// one missing only at the notified version returns records.ErrRecordNotFound.
// Render
// errors from the chat notifier are returned after the exit action has run,
// because the status report and the exit action do not depend on chat.
func (r *Reconciler) Handle(ctx context.Context, ev message.StorageEvent) (Result, error) {
	res := Result{Key: ev.Name, Action: ActionIgnored}
	if !ev.Exists() {
		return res, nil
	}

	c, ok, err := r.register.Locations().Classify(ev.Name)
	if !ok {
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.Stage = c.Stage

	commitState, reportable := c.Stage.CommitState()
	if !reportable {
		return res, nil
	}

	// one pinned read feeds both reporters so they cannot disagree about the content
	record, err := r.register.Get(ctx, c.Key, ev.Generation)
	if err != nil {
		if errors.Is(err, records.ErrRecordNotFound) && r.gone(ctx, c.Key, ev.Generation) {
			return res, fmt.Errorf("%w: %s", ErrRecordGone, c.Key)
		}
		return res, err
	}
	log.Printf("📬 %s %s from %s", c.Stage, c.SHA, record.GithubRepoFullName)

	var renderErr error
	var g errgroup.Group
	g.Go(func() error {
		description := fmt.Sprintf("%s from initial receipt to '%s'",
			template.SecondsSince(r.Now(), record.PushReceivedAtMillis), commitState)
		r.status.Report(ctx, record.GithubRepoFullName, c.SHA, commitState, r.buildLogURL(c.SHA), description).Log()
		return nil
	})
	g.Go(func() error {
		outcomes, err := r.chat.Notify(ctx, c.Stage, record)
		if err != nil {
			renderErr = fmt.Errorf("chat notification for %s: %w", c.Key, err)
			return nil
		}
		chat.LogOutcomes(c.SHA, outcomes)
		return nil
	})
	_ = g.Wait()

	res.Action = r.exit(ctx, c)
	return res, renderErr
}

func (r *Reconciler) exit(ctx context.Context, c stage.Classification) Action {
	switch c.Stage {
	case model.StageSuccess:
		if r.options.ChainNextStage {
			// the success folder doubles as the next pipeline's inbox
			r.publisher.PublishNextStage(ctx, c.SHA, r.register.URL(c.Key)).Log()
			return ActionChained
		}
		if r.options.RetainOnSuccess {
			return ActionRetained
		}
		return r.delete(ctx, c.Key)
	case model.StageFailure:
		return r.delete(ctx, c.Key)
	default:
		return ActionNone
	}
}

func (r *Reconciler) delete(ctx context.Context, key string) Action {
	if err := r.register.Delete(ctx, key); err != nil {
		log.Printf("❌ %v", err)
	} else {
		log.Printf("🗑️ deleted %s", key)
	}
	return ActionDeleted
}

// gone reports whether key is missing at its latest version too, which means
// the runner already relocated it and no redelivery will bring it back.
func (r *Reconciler) gone(ctx context.Context, key, generation string) bool {
	if generation == "" {
		return true
	}
	_, err := r.register.Get(ctx, key, "")
	return errors.Is(err, records.ErrRecordNotFound)
}

// HandleAndLog runs Handle and logs the result; used by the queue and
// listener sources, which have nobody to answer to.
func (r *Reconciler) HandleAndLog(ctx context.Context, ev message.StorageEvent) error {
	res, err := r.Handle(ctx, ev)
	switch {
	case err == nil:
		if res.Action != ActionIgnored {
			log.Printf("✅ %s handled: stage=%s action=%s", res.Key, res.Stage, res.Action)
		}
	case errors.Is(err, ErrRecordGone):
		log.Printf("⚠️ %v, nothing to do", err)
		return nil
	case errors.Is(err, records.ErrRecordNotFound):
		log.Printf("⚠️ %s not readable at generation %q: %v", ev.Name, ev.Generation, err)
	default:
		log.Printf("❌ %s: %v", ev.Name, err)
	}
	return err
}
