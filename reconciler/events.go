package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"

	"rawci/shared/kafka"
	"rawci/shared/message"
	"rawci/shared/records"
	"rawci/shared/stage"
)

const maxEventBody = 1 << 20

// decodeEvents accepts a bare object-change notification, one wrapped in a
// {"data": ...} envelope, or a MinIO webhook body carrying "Records".
func decodeEvents(body []byte) ([]message.StorageEvent, error) {
	var probe struct {
		Records json.RawMessage `json:"Records"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, err
	}
	if len(probe.Records) > 0 {
		return message.DecodeMinioEnvelope(body)
	}
	if len(probe.Data) > 0 && !bytes.Equal(probe.Data, []byte("null")) {
		body = probe.Data
	}
	var ev message.StorageEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	if ev.Name == "" {
		return nil, errors.New("notification has no object name")
	}
	return []message.StorageEvent{ev}, nil
}

// EventsHandler receives storage notifications over HTTP. The status code tells
// the sender whether to redeliver: 503 when the record is not readable yet,
// 204 for noise and for records already gone, 400 for anything redelivery
// cannot fix.
type EventsHandler struct {
	reconciler *Reconciler
}

func NewEventsHandler(r *Reconciler) *EventsHandler {
	return &EventsHandler{reconciler: r}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}
	events, err := decodeEvents(body)
	if err != nil {
		log.Printf("❌ Malformed storage notification: %v", err)
		http.Error(w, "malformed storage notification", http.StatusBadRequest)
		return
	}

	var handled []string
	for _, ev := range events {
		res, err := h.reconciler.Handle(r.Context(), ev)
		switch {
		case err == nil:
		case errors.Is(err, records.ErrRecordNotFound):
			log.Printf("⚠️ %v", err)
			http.Error(w, "build record not readable yet", http.StatusServiceUnavailable)
			return
		case errors.Is(err, ErrRecordGone), errors.Is(err, stage.ErrUnclassifiedLocation):
			log.Printf("⚠️ %v", err)
			continue
		default:
			log.Printf("❌ %s: %v", ev.Name, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if res.Action == ActionIgnored {
			continue
		}
		log.Printf("✅ %s handled: stage=%s action=%s", res.Key, res.Stage, res.Action)
		handled = append(handled, fmt.Sprintf("%s %s %s", res.Key, res.Stage, res.Action))
	}
	if len(handled) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	for _, line := range handled {
		fmt.Fprintln(w, line)
	}
}

// ListenMinio streams ObjectCreated events straight from the bucket until ctx
// is cancelled, reconnecting after the stream drops.
func ListenMinio(ctx context.Context, client *minio.Client, bucket string, r *Reconciler) {
	for ctx.Err() == nil {
		log.Printf("👂 Listening for bucket notifications on %s", bucket)
		for info := range client.ListenBucketNotification(ctx, bucket, "", "", []string{"s3:ObjectCreated:*"}) {
			if info.Err != nil {
				log.Printf("❌ Bucket notification error: %v", info.Err)
				continue
			}
			for _, rec := range info.Records {
				ev, err := message.FromMinioEvent(rec)
				if err != nil {
					log.Printf("❌ %v", err)
					continue
				}
				r.HandleAndLog(ctx, ev)
			}
		}
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
	}
}

// KafkaHandler consumes MinIO bucket notifications published to a Kafka topic.
func KafkaHandler(r *Reconciler) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		events, err := message.DecodeMinioEnvelope(value)
		if err != nil {
			return fmt.Errorf("decode bucket notification %s: %w", key, err)
		}
		var errs []error
		for _, ev := range events {
			if err := r.HandleAndLog(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
