package message

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7/pkg/notification"
)

// ResourceStateExists is the only actionable resource state.
const ResourceStateExists = "exists"

const resourceStateNotExists = "not_exists"

// StorageEvent is a bucket change notification, GCS object-change shaped.
type StorageEvent struct {
	Bucket        string `json:"bucket,omitempty"`
	Name          string `json:"name"`
	ResourceState string `json:"resourceState"`
	Generation    string `json:"generation,omitempty"`
}

func (e StorageEvent) Exists() bool {
	return e.ResourceState == ResourceStateExists
}

// UnmarshalJSON accepts generation as either a JSON string or number.
func (e *StorageEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Bucket        string          `json:"bucket"`
		Name          string          `json:"name"`
		ResourceState string          `json:"resourceState"`
		Generation    json.RawMessage `json:"generation"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Bucket = raw.Bucket
	e.Name = raw.Name
	e.ResourceState = raw.ResourceState
	e.Generation = ""

	if len(raw.Generation) > 0 && string(raw.Generation) != "null" {
		var s string
		if err := json.Unmarshal(raw.Generation, &s); err == nil {
			e.Generation = s
		} else {
			var n json.Number
			if err := json.Unmarshal(raw.Generation, &n); err != nil {
				return fmt.Errorf("generation: %w", err)
			}
			e.Generation = n.String()
		}
	}
	return nil
}

// FromMinioEvent converts one S3-style bucket event record.
func FromMinioEvent(ev notification.Event) (StorageEvent, error) {
	key, err := url.QueryUnescape(ev.S3.Object.Key)
	if err != nil {
		return StorageEvent{}, fmt.Errorf("object key %q: %w", ev.S3.Object.Key, err)
	}
	state := resourceStateNotExists
	if strings.HasPrefix(ev.EventName, "s3:ObjectCreated:") {
		state = ResourceStateExists
	}
	return StorageEvent{
		Bucket:        ev.S3.Bucket.Name,
		Name:          key,
		ResourceState: state,
		Generation:    ev.S3.Object.VersionID,
	}, nil
}

// minioEnvelope is the body MinIO sends to Kafka and webhook targets.
type minioEnvelope struct {
	EventName string               `json:"EventName"`
	Key       string               `json:"Key"`
	Records   []notification.Event `json:"Records"`
}

// DecodeMinioEnvelope parses a MinIO notification target payload into events.
func DecodeMinioEnvelope(data []byte) ([]StorageEvent, error) {
	var env minioEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	events := make([]StorageEvent, 0, len(env.Records))
	for _, rec := range env.Records {
		ev, err := FromMinioEvent(rec)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
