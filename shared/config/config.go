// Package config loads the single immutable configuration every service is
// built from. Sources, lowest precedence first: YAML or JSON file, .env, environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rawci/shared/chat"
	"rawci/shared/objectstore"
	"rawci/shared/stage"
)

const messageSettingsKey = "NOTIFICATION_MESSAGE_SETTINGS"

var ErrMissingSetting = errors.New("missing required setting")

// required keys, checked in this order so the first error is stable
var requiredKeys = []string{
	"BUCKET",
	"GCP_PROJECT",
	"GITHUB_ACCESS_TOKEN",
	"CI_INBOX_FOLDER",
	"CI_IN_PROGRESS_FOLDER",
	"CI_SUCCESS_FOLDER",
	"CI_FAILURE_FOLDER",
	"BUILD_LOG_FOLDER",
	"BUILD_NAME",
	"CLEAR_SHA_FILE_ON_SUCCESS",
}

var defaults = map[string]string{
	"PORT":                    "8080",
	"STORE_BACKEND":           "minio",
	"QUEUE_BACKEND":           "redis",
	"STORAGE_EVENTS_SOURCE":   "push",
	"STORAGE_EVENTS_TOPIC":    "rawci-bucket-events",
	"MINIO_ENDPOINT":          "localhost:9000",
	"MINIO_REGION":            "us-east-1",
	"MINIO_USE_SSL":           "false",
	"REDIS_ADDR":              "localhost:6379",
	"KAFKA_BOOTSTRAP_SERVERS": "localhost:9092",
	"KAFKA_GROUP_ID":          "rawci-reconciler",
	"GITHUB_API_URL":          "https://api.github.com",
	"GITHUB_USER_AGENT":       "rawci",
	"BUILD_LOG_BASE_URL":      "https://storage.googleapis.com",
	"RICH_CHAT_ATTACHMENTS":   "false",
}

// every settable string key; environment variables of the same name override the file
var knownKeys = append([]string{
	"NOTIFY_NEXT_TOPIC_ON_SUCCESS",
	"SLACK_WEBHOOK_URL",
	"MINIO_ACCESS_KEY",
	"MINIO_SECRET_KEY",
	"REDIS_PASSWORD",
	"GITHUB_WEBHOOK_SECRET",
	"PUSH_AUTH_SECRET",
}, requiredKeys...)

// Options are the behaviour switches that used to be separate handler variants.
type Options struct {
	ChainNextStage      bool
	RetainOnSuccess     bool
	RichChatAttachments bool
}

type Config struct {
	Bucket            string
	GCPProject        string
	GithubAccessToken string
	Locations         stage.Locations
	BuildLogFolder    string
	BuildName         string
	ClearOnSuccess    bool
	NotifyNextTopic   string
	MessageSettings   chat.Settings
	SlackWebhookURL   string
	RichAttachments   bool

	Port         string
	StoreBackend string
	QueueBackend string
	EventsSource string
	EventsTopic  string

	Minio                 objectstore.MinioConfig
	RedisAddr             string
	RedisPassword         string
	KafkaBootstrapServers string
	KafkaGroupID          string

	GithubAPIURL        string
	GithubUserAgent     string
	BuildLogBaseURL     string
	GithubWebhookSecret string
	PushAuthSecret      string
}

// Topic is the queue topic runners of this pipeline listen on.
func (c Config) Topic() string {
	return c.BuildName + "-topic"
}

// StatusContext distinguishes this pipeline's commit statuses from others.
func (c Config) StatusContext() string {
	return "raw-ci/" + c.BuildName
}

// BuildLogURL is where the runner is expected to have written the build log.
func (c Config) BuildLogURL(sha string) string {
	return fmt.Sprintf("%s/%s/%s/%s.log", strings.TrimRight(c.BuildLogBaseURL, "/"), c.Bucket, c.BuildLogFolder, sha)
}

func (c Config) Options() Options {
	return Options{
		ChainNextStage:      c.NotifyNextTopic != "",
		RetainOnSuccess:     !c.ClearOnSuccess,
		RichChatAttachments: c.RichAttachments,
	}
}

// Load reads path (skipped when empty or absent), then .env, then the
// environment, and fails on any missing required key.
func Load(path string) (Config, error) {
	values, settings, err := readFile(path)
	if err != nil {
		return Config{}, err
	}

	// .env never overrides variables that are already set
	_ = godotenv.Load()

	for _, key := range knownKeys {
		if v, ok := os.LookupEnv(key); ok {
			values[key] = v
		}
	}
	for key := range defaults {
		if v, ok := os.LookupEnv(key); ok {
			values[key] = v
		}
	}
	if raw, ok := os.LookupEnv(messageSettingsKey); ok && strings.TrimSpace(raw) != "" {
		var s chat.Settings
		if err := yaml.Unmarshal([]byte(raw), &s); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", messageSettingsKey, err)
		}
		settings = &s
	}

	return build(values, settings)
}

func readFile(path string) (map[string]string, *chat.Settings, error) {
	values := make(map[string]string)
	if path == "" {
		return values, nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil, nil
		}
		return nil, nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var nodes map[string]yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	var settings *chat.Settings
	for key, node := range nodes {
		if key == messageSettingsKey {
			var s chat.Settings
			if err := node.Decode(&s); err != nil {
				return nil, nil, fmt.Errorf("parse %s: %w", key, err)
			}
			settings = &s
			continue
		}
		if node.Kind != yaml.ScalarNode || node.Tag == "!!null" {
			continue
		}
		values[key] = node.Value
	}
	return values, settings, nil
}

func build(values map[string]string, settings *chat.Settings) (Config, error) {
	get := func(key string) string {
		if v := strings.TrimSpace(values[key]); v != "" {
			return v
		}
		return defaults[key]
	}
	for _, key := range requiredKeys {
		if get(key) == "" {
			return Config{}, fmt.Errorf("%w: you must set %s as an environment variable or in the config file", ErrMissingSetting, key)
		}
	}
	if settings == nil {
		return Config{}, fmt.Errorf("%w: you must set %s as an environment variable or in the config file", ErrMissingSetting, messageSettingsKey)
	}

	clearOnSuccess, err := parseBool("CLEAR_SHA_FILE_ON_SUCCESS", get("CLEAR_SHA_FILE_ON_SUCCESS"))
	if err != nil {
		return Config{}, err
	}
	rich, err := parseBool("RICH_CHAT_ATTACHMENTS", get("RICH_CHAT_ATTACHMENTS"))
	if err != nil {
		return Config{}, err
	}
	useSSL, err := parseBool("MINIO_USE_SSL", get("MINIO_USE_SSL"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Bucket:            get("BUCKET"),
		GCPProject:        get("GCP_PROJECT"),
		GithubAccessToken: get("GITHUB_ACCESS_TOKEN"),
		Locations: stage.Locations{
			Inbox:      folder(get("CI_INBOX_FOLDER")),
			InProgress: folder(get("CI_IN_PROGRESS_FOLDER")),
			Success:    folder(get("CI_SUCCESS_FOLDER")),
			Failure:    folder(get("CI_FAILURE_FOLDER")),
		},
		BuildLogFolder:  folder(get("BUILD_LOG_FOLDER")),
		BuildName:       get("BUILD_NAME"),
		ClearOnSuccess:  clearOnSuccess,
		NotifyNextTopic: get("NOTIFY_NEXT_TOPIC_ON_SUCCESS"),
		MessageSettings: *settings,
		SlackWebhookURL: get("SLACK_WEBHOOK_URL"),
		RichAttachments: rich,

		Port:         get("PORT"),
		StoreBackend: get("STORE_BACKEND"),
		QueueBackend: get("QUEUE_BACKEND"),
		EventsSource: get("STORAGE_EVENTS_SOURCE"),
		EventsTopic:  get("STORAGE_EVENTS_TOPIC"),

		Minio: objectstore.MinioConfig{
			Endpoint:  get("MINIO_ENDPOINT"),
			AccessKey: get("MINIO_ACCESS_KEY"),
			SecretKey: get("MINIO_SECRET_KEY"),
			Region:    get("MINIO_REGION"),
			UseSSL:    useSSL,
			Bucket:    get("BUCKET"),
		},
		RedisAddr:             get("REDIS_ADDR"),
		RedisPassword:         get("REDIS_PASSWORD"),
		KafkaBootstrapServers: get("KAFKA_BOOTSTRAP_SERVERS"),
		KafkaGroupID:          get("KAFKA_GROUP_ID"),

		GithubAPIURL:        get("GITHUB_API_URL"),
		GithubUserAgent:     get("GITHUB_USER_AGENT"),
		BuildLogBaseURL:     get("BUILD_LOG_BASE_URL"),
		GithubWebhookSecret: get("GITHUB_WEBHOOK_SECRET"),
		PushAuthSecret:      get("PUSH_AUTH_SECRET"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if err := oneOf("STORE_BACKEND", c.StoreBackend, "minio", "redis", "memory"); err != nil {
		return err
	}
	if err := oneOf("QUEUE_BACKEND", c.QueueBackend, "redis", "kafka"); err != nil {
		return err
	}
	if err := oneOf("STORAGE_EVENTS_SOURCE", c.EventsSource, "push", "minio", "kafka"); err != nil {
		return err
	}
	if c.EventsSource == "minio" && c.StoreBackend != "minio" {
		return errors.New("STORAGE_EVENTS_SOURCE=minio requires STORE_BACKEND=minio")
	}
	if c.StoreBackend == "minio" {
		if err := c.Minio.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateReconciler checks the settings only the reconciler needs.
func (c Config) ValidateReconciler() error {
	if strings.TrimSpace(c.MessageSettings.MessageTemplate) == "" {
		return fmt.Errorf("%w: %s.messageTemplate", ErrMissingSetting, messageSettingsKey)
	}
	if c.SlackWebhookURL == "" {
		return fmt.Errorf("%w: you must set SLACK_WEBHOOK_URL as an environment variable or in the config file", ErrMissingSetting)
	}
	return nil
}

func parseBool(key, v string) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func oneOf(key, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), v)
}

func folder(v string) string {
	return strings.TrimRight(v, "/")
}
