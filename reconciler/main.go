package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/pflag"

	"rawci/shared/auth"
	"rawci/shared/backend"
	"rawci/shared/chat"
	"rawci/shared/config"
	"rawci/shared/feed"
	"rawci/shared/github"
	"rawci/shared/kafka"
	"rawci/shared/pipeline"
	"rawci/shared/records"
	"rawci/shared/slack"
)

func newRouter(events http.Handler, hub *feed.Hub, pushSecret []byte) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/storage/events", auth.BearerMiddleware(pushSecret)(events)).Methods("POST")
	r.HandleFunc("/ws", hub.HandleWebSocket)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func main() {
	configPath := pflag.String("config", "config.yml", "path to the YAML or JSON config file")
	port := pflag.String("port", "", "listen port (overrides PORT)")
	pflag.Parse()

	log.Println("🚀 Starting Stage Reconciler...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if err := cfg.ValidateReconciler(); err != nil {
		log.Fatalf("❌ Invalid config: %v", err)
	}
	if *port != "" {
		cfg.Port = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to open backends: %v", err)
	}
	defer backends.Close()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	register := records.NewRegister(backends.Store, cfg.Locations)
	reporter := github.NewReporter(cfg.GithubAPIURL, cfg.GithubAccessToken, cfg.GithubUserAgent, cfg.StatusContext(), httpClient)
	hub := feed.NewHub()
	notifier := chat.NewNotifier(cfg.MessageSettings, cfg.BuildName, cfg.RichAttachments, cfg.BuildLogURL,
		slack.NewWebhook(cfg.SlackWebhookURL, httpClient), hub)
	publisher := pipeline.NewPublisher(backends.Queue, cfg.Topic(), cfg.NotifyNextTopic)
	reconciler := NewReconciler(register, reporter, notifier, publisher, cfg.Options(), cfg.BuildLogURL)

	switch cfg.EventsSource {
	case "minio":
		go ListenMinio(ctx, backends.Minio.Client(), cfg.Bucket, reconciler)
	case "kafka":
		consumer, err := kafka.NewConsumer(cfg.KafkaBootstrapServers, cfg.KafkaGroupID)
		if err != nil {
			log.Fatalf("❌ Failed to create Kafka consumer: %v", err)
		}
		defer consumer.Close()
		if err := consumer.Subscribe([]string{cfg.EventsTopic}); err != nil {
			log.Fatalf("❌ Failed to subscribe to %s: %v", cfg.EventsTopic, err)
		}
		go consumer.ConsumeMessages(ctx, KafkaHandler(reconciler))
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: newRouter(NewEventsHandler(reconciler), hub, []byte(cfg.PushAuthSecret)),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("🌐 Stage Reconciler for %s is running on port %s (events: %s)...", cfg.BuildName, cfg.Port, cfg.EventsSource)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("❌ Server error: %v", err)
	}
	log.Println("👋 Stage Reconciler stopped")
}
