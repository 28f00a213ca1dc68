package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/spf13/pflag"

	"rawci/shared/backend"
	"rawci/shared/config"
	"rawci/shared/pipeline"
	"rawci/shared/records"
)

func newRouter(push *PushHandler, logs *LogServer) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/github/push", push).Methods("POST")
	r.HandleFunc(logRoute, logs.GetLog).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func main() {
	configPath := pflag.String("config", "config.yml", "path to the YAML or JSON config file")
	port := pflag.String("port", "", "listen port (overrides PORT)")
	pflag.Parse()

	log.Println("🚀 Starting Push Ingress...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Port = *port
	}

	backends, err := backend.Open(context.Background(), cfg)
	if err != nil {
		log.Fatalf("❌ Failed to open backends: %v", err)
	}
	defer backends.Close()

	register := records.NewRegister(backends.Store, cfg.Locations)
	publisher := pipeline.NewPublisher(backends.Queue, cfg.Topic(), cfg.NotifyNextTopic)
	push := NewPushHandler(register, publisher, []byte(cfg.GithubWebhookSecret))
	logs := NewLogServer(backends.Store, cfg.BuildLogFolder)

	log.Printf("🌐 Push Ingress for %s is running on port %s...", cfg.BuildName, cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, newRouter(push, logs)))
}
