package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"rawci/shared/model"
	"rawci/shared/objectstore"
)

// LogServer serves build logs following the <bucket>/<folder>/<sha>.log
// convention, for buckets that are not publicly readable.
type LogServer struct {
	store  objectstore.Store
	folder string
}

func NewLogServer(store objectstore.Store, folder string) *LogServer {
	return &LogServer{store: store, folder: folder}
}

// logRoute is the mux path template for build logs.
const logRoute = "/{bucket}/{folder}/{sha}.log"

func (s *LogServer) GetLog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if vars["bucket"] != s.store.Bucket() || vars["folder"] != s.folder {
		http.NotFound(w, r)
		return
	}
	sha := vars["sha"]
	if !model.IsValidSHA(sha) {
		http.Error(w, "Invalid commit sha", http.StatusBadRequest)
		return
	}

	key := fmt.Sprintf("%s/%s.log", s.folder, sha)
	data, err := s.store.Get(r.Context(), key, "")
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			http.Error(w, "Build log not found", http.StatusNotFound)
			return
		}
		log.Printf("❌ Failed to read build log %s: %v", key, err)
		http.Error(w, "Failed to read build log", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}
