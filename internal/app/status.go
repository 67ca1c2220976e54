// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"net/http"

	"goji.io"
	"goji.io/pat"

	"github.com/relabs-tech/orientation_streamer/internal/config"
	"github.com/relabs-tech/orientation_streamer/internal/stream"
)

type snapshotter interface {
	Snapshot() stream.Snapshot
}

type statusResponse struct {
	Device    string `json:"device"`
	Source    string `json:"source"`
	Transport string `json:"transport"`
	Variant   string `json:"variant"`
	Connected bool   `json:"connected"`
	stream.Snapshot
}

// NewStatusHandler serves read-only views of the loop:
//
//	GET /api/orientation  latest estimate, 503 until there is one
//	GET /api/status       connection state and counters
func NewStatusHandler(loop snapshotter, cfg *config.Config) http.Handler {
	mux := goji.NewMux()

	mux.HandleFunc(pat.Get("/api/orientation"), func(w http.ResponseWriter, r *http.Request) {
		snap := loop.Snapshot()
		if !snap.HavePose {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, snap.Pose)
	})

	mux.HandleFunc(pat.Get("/api/status"), func(w http.ResponseWriter, r *http.Request) {
		snap := loop.Snapshot()
		writeJSON(w, statusResponse{
			Device:    cfg.DeviceName,
			Source:    cfg.SampleSource,
			Transport: cfg.Transport,
			Variant:   cfg.FrameVariant,
			Connected: snap.State == stream.Streaming,
			Snapshot:  snap,
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
