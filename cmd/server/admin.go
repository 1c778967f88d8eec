package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	persistlog "voxstruct.ai/internal/persistence/log"
	"voxstruct.ai/internal/persistence/snapshot"
	"voxstruct.ai/internal/structure"
)

// admin serves local-only inspection endpoints.
type admin struct {
	st    *structure.Structure
	idx   runtimeIndex
	write func(snapshot.SnapshotV1)
}

func (a *admin) state(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	info, err := a.st.Info(ctx)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}
	resp := struct {
		StructureID string      `json:"structure_id"`
		Seq         uint64      `json:"seq"`
		Clients     int         `json:"clients"`
		Chunks      int         `json:"chunks"`
		EmptyChunks int         `json:"empty_chunks"`
		Nodes       int         `json:"nodes"`
		Vertices    int         `json:"vertices"`
		Triangles   int         `json:"triangles"`
		ChunkEdits  map[int]int `json:"chunk_edits,omitempty"`
	}{
		StructureID: info.ID,
		Seq:         info.Seq,
		Clients:     info.Clients,
		Chunks:      info.Grid.Chunks,
		EmptyChunks: info.Grid.EmptyChunks,
		Nodes:       info.Grid.Nodes,
		Vertices:    info.Grid.Vertices,
		Triangles:   info.Grid.Triangles,
	}
	if a.idx != nil {
		if counts, err := a.idx.ChunkEditCounts(ctx); err == nil {
			resp.ChunkEdits = counts
		}
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (a *admin) snapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	snap, err := a.st.Snapshot(ctx)
	rw.Header().Set("Content-Type", "application/json")
	if err != nil {
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}
	a.write(snap)
	_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "seq": snap.Header.Seq})
}

// edits lists indexed edits at ?pos=x,y,z, newest first.
func (a *admin) edits(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	if a.idx == nil {
		http.Error(rw, "index disabled", http.StatusNotFound)
		return
	}
	pos, ok := parsePos(r.URL.Query().Get("pos"))
	if !ok {
		http.Error(rw, "pos must be x,y,z", http.StatusBadRequest)
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(rw, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	entries, err := a.idx.EditsAt(ctx, pos, limit)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []persistlog.EditEntry{}
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(entries)
}

func parsePos(s string) ([3]int, bool) {
	var out [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return out, false
		}
		out[i] = n
	}
	return out, true
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
