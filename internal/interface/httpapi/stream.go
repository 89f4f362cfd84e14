package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// GET /api/scan/progress/{id}
//
// Server-Sent Events で進捗を配信し、終端状態を送ったところで閉じる。
// ?once=1 のときは現在の進捗を JSON で1回だけ返す。
func (h *ScanHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	if once := r.URL.Query().Get("once"); once == "1" || once == "true" {
		p, err := h.service.Progress(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toProgressResponse(p))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream, err := h.service.Watch(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for p := range stream {
		data, err := json.Marshal(toProgressResponse(p))
		if err != nil {
			h.logger.Error("進捗のエンコードに失敗しました", "task_id", id, "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data); err != nil {
			// 観測者が切断した。Watch 側は r.Context() の終了で止まる
			return
		}
		flusher.Flush()
	}
}

// GET /api/scan/progress/{id}/ws
//
// SSE と同じ進捗列を WebSocket の JSON メッセージで配信する。
func (h *ScanHandler) ProgressWS(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// アップグレード前に存在確認し、未知のタスクは 404 で返す
	stream, err := h.service.Watch(ctx, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket へのアップグレードに失敗しました", "task_id", id, "error", err)
		return
	}
	defer conn.Close()

	// クライアントからの切断を検知する
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for p := range stream {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(toProgressResponse(p)); err != nil {
			h.logger.Debug("WebSocket への書き込みを終了します", "task_id", id, "error", err)
			return
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}
