package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"offerchain/core/events"
)

const wsWriteTimeout = 10 * time.Second

// handleEventsWS streams committed events. The optional since query parameter
// replays retained events with a greater sequence first.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	var since uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid since parameter", http.StatusBadRequest)
			return
		}
		since = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, since); err != nil {
		var gap *streamGapError
		if errors.As(err, &gap) {
			_ = conn.Close(websocket.StatusTryAgainLater, gap.Error())
			return
		}
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

// streamGapError reports records the broker dropped for a slow subscriber.
type streamGapError struct {
	last uint64
	got  uint64
}

func (e *streamGapError) Error() string {
	return fmt.Sprintf("events %d to %d dropped; reconnect with since=%d", e.last+1, e.got-1, e.last)
}

// sequenceTracker keeps a stream contiguous. Until the first record is seen
// the baseline is the requested since, and zero accepts any first record.
type sequenceTracker struct {
	last uint64
}

// admit reports whether a record should be written. Records at or below the
// last written sequence are skipped and a jump past its successor is a gap.
func (t *sequenceTracker) admit(seq uint64) (bool, error) {
	if t.last > 0 {
		if seq <= t.last {
			return false, nil
		}
		if seq != t.last+1 {
			return false, &streamGapError{last: t.last, got: seq}
		}
	}
	t.last = seq
	return true, nil
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, since uint64) error {
	updates, cancel, backlog := s.node.Broker().Subscribe(ctx, since)
	defer cancel()

	tracker := &sequenceTracker{last: since}
	if len(backlog) > 0 {
		// history may be trimmed below since+1; resume from what is retained
		tracker.last = backlog[0].Sequence - 1
	}
	write := func(rec events.Record) error {
		ok, err := tracker.admit(rec.Sequence)
		if err != nil {
			s.logger.Warn("event stream gap", "error", err)
			return err
		}
		if !ok {
			return nil
		}
		return writeRecord(ctx, conn, rec)
	}
	for _, rec := range backlog {
		if err := write(rec); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				return nil
			}
			if err := write(rec); err != nil {
				return err
			}
		}
	}
}

func writeRecord(ctx context.Context, conn *websocket.Conn, rec events.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
