package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
)

// Handler streams broker events until the client disconnects.
// Options may be derived from the request (e.g. a job_id query filter).
func Handler(broker Broker, logger infralogger.Logger, optsFor func(c *gin.Context) []ClientOption) gin.HandlerFunc {
	return func(c *gin.Context) {
		var opts []ClientOption
		if optsFor != nil {
			opts = optsFor(c)
		}

		events, cleanup, err := broker.Subscribe(c.Request.Context(), opts...)
		if errors.Is(err, ErrTooManyClients) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many connections"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "subscribe failed"})
			return
		}
		defer cleanup()

		// streams outlive the server write timeout
		_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

		h := c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		connected := Event{Type: eventTypeConnected, Data: gin.H{"timestamp": now()}}
		if writeErr := writeEvent(c.Writer, connected); writeErr != nil {
			logger.Debug("SSE connect write failed", infralogger.Error(writeErr))
			return
		}

		heartbeatInterval := DefaultHeartbeatInterval
		if hb, ok := broker.(interface{ HeartbeatInterval() time.Duration }); ok {
			heartbeatInterval = hb.HeartbeatInterval()
		}
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if writeErr := writeEvent(c.Writer, event); writeErr != nil {
					logger.Debug("SSE write failed", infralogger.Error(writeErr))
					return
				}
			case <-ticker.C:
				if _, writeErr := fmt.Fprintf(c.Writer, ": heartbeat %s\n\n", now()); writeErr != nil {
					return
				}
				c.Writer.Flush()
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

func writeEvent(w gin.ResponseWriter, event Event) error {
	if err := encodeEvent(w, event); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func encodeEvent(w io.Writer, event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if event.Type != "" {
		if _, err = fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
			return err
		}
	}
	if event.ID != "" {
		if _, err = fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return err
		}
	}
	if event.Retry > 0 {
		if _, err = fmt.Fprintf(w, "retry: %d\n", event.Retry); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
