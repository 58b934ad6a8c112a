package api

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// Event names sent on /api/events.
const (
	EventReady           = "ready"
	EventArticlesUpdated = "articlesUpdated"
)

const heartbeatInterval = 30 * time.Second

// events streams store change notifications of this process as Server-Sent Events.
func (s *Server) events(c *gin.Context) {
	changed := make(chan struct{}, 1)
	unsubscribe := s.store.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	c.SSEvent(EventReady, gin.H{"at": s.now().UnixMilli()})
	c.Writer.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-changed:
			c.SSEvent(EventArticlesUpdated, gin.H{"at": s.now().UnixMilli()})
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": heartbeat\n\n")
			return err == nil
		}
	})
}
