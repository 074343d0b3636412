package hub

import (
	"time"

	"github.com/neonchat/neonchat/internal/metrics"
	"github.com/neonchat/neonchat/internal/models"
)

// frameWindow is a per-connection sliding window over relayed frames. It is
// only touched on the hub goroutine.
type frameWindow struct {
	stamps    []time.Time
	throttled bool
}

// allow records a frame at now and reports whether it fits in limit frames
// per window.
func (w *frameWindow) allow(now time.Time, limit int, window time.Duration) bool {
	cutoff := now.Add(-window)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// allowFrame applies the per-connection limit to chat and reaction frames.
// The sender is told once per throttled stretch; dropped frames are counted.
func (h *Hub) allowFrame(c *Client, event string) bool {
	if h.opts.FrameLimit <= 0 {
		return true
	}
	if c.frames.allow(h.now(), h.opts.FrameLimit, h.opts.FrameWindow) {
		c.frames.throttled = false
		return true
	}

	metrics.RateLimitHits.WithLabelValues("ws:" + event).Inc()
	if !c.frames.throttled {
		c.frames.throttled = true
		h.logger.Warn().
			Str("type", "security").
			Str("event", "frame_rate_exceeded").
			Str("conn", c.ID).
			Str("remote_addr", c.remoteAddr).
			Msg("connection throttled")
		h.sendTo(c, models.EventErrorMessage, msgSlowDown)
	}
	return false
}
