package queue

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"photokeeper/internal/gc"
	"photokeeper/internal/identity"
)

// NudgeHandler turns a purge nudge into a targeted sweep of one entry.
type NudgeHandler struct {
	collector *gc.Collector
	logger    zerolog.Logger
}

func NewNudgeHandler(collector *gc.Collector, logger zerolog.Logger) *NudgeHandler {
	return &NudgeHandler{collector: collector, logger: logger}
}

func (h *NudgeHandler) Handle(ctx context.Context, msg redis.XMessage) error {
	raw, _ := msg.Values["contentId"].(string)
	id, err := identity.NormalizeContentID(raw)
	if err != nil {
		// Malformed nudges are acked and dropped; the cron sweep remains
		// the safety net.
		h.logger.Warn().Str("message_id", msg.ID).Str("content_id", raw).Msg("dropping malformed nudge")
		return nil
	}
	return h.collector.SweepOne(ctx, id)
}
