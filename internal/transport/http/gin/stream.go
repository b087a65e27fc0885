package httpgin

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
	"github.com/kirinyoku/studio-booking/internal/service"
)

const streamKeepAlive = 25 * time.Second

// @Summary  Stream availability changes of an edition (SSE)
// @Param    ref  path  string  true  "Edition ID or programme key"
// @Success  200  {object}  domain.EditionAvailability "event: availability"
// @Failure  404  {object}  ErrorResponse
// @Failure  503  {object}  ErrorResponse "stream needs redis"
// @Router   /programmes/{ref}/availability/stream [get]
func handleAvailabilityStream(
	svcs *service.Services,
	feed *redisrepo.AvailabilityFeed,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		if feed == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "availability stream not configured"})
			return
		}

		// Cancelled when the stream ends so the subscription goes with it.
		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		snapshot, err := svcs.Catalog.EditionAvailability(ctx, c.Param("ref"))
		if err != nil {
			respondErr(c, err)
			return
		}
		editionID := snapshot.EditionID
		ref := editionID.String()

		changed := make(chan struct{}, 1)
		ended := make(chan struct{})
		go func() {
			defer close(ended)
			err := feed.Subscribe(ctx, func(_ context.Context, msg redisrepo.AvailabilityChanged) {
				if msg.Scope != redisrepo.ScopeEdition || msg.ID != editionID {
					return
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn("availability subscription ended", "edition_id", editionID, "error", err)
			}
		}()

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.SSEvent("availability", snapshot)
		c.Writer.Flush()

		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case <-changed:
				next, err := svcs.Catalog.EditionAvailability(ctx, ref)
				if err != nil {
					c.SSEvent("error", gin.H{"error": "availability unavailable"})
					return false
				}
				c.SSEvent("availability", next)
				return true
			case <-ended:
				// No further updates can arrive; the client reconnects.
				c.SSEvent("error", gin.H{"error": "availability feed interrupted"})
				return false
			case t := <-ticker.C:
				c.SSEvent("ping", t.Unix())
				return true
			}
		})
	}
}
