package httpgin

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
	"github.com/kirinyoku/studio-booking/internal/service"
	"github.com/kirinyoku/studio-booking/internal/service/registration"
)

// @Summary  Get programme edition with sessions and availability
// @Param    ref  path  string  true  "Edition ID or programme key"
// @Success  200  {object}  catalog.Programme
// @Failure  404  {object}  ErrorResponse
// @Failure  503  {object}  ErrorResponse
// @Router   /programmes/{ref} [get]
func handleGetProgramme(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svcs.Catalog.Programme(c.Request.Context(), c.Param("ref"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, p, "no-cache")
	}
}

// @Summary  Get availability of every date option of an edition
// @Param    ref  path  string  true  "Edition ID or programme key"
// @Success  200  {object}  domain.EditionAvailability
// @Failure  404  {object}  ErrorResponse
// @Router   /programmes/{ref}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := svcs.Catalog.EditionAvailability(c.Request.Context(), c.Param("ref"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, a)
	}
}

// @Summary  Register for an edition (idempotent)
// @Param    ref  path  string  true  "Edition ID or programme key"
// @Param    req  body  RegisterRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} RegisterResponse
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "some dates full / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /programmes/{ref}/register [post]
func handleRegisterEdition(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := strings.TrimSpace(c.Param("ref"))

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}

		in := registration.EditionInput{
			ContactInput: req.contact(),
			DateChoices:  req.DateChoices,
		}
		clientKey := "ip:" + c.ClientIP()

		withIdempotency(c, idem, "programme:"+ref, func(ctx context.Context) (uuid.UUID, error) {
			return svcs.Registration.RegisterForEdition(ctx, ref, in, clientKey)
		})
	}
}

// @Summary  List upcoming events
// @Success  200  {array}  domain.EventWithAvailability
// @Router   /events [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := svcs.Catalog.Events(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, events, "no-cache")
	}
}

// @Summary  Get event
// @Param    id  path  string  true  "Event ID"
// @Success  200  {object}  domain.EventWithAvailability
// @Failure  404  {object}  ErrorResponse
// @Failure  410  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		ev, err := svcs.Catalog.Event(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, ev, "no-cache")
	}
}

// @Summary  Register for an event (idempotent)
// @Param    id   path  string  true  "Event ID"
// @Param    req  body  RegisterRequest true "payload; dateChoices is ignored"
// @Success  201 {object} RegisterResponse
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse
// @Failure  410 {object} ErrorResponse
// @Router   /events/{id}/register [post]
func handleRegisterEvent(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}

		in := req.contact()
		clientKey := "ip:" + c.ClientIP()

		withIdempotency(c, idem, "event:"+id.String(), func(ctx context.Context) (uuid.UUID, error) {
			return svcs.Registration.RegisterForEvent(ctx, id, in, clientKey)
		})
	}
}

// @Summary  Send a contact or quote request
// @Param    req  body  ContactRequest true "payload"
// @Success  202
// @Failure  400 {object} ErrorResponse
// @Failure  429 {object} ErrorResponse
// @Router   /contact [post]
func handleContact(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ContactRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}

		if err := svcs.Contact.Submit(c.Request.Context(), req.input(), "ip:"+c.ClientIP()); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"success": true})
	}
}

// withIdempotency runs register once per Idempotency-Key. A repeated key
// replays the stored 201 body; a key still in flight answers 409. Without a
// store or a key the request simply runs.
func withIdempotency(
	c *gin.Context,
	idem *redisrepo.IdempotencyStore,
	scope string,
	register func(ctx context.Context) (uuid.UUID, error),
) {
	ctx := c.Request.Context()
	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))

	var storageKey string
	if idem != nil && idemKey != "" {
		key := redisrepo.KeyIdemRegistration(scope, idemKey)

		state, saved, err := idem.Begin(ctx, key)
		switch {
		case err != nil:
			// Redis trouble must not block registrations.
			_ = c.Error(err)
		case state == redisrepo.IdemCompleted:
			c.Header("Idempotency-Key", idemKey)
			c.Data(http.StatusCreated, "application/json; charset=utf-8", saved)
			return
		case state == redisrepo.IdemPending:
			c.Header("Retry-After", "1")
			c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
			return
		default:
			storageKey = key
		}
	}

	id, err := register(ctx)
	if err != nil {
		if storageKey != "" {
			_ = idem.Abort(ctx, storageKey)
		}
		respondErr(c, err)
		return
	}

	resp := RegisterResponse{Success: true, RegistrationID: id.String()}

	if storageKey != "" {
		b, _ := json.Marshal(resp)
		_ = idem.Complete(ctx, storageKey, b)
		c.Header("Idempotency-Key", idemKey)
	}

	c.JSON(http.StatusCreated, resp)
}
