package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/service"
)

// @Summary  List editions
// @Success  200 {array} domain.Edition
// @Router   /admin/editions [get]
func handleAdminListEditions(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		editions, err := svcs.Admin.Editions(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, editions)
	}
}

// @Summary  Create edition with sessions and date options
// @Param    req body  CreateEditionRequest true "payload"
// @Success  201 {object} domain.Edition
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse
// @Router   /admin/editions [post]
func handleAdminCreateEdition(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEditionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		e, err := svcs.Admin.CreateEdition(c.Request.Context(), req.draft())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, e)
	}
}

// @Summary  Update edition
// @Param    id  path  string  true  "Edition ID"
// @Param    req body  UpdateEditionRequest true "fields to change"
// @Success  200 {object} domain.Edition
// @Router   /admin/editions/{id} [patch]
func handleAdminUpdateEdition(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req UpdateEditionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		e, err := svcs.Admin.UpdateEdition(c.Request.Context(), id, req.update())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// @Summary  Archive edition
// @Param    id  path  string  true  "Edition ID"
// @Success  200 {object} domain.Edition
// @Router   /admin/editions/{id}/archive [post]
func handleAdminArchiveEdition(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		e, err := svcs.Admin.ArchiveEdition(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// @Summary  Delete edition with everything under it
// @Param    id  path  string  true  "Edition ID"
// @Success  204
// @Router   /admin/editions/{id} [delete]
func handleAdminDeleteEdition(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		respondErr(c, svcs.Admin.DeleteEdition(c.Request.Context(), id))
	}
}

// @Summary  List registrations of an edition
// @Param    id  path  string  true  "Edition ID"
// @Success  200 {array} domain.Registration
// @Router   /admin/editions/{id}/registrations [get]
func handleAdminListRegistrations(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		regs, err := svcs.Lifecycle.Registrations(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, regs)
	}
}

// @Summary  Update date option
// @Param    id  path  string  true  "Date option ID"
// @Param    req body  UpdateDateOptionRequest true "fields to change"
// @Success  200 {object} domain.DateOption
// @Router   /admin/date-options/{id} [patch]
func handleAdminUpdateDateOption(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req UpdateDateOptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		o, err := svcs.Admin.UpdateDateOption(c.Request.Context(), id, domain.DateOptionUpdate{
			DateTime:    req.DateTime,
			Location:    req.Location,
			MaxCapacity: req.MaxCapacity,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// @Summary  List events
// @Success  200 {array} domain.Event
// @Router   /admin/events [get]
func handleAdminListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := svcs.Admin.Events(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

// @Summary  Create event
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} domain.Event
// @Router   /admin/events [post]
func handleAdminCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		ev, err := svcs.Admin.CreateEvent(c.Request.Context(), req.event())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, ev)
	}
}

// @Summary  Update event
// @Param    id  path  string  true  "Event ID"
// @Param    req body  UpdateEventRequest true "fields to change"
// @Success  200 {object} domain.Event
// @Router   /admin/events/{id} [patch]
func handleAdminUpdateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req UpdateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		ev, err := svcs.Admin.UpdateEvent(c.Request.Context(), id, req.update())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, ev)
	}
}

// @Summary  Archive event
// @Param    id  path  string  true  "Event ID"
// @Success  200 {object} domain.Event
// @Router   /admin/events/{id}/archive [post]
func handleAdminArchiveEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		ev, err := svcs.Admin.ArchiveEvent(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, ev)
	}
}

// @Summary  Delete event and its registrations
// @Param    id  path  string  true  "Event ID"
// @Success  204
// @Router   /admin/events/{id} [delete]
func handleAdminDeleteEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		respondErr(c, svcs.Admin.DeleteEvent(c.Request.Context(), id))
	}
}

// @Summary  List registrations of an event
// @Param    id  path  string  true  "Event ID"
// @Success  200 {array} domain.EventRegistration
// @Router   /admin/events/{id}/registrations [get]
func handleAdminListEventRegistrations(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		regs, err := svcs.Lifecycle.EventRegistrations(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, regs)
	}
}

func bindRegistrationUpdate(c *gin.Context) (domain.RegistrationUpdate, bool) {
	var req UpdateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return domain.RegistrationUpdate{}, false
	}
	upd, err := req.update()
	if err != nil {
		badRequest(c, err.Error())
		return domain.RegistrationUpdate{}, false
	}
	return upd, true
}

// @Summary  Update registration status, notes or contacted flag
// @Param    id  path  string  true  "Registration ID"
// @Param    req body  UpdateRegistrationRequest true "fields to change"
// @Success  200 {object} domain.Registration
// @Failure  409 {object} ErrorResponse "dates full when reinstating"
// @Router   /admin/registrations/{id} [patch]
func handleAdminUpdateRegistration(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		upd, ok := bindRegistrationUpdate(c)
		if !ok {
			return
		}
		reg, err := svcs.Lifecycle.UpdateRegistration(c.Request.Context(), id, upd)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, reg)
	}
}

// @Summary  Send payment request
// @Param    id  path  string  true  "Registration ID"
// @Success  200 {object} domain.Registration
// @Failure  502 {object} ErrorResponse
// @Router   /admin/registrations/{id}/payment-request [post]
func handleAdminRequestPayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		reg, err := svcs.Lifecycle.RequestPayment(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, reg)
	}
}

// @Summary  Delete registration
// @Param    id  path  string  true  "Registration ID"
// @Success  204
// @Router   /admin/registrations/{id} [delete]
func handleAdminDeleteRegistration(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		respondErr(c, svcs.Lifecycle.DeleteRegistration(c.Request.Context(), id))
	}
}

func handleAdminUpdateEventRegistration(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		upd, ok := bindRegistrationUpdate(c)
		if !ok {
			return
		}
		reg, err := svcs.Lifecycle.UpdateEventRegistration(c.Request.Context(), id, upd)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, reg)
	}
}

func handleAdminRequestEventPayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		reg, err := svcs.Lifecycle.RequestEventPayment(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, reg)
	}
}

func handleAdminDeleteEventRegistration(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		respondErr(c, svcs.Lifecycle.DeleteEventRegistration(c.Request.Context(), id))
	}
}
