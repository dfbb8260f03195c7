package scheduling

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospital/booking/internal/platform/auth"
	"github.com/hospital/booking/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public read endpoints and the staff exception
// endpoints. admin must already carry authentication middleware.
func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.GET("/doctors/:id/availability", h.GetAvailability)
	api.GET("/doctors/:id/calendar", h.GetCalendar)

	staff := admin.Group("", auth.RequireRole("admin", "staff"))
	staff.GET("/exceptions", h.ListExceptions)
	staff.GET("/exceptions/:id", h.GetException)
	staff.POST("/exceptions", h.CreateException)
	staff.DELETE("/exceptions/:id", h.DeleteException)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDoctorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	case errors.Is(err, ErrExceptionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "exception not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Doctor Handlers --

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	doc, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	out, err := h.svc.FetchAvailability(c.Request().Context(), id, date, c.QueryParam("window"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetCalendar(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	days := 0
	if raw := c.QueryParam("days"); raw != "" {
		if days, err = strconv.Atoi(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be an integer")
		}
	}
	out, err := h.svc.Calendar(c.Request().Context(), id, c.QueryParam("from"), days)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"doctor_id": id, "days": out})
}

// -- Exception Handlers --

func (h *Handler) CreateException(c echo.Context) error {
	var in ExceptionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	exc, err := in.ToException()
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.CreateException(c.Request().Context(), exc); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, exc)
}

func (h *Handler) GetException(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	exc, err := h.svc.GetException(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, exc)
}

func (h *Handler) ListExceptions(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f ExceptionFilter
	if raw := c.QueryParam("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		f.DoctorID = &id
	}
	if from := c.QueryParam("from"); from != "" {
		f.From = &from
	}
	if to := c.QueryParam("to"); to != "" {
		f.To = &to
	}
	items, total, err := h.svc.ListExceptions(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteException(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteException(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
