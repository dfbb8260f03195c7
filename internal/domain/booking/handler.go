package booking

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ConfirmRequest is the patient details plus the received code.
type ConfirmRequest struct {
	Details
	OTP string `json:"otp"`
}

// RegisterRoutes mounts the booking endpoints. otpLimit, when non-nil,
// throttles the routes that send SMS.
func (h *Handler) RegisterRoutes(api *echo.Group, otpLimit echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if otpLimit != nil {
		mw = append(mw, otpLimit)
	}
	api.POST("/bookings/otp", h.RequestOTP, mw...)
	api.POST("/bookings/otp/resend", h.ResendOTP, mw...)
	api.POST("/bookings/confirm", h.Confirm, mw...)
	api.GET("/bookings/:patient_id", h.GetAppointment)
}

func statusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindOTPInvalid:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindOTPDispatch:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// workflowError answers with the workflow snapshot so the client can render
// the recovery phase and message.
func workflowError(wf Workflow, err error) error {
	kind := KindOf(err)
	if kind == "" {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return echo.NewHTTPError(statusFor(kind), wf).SetInternal(err)
}

func (h *Handler) RequestOTP(c echo.Context) error {
	var d Details
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	wf, err := h.svc.RequestOTP(c.Request().Context(), d)
	if err != nil {
		return workflowError(wf, err)
	}
	return c.JSON(http.StatusOK, wf)
}

func (h *Handler) ResendOTP(c echo.Context) error {
	var d Details
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	wf, err := h.svc.ResendOTP(c.Request().Context(), d)
	if err != nil {
		return workflowError(wf, err)
	}
	return c.JSON(http.StatusOK, wf)
}

func (h *Handler) Confirm(c echo.Context) error {
	var req ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	wf, err := h.svc.Confirm(c.Request().Context(), req.Details, strings.TrimSpace(req.OTP))
	if err != nil {
		return workflowError(wf, err)
	}
	return c.JSON(http.StatusCreated, wf)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	appt, err := h.svc.GetAppointment(c.Request().Context(), c.Param("patient_id"), c.QueryParam("phone"))
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, appt)
}
