package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv(Options{})
	return NewHandler(env.svc), env, echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func detailsJSON(d Details) string {
	b, _ := json.Marshal(d)
	return string(b)
}

func expectHTTPError(t *testing.T, err error, code int) *echo.HTTPError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
	return httpErr
}

func TestHandler_RequestOTP(t *testing.T) {
	h, env, e := newTestHandler()
	rec := httptest.NewRecorder()
	if err := h.RequestOTP(e.NewContext(jsonRequest(http.MethodPost, detailsJSON(validDetails())), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var wf Workflow
	if err := json.Unmarshal(rec.Body.Bytes(), &wf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if wf.Phase != PhaseOTPPending || wf.OTPExpiresAt == nil {
		t.Errorf("unexpected workflow %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), env.notifier.lastCode()) {
		t.Error("the otp must never be echoed back")
	}
}

func TestHandler_RequestOTP_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		otpErr error
		code   int
	}{
		{"malformed json", `{"phone":`, nil, http.StatusBadRequest},
		{"invalid phone", `{"patient_name":"A","phone":"123"}`, nil, http.StatusBadRequest},
		{"gateway failure", detailsJSON(validDetails()), errors.New("down"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, env, e := newTestHandler()
			env.notifier.otpErr = tt.otpErr
			expectHTTPError(t, h.RequestOTP(e.NewContext(jsonRequest(http.MethodPost, tt.body), httptest.NewRecorder())), tt.code)
		})
	}
}

func TestHandler_ErrorCarriesWorkflow(t *testing.T) {
	h, _, e := newTestHandler()
	d := validDetails()
	d.Phone = "12"
	err := h.RequestOTP(e.NewContext(jsonRequest(http.MethodPost, detailsJSON(d)), httptest.NewRecorder()))
	httpErr := expectHTTPError(t, err, http.StatusBadRequest)
	wf, ok := httpErr.Message.(Workflow)
	if !ok {
		t.Fatalf("expected workflow message, got %T", httpErr.Message)
	}
	if wf.Phase != PhaseCollectingDetails || wf.Error == nil || !strings.Contains(wf.Error.Message, "phone") {
		t.Errorf("unexpected workflow %+v", wf)
	}
}

func TestHandler_Confirm(t *testing.T) {
	h, env, e := newTestHandler()
	env.svc.RequestOTP(context.Background(), validDetails())

	body := detailsJSON(validDetails())
	body = strings.TrimSuffix(body, "}") + `,"otp":"` + env.notifier.lastCode() + `"}`
	rec := httptest.NewRecorder()
	if err := h.Confirm(e.NewContext(jsonRequest(http.MethodPost, body), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.svc.Wait()
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"phase":"confirmed"`) || !strings.Contains(rec.Body.String(), `"patient_id":"PT2610210001"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_Confirm_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		otp      func(env *testEnv) string
		code     int
	}{
		{"wrong otp", nil, func(*testEnv) string { return "abcdef" }, http.StatusUnauthorized},
		{"conflict", ErrSlotUnavailable, func(env *testEnv) string { return env.notifier.lastCode() }, http.StatusConflict},
		{"store failure", errors.New("timeout"), func(env *testEnv) string { return env.notifier.lastCode() }, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, env, e := newTestHandler()
			env.appointments.err = tt.storeErr
			env.svc.RequestOTP(context.Background(), validDetails())
			body := strings.TrimSuffix(detailsJSON(validDetails()), "}") + `,"otp":"` + tt.otp(env) + `"}`
			expectHTTPError(t, h.Confirm(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())), tt.code)
		})
	}
}

func TestHandler_GetAppointment(t *testing.T) {
	h, env, e := newTestHandler()
	appt, _ := env.appointments.Book(context.Background(), &BookRequest{DoctorID: testDoctorID, Date: env.now, Phone: "9876543210"})

	lookup := func(id, phone string) (*httptest.ResponseRecorder, error) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?phone="+phone, nil), rec)
		c.SetParamNames("patient_id")
		c.SetParamValues(id)
		return rec, h.GetAppointment(c)
	}

	rec, err := lookup(appt.PatientID, "9876543210")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), appt.PatientID) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	_, err = lookup(appt.PatientID, "9123456780")
	expectHTTPError(t, err, http.StatusNotFound)
	_, err = lookup("PT0000000000", "9876543210")
	expectHTTPError(t, err, http.StatusNotFound)
	_, err = lookup(appt.PatientID, "")
	expectHTTPError(t, err, http.StatusBadRequest)
}

func TestHandler_RegisterRoutes_OTPLimiterCoversConfirm(t *testing.T) {
	h, _, e := newTestHandler()
	limited := map[string]bool{}
	otpLimit := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limited[c.Path()] = true
			return echo.NewHTTPError(http.StatusTooManyRequests, "slow down")
		}
	}
	h.RegisterRoutes(e.Group("/api/v1"), otpLimit)

	for _, path := range []string{"/api/v1/bookings/otp", "/api/v1/bookings/otp/resend", "/api/v1/bookings/confirm"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusTooManyRequests || !limited[path] {
			t.Errorf("%s: expected the otp limiter to run, got %d", path, rec.Code)
		}
	}
}
