package ward

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo, *Service) {
	svc, _, _ := newTestService(false)
	return NewHandler(svc), echo.New(), svc
}

func jsonRequest(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_CreateWard(t *testing.T) {
	h, e, _ := newTestHandler()
	body := `{"ward_id":"W-001","name":"General A","type":"General","floor":2,"total_beds":10,"available_beds":10,"daily_rate":100}`
	c, rec := jsonRequest(e, http.MethodPost, body)

	if err := h.CreateWard(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_CreateWard_Invalid(t *testing.T) {
	h, e, _ := newTestHandler()
	c, _ := jsonRequest(e, http.MethodPost, `{"name":"no ward id"}`)

	err := h.CreateWard(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_AdmitPatient(t *testing.T) {
	h, e, svc := newTestHandler()
	w := seedWard(t, svc, 5, 5, 100)

	body := `{"ward_id":"` + w.ID.String() + `","patient_id":"` + uuid.NewString() + `","bed_label":"B-1","reason":"observation"}`
	c, rec := jsonRequest(e, http.MethodPost, body)

	if err := h.AdmitPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var alloc Allocation
	if err := json.Unmarshal(rec.Body.Bytes(), &alloc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if alloc.Status != AllocAdmitted {
		t.Errorf("status = %q, want Admitted", alloc.Status)
	}
}

func TestHandler_AdmitPatient_WardNotFound(t *testing.T) {
	h, e, _ := newTestHandler()
	body := `{"ward_id":"` + uuid.NewString() + `","patient_id":"` + uuid.NewString() + `","bed_label":"B-1","reason":"observation"}`
	c, _ := jsonRequest(e, http.MethodPost, body)

	err := h.AdmitPatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_Discharge_AlreadyDischarged(t *testing.T) {
	h, e, svc := newTestHandler()
	w := seedWard(t, svc, 5, 5, 100)
	alloc := admit(t, svc, w.ID, "B-1")
	if _, err := svc.DischargePatient(nil, alloc.ID); err != nil {
		t.Fatalf("discharge: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(alloc.ID.String())

	err := h.DischargePatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestHandler_GetWard_BadID(t *testing.T) {
	h, e, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetWard(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
