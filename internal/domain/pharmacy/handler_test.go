package pharmacy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo, *Service, *mockDispensary) {
	svc, _, disp := newTestService()
	return NewHandler(svc), echo.New(), svc, disp
}

func jsonRequest(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_CreatePrescription(t *testing.T) {
	h, e, _, disp := newTestHandler()
	med := seedMedicine(disp, "Amoxicillin", 100)

	body := `{"prescription_id":"RX-100","patient_id":"` + uuid.NewString() + `",
		"doctor_id":"` + uuid.NewString() + `","diagnosis":"bacterial infection",
		"items":[{"medicine_id":"` + med.ID.String() + `","dosage":"500mg","quantity":10}]}`
	c, rec := jsonRequest(e, http.MethodPost, body)

	if err := h.CreatePrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var p Prescription
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if p.Status != StatusPending || p.Items[0].MedicineName != "Amoxicillin" {
		t.Errorf("got status %q name %q, want Pending Amoxicillin", p.Status, p.Items[0].MedicineName)
	}
}

func TestHandler_CreatePrescription_Invalid(t *testing.T) {
	h, e, _, _ := newTestHandler()
	c, _ := jsonRequest(e, http.MethodPost, `{"prescription_id":"RX-100"}`)

	err := h.CreatePrescription(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_IssueItems(t *testing.T) {
	h, e, svc, disp := newTestHandler()
	med := seedMedicine(disp, "Amoxicillin", 100)
	p := seedPrescription(t, svc, Item{MedicineID: med.ID, Dosage: "500mg", Quantity: 10})

	c, rec := jsonRequest(e, http.MethodPost, `{}`)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.IssueItems(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Results []IssueResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Status != ItemIssued || resp.Results[0].Remaining != 90 {
		t.Errorf("results = %+v, want one Issued with remaining 90", resp.Results)
	}
}

func TestHandler_IssueItems_Cancelled(t *testing.T) {
	h, e, svc, disp := newTestHandler()
	med := seedMedicine(disp, "Amoxicillin", 100)
	p := seedPrescription(t, svc, Item{MedicineID: med.ID, Dosage: "500mg", Quantity: 10})
	if _, err := svc.CancelPrescription(nil, p.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	c, _ := jsonRequest(e, http.MethodPost, `{}`)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	err := h.IssueItems(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestHandler_GetPrescription_NotFound(t *testing.T) {
	h, e, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := h.GetPrescription(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
