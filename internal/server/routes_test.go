package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/onecall/internal/models"
	"github.com/zulandar/onecall/internal/poller"
	"github.com/zulandar/onecall/internal/registry"
	"github.com/zulandar/onecall/internal/store"
	"github.com/zulandar/onecall/internal/submission"
	"github.com/zulandar/onecall/internal/telephony"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testDistrictsYAML = `districts:
  - id: CA-USANORTH
    name: USA North 811
    state: CA
    methods: [web, phone]
    phone: "811"
    web_portal: https://www.usanorth.org
  - id: CO-CO811
    name: Colorado 811
    state: CO
    methods: [email]
    email: tickets@co811.org
    email_available: true
`

// fakeSubmitter records submissions and signals each call on a channel so
// tests can wait out the background goroutine.
type fakeSubmitter struct {
	result *submission.Result
	err    error
	called chan string
}

func (f *fakeSubmitter) Submit(ctx context.Context, req *models.Request, district *models.District) (*submission.Result, error) {
	if f.called != nil {
		f.called <- req.ID
	}
	return f.result, f.err
}

type fakeStatusChecker struct {
	result *poller.StatusResult
	err    error
}

func (f *fakeStatusChecker) CheckRequest(ctx context.Context, requestID string) (*poller.StatusResult, error) {
	return f.result, f.err
}

func testServer(t *testing.T, submitter Submitter, checker StatusChecker) (*Server, *gin.Engine) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Request{}, &models.StatusUpdate{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reg, err := registry.Parse([]byte(testDistrictsYAML))
	if err != nil {
		t.Fatalf("parse registry: %v", err)
	}

	s := &Server{
		store:     store.New(db),
		registry:  reg,
		submitter: submitter,
		checker:   checker,
		inFlight:  make(map[string]bool),
	}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	s.registerRoutes(router)
	return s, router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validCreatePayload() map[string]interface{} {
	return map[string]interface{}{
		"districtId":      "CA-USANORTH",
		"contactName":     "Pat Jones",
		"phone":           "555-0100",
		"email":           "pat@example.com",
		"street":          "123 Main St",
		"city":            "Sacramento",
		"state":           "CA",
		"zipCode":         "95814",
		"workType":        "Fence Installation",
		"workDescription": "Installing a wood fence along the back property line",
		"startDate":       "2026-03-15",
	}
}

func TestCreateRequest_SubmitsInBackground(t *testing.T) {
	submitter := &fakeSubmitter{
		result: &submission.Result{Success: true, TicketNumber: "USAN1234"},
		called: make(chan string, 1),
	}
	_, router := testServer(t, submitter, nil)

	w := doJSON(t, router, http.MethodPost, "/api/requests", validCreatePayload())
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var created models.Request
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" {
		t.Error("response has no request id")
	}
	if created.Status != models.StatusPending {
		t.Errorf("status = %q, want %q", created.Status, models.StatusPending)
	}

	select {
	case id := <-submitter.called:
		if id != created.ID {
			t.Errorf("submitted request %q, want %q", id, created.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("background submission never ran")
	}
}

func TestCreateRequest_MissingFields(t *testing.T) {
	_, router := testServer(t, &fakeSubmitter{}, nil)

	payload := validCreatePayload()
	delete(payload, "contactName")

	w := doJSON(t, router, http.MethodPost, "/api/requests", payload)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateRequest_UnknownDistrict(t *testing.T) {
	_, router := testServer(t, &fakeSubmitter{}, nil)

	payload := validCreatePayload()
	payload["districtId"] = "ZZ-NOWHERE"

	w := doJSON(t, router, http.MethodPost, "/api/requests", payload)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "unknown district") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestCreateRequest_BadStartDate(t *testing.T) {
	_, router := testServer(t, &fakeSubmitter{}, nil)

	payload := validCreatePayload()
	payload["startDate"] = "03/15/2026"

	w := doJSON(t, router, http.MethodPost, "/api/requests", payload)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "YYYY-MM-DD") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestCreateRequest_UnsupportedMethod(t *testing.T) {
	_, router := testServer(t, &fakeSubmitter{}, nil)

	payload := validCreatePayload()
	payload["submissionMethod"] = "email" // CA-USANORTH is web+phone

	w := doJSON(t, router, http.MethodPost, "/api/requests", payload)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "does not support") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestGetRequest_NotFound(t *testing.T) {
	_, router := testServer(t, &fakeSubmitter{}, nil)

	w := doJSON(t, router, http.MethodGet, "/api/requests/no-such-id", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetRequest_ReturnsStored(t *testing.T) {
	s, router := testServer(t, &fakeSubmitter{}, nil)

	req := &models.Request{DistrictID: "CA-USANORTH", ContactName: "Pat Jones", StartDate: time.Now()}
	if err := s.store.Create(req); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/requests/"+req.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got models.Request
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != req.ID || got.ContactName != "Pat Jones" {
		t.Errorf("got = %+v", got)
	}
}

func TestListRequests_Filters(t *testing.T) {
	s, router := testServer(t, &fakeSubmitter{}, nil)

	for i, status := range []string{models.StatusSubmitted, models.StatusFailed, models.StatusSubmitted} {
		district := "CA-USANORTH"
		if i == 2 {
			district = "CO-CO811"
		}
		req := &models.Request{DistrictID: district, Status: status, StartDate: time.Now()}
		if err := s.store.Create(req); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	w := doJSON(t, router, http.MethodGet, "/api/requests", nil)
	var all []models.Request
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unfiltered list = %d requests, want 3", len(all))
	}

	w = doJSON(t, router, http.MethodGet, "/api/requests?active=true", nil)
	var active []models.Request
	if err := json.Unmarshal(w.Body.Bytes(), &active); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active list = %d requests, want 2", len(active))
	}

	w = doJSON(t, router, http.MethodGet, "/api/requests?district=CO-CO811", nil)
	var byDistrict []models.Request
	if err := json.Unmarshal(w.Body.Bytes(), &byDistrict); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(byDistrict) != 1 {
		t.Errorf("district list = %d requests, want 1", len(byDistrict))
	}
}

func TestResubmit_FailedRequestRetries(t *testing.T) {
	submitter := &fakeSubmitter{
		result: &submission.Result{Success: true, TicketNumber: "USAN5678"},
		called: make(chan string, 1),
	}
	s, router := testServer(t, submitter, nil)

	req := &models.Request{DistrictID: "CA-USANORTH", Status: models.StatusFailed, StartDate: time.Now()}
	if err := s.store.Create(req); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := doJSON(t, router, http.MethodPost, "/api/requests/"+req.ID+"/submit", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	select {
	case <-submitter.called:
	case <-time.After(2 * time.Second):
		t.Fatal("resubmission never ran")
	}

	got, err := s.store.Get(req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
}

func TestResubmit_SubmittedRequestConflicts(t *testing.T) {
	s, router := testServer(t, &fakeSubmitter{}, nil)

	req := &models.Request{DistrictID: "CA-USANORTH", Status: models.StatusSubmitted, StartDate: time.Now()}
	if err := s.store.Create(req); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := doJSON(t, router, http.MethodPost, "/api/requests/"+req.ID+"/submit", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestResubmit_InFlightConflicts(t *testing.T) {
	s, router := testServer(t, &fakeSubmitter{}, nil)

	req := &models.Request{DistrictID: "CA-USANORTH", StartDate: time.Now()}
	if err := s.store.Create(req); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Simulate an episode already running for this request.
	if !s.beginEpisode(req.ID) {
		t.Fatal("beginEpisode failed on fresh id")
	}
	defer s.endEpisode(req.ID)

	w := doJSON(t, router, http.MethodPost, "/api/requests/"+req.ID+"/submit", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	if !strings.Contains(w.Body.String(), "already in flight") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestCheckRequest_NoCheckerConfigured(t *testing.T) {
	_, router := testServer(t, &fakeSubmitter{}, nil)

	w := doJSON(t, router, http.MethodPost, "/api/requests/any/check", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestCheckRequest_ReturnsResult(t *testing.T) {
	checker := &fakeStatusChecker{
		result: &poller.StatusResult{Status: models.StatusCompleted, Details: "all utilities marked"},
	}
	_, router := testServer(t, &fakeSubmitter{}, checker)

	w := doJSON(t, router, http.MethodPost, "/api/requests/req-1/check", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "all utilities marked") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSetTicket_ReconcilesSynthetic(t *testing.T) {
	s, router := testServer(t, &fakeSubmitter{}, nil)

	req := &models.Request{
		DistrictID:   "CO-CO811",
		Status:       models.StatusSubmitted,
		TicketNumber: "EMAIL-1757000000000",
		StartDate:    time.Now(),
	}
	if err := s.store.Create(req); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := doJSON(t, router, http.MethodPost, "/api/requests/"+req.ID+"/ticket",
		map[string]string{"ticketNumber": "CO-2026-4411"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	got, err := s.store.Get(req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TicketNumber != "CO-2026-4411" {
		t.Errorf("TicketNumber = %q", got.TicketNumber)
	}
}

func TestSetTicket_RequiresTicketNumber(t *testing.T) {
	_, router := testServer(t, &fakeSubmitter{}, nil)

	w := doJSON(t, router, http.MethodPost, "/api/requests/any/ticket", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

type fakeCallResolver struct {
	byCall map[string]string
}

func (f *fakeCallResolver) RequestForCall(callID string) (string, bool) {
	id, ok := f.byCall[callID]
	return id, ok
}

func doForm(t *testing.T, router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTwilioCallStatus_ResolvesViaRegistry(t *testing.T) {
	s, router := testServer(t, &fakeSubmitter{}, nil)

	req := &models.Request{DistrictID: "CA-USANORTH", Status: models.StatusSubmitting, StartDate: time.Now()}
	if err := s.store.Create(req); err != nil {
		t.Fatalf("create: %v", err)
	}
	s.calls = &fakeCallResolver{byCall: map[string]string{"CA-1": req.ID}}

	w := doForm(t, router, telephony.StatusCallbackPath, url.Values{
		"CallSid":      {"CA-1"},
		"CallStatus":   {"completed"},
		"CallDuration": {"95"},
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}

	updates, err := s.store.StatusUpdates(req.ID)
	if err != nil {
		t.Fatalf("StatusUpdates: %v", err)
	}
	if len(updates) != 1 || updates[0].Kind != "call_status" {
		t.Fatalf("updates = %+v, want one call_status entry", updates)
	}
	if !strings.Contains(updates[0].Details, "CA-1") || !strings.Contains(updates[0].Details, "completed") {
		t.Errorf("Details = %s", updates[0].Details)
	}
}

func TestTwilioCallStatus_FallsBackToTag(t *testing.T) {
	s, router := testServer(t, &fakeSubmitter{}, nil)

	req := &models.Request{DistrictID: "CA-USANORTH", Status: models.StatusSubmitting, StartDate: time.Now()}
	if err := s.store.Create(req); err != nil {
		t.Fatalf("create: %v", err)
	}

	w := doForm(t, router, telephony.StatusCallbackPath+"?tag="+req.ID, url.Values{
		"CallSid":    {"CA-2"},
		"CallStatus": {"ringing"},
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}

	updates, err := s.store.StatusUpdates(req.ID)
	if err != nil {
		t.Fatalf("StatusUpdates: %v", err)
	}
	if len(updates) != 1 || updates[0].Kind != "call_status" {
		t.Fatalf("updates = %+v, want one call_status entry", updates)
	}
}

func TestTwilioCallStatus_RequiresCallSid(t *testing.T) {
	_, router := testServer(t, &fakeSubmitter{}, nil)

	w := doForm(t, router, telephony.StatusCallbackPath, url.Values{"CallStatus": {"completed"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTwilioCallStatus_DropsUntrackedCalls(t *testing.T) {
	_, router := testServer(t, &fakeSubmitter{}, nil)

	w := doForm(t, router, telephony.StatusCallbackPath, url.Values{
		"CallSid":    {"CA-unknown"},
		"CallStatus": {"completed"},
	})
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestListDistricts_StateFilter(t *testing.T) {
	_, router := testServer(t, &fakeSubmitter{}, nil)

	w := doJSON(t, router, http.MethodGet, "/api/districts?state=CO", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var districts []models.District
	if err := json.Unmarshal(w.Body.Bytes(), &districts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(districts) != 1 || districts[0].ID != "CO-CO811" {
		t.Errorf("districts = %+v", districts)
	}
}

func TestGetDistrict_NotFound(t *testing.T) {
	_, router := testServer(t, &fakeSubmitter{}, nil)

	w := doJSON(t, router, http.MethodGet, "/api/districts/ZZ-NOWHERE", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHealth(t *testing.T) {
	_, router := testServer(t, &fakeSubmitter{}, nil)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestStart_RequiresDependencies(t *testing.T) {
	tests := []struct {
		name string
		opts StartOpts
		want string
	}{
		{"no store", StartOpts{}, "store is required"},
		{"no registry", StartOpts{Store: &store.Store{}}, "registry is required"},
		{"no submitter", StartOpts{Store: &store.Store{}, Registry: &registry.Registry{}}, "submitter is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Start(context.Background(), tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want to contain %q", err, tt.want)
			}
		})
	}
}
