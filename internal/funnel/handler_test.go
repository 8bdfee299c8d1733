package funnel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunelia/solar-funnel/internal/kits"
	"github.com/sunelia/solar-funnel/internal/pvgis"
)

type fakeKitFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeKitFetcher) GetKits(_ context.Context, region string) ([]pvgis.RawKit, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []pvgis.RawKit{
		{Region: region, Power: 3, PanelCount: 8, PriceTTC: 8990},
		{Region: region, Power: 6, PanelCount: 16, PriceTTC: 14990},
	}, nil
}

type fakeStarter struct {
	mu      sync.Mutex
	started []string
	forgot  []string
}

func (f *fakeStarter) Start(session *Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, session.ID)
}

func (f *fakeStarter) Forget(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgot = append(f.forgot, sessionID)
}

func (f *fakeStarter) startedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

type fakeConfigFetcher struct {
	modesErr error
}

func (f *fakeConfigFetcher) GetRegionConfig(_ context.Context, region string) (*pvgis.RegionConfig, error) {
	return &pvgis.RegionConfig{Code: region, Currency: "EUR"}, nil
}

func (f *fakeConfigFetcher) GetCalculationModes(_ context.Context) ([]pvgis.CalculationMode, error) {
	if f.modesErr != nil {
		return nil, f.modesErr
	}
	return []pvgis.CalculationMode{{Code: "standard"}, {Code: "premium"}}, nil
}

type funnelFixture struct {
	store   *MemoryStore
	starter *fakeStarter
	fetcher *fakeKitFetcher
	srv     *httptest.Server
}

func newFunnelFixture(t *testing.T) *funnelFixture {
	t.Helper()
	store := NewMemoryStore(time.Hour)
	fetcher := &fakeKitFetcher{}
	starter := &fakeStarter{}
	catalog := kits.NewCatalog(fetcher, nil)

	handler := NewHandler(store, catalog, starter, &fakeConfigFetcher{}, "france", "standard", nil, nil)

	r := chi.NewRouter()
	r.Post("/funnel/sessions", handler.CreateSession)
	r.Route("/funnel/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", handler.GetSession)
		r.Post("/next", handler.Next)
		r.Post("/previous", handler.Previous)
		r.Post("/goto", handler.GoTo)
		r.Post("/reset", handler.Reset)
		r.Put("/region", handler.SetRegion)
		r.Put("/mode", handler.SetMode)
		r.Get("/kits", handler.ListKits)
		r.Put("/kit", handler.SelectKit)
		r.Delete("/kit", handler.ClearKit)
	})
	r.Get("/regions/{region}", handler.GetRegionConfig)
	r.Get("/calculation-modes", handler.GetCalculationModes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &funnelFixture{store: store, starter: starter, fetcher: fetcher, srv: srv}
}

func (f *funnelFixture) request(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	data := new(bytes.Buffer)
	_, err = data.ReadFrom(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, data.Bytes()
}

func (f *funnelFixture) createSession(t *testing.T) *Session {
	t.Helper()
	resp, body := f.request(t, http.MethodPost, "/funnel/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var session Session
	require.NoError(t, json.Unmarshal(body, &session))
	return &session
}

func TestHandler_CreateSessionDefaults(t *testing.T) {
	f := newFunnelFixture(t)
	session := f.createSession(t)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "france", session.Region)
	assert.Equal(t, "standard", session.CalculationMode)
	assert.Equal(t, StepStart, session.Step)
}

func TestHandler_CreateSessionRejectsUnknownRegion(t *testing.T) {
	f := newFunnelFixture(t)
	resp, _ := f.request(t, http.MethodPost, "/funnel/sessions", map[string]string{"region": "guyane"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_NextAppliesPayloadAndAdvances(t *testing.T) {
	f := newFunnelFixture(t)
	session := f.createSession(t)
	base := "/funnel/sessions/" + session.ID

	resp, _ := f.request(t, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.request(t, http.MethodPost, base+"/next", map[string]string{
		"first_name": "Marie",
		"last_name":  "Dupont",
		"address":    "12 rue des Lilas, Lyon",
		"phone":      "+33612345678",
		"email":      "marie@example.fr",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated Session
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, StepTechnical, updated.Step)
	assert.Equal(t, "Marie", updated.FormData.FirstName)
}

func TestHandler_NextValidationFailureKeepsStepAndForm(t *testing.T) {
	f := newFunnelFixture(t)
	session := f.createSession(t)
	base := "/funnel/sessions/" + session.ID

	resp, _ := f.request(t, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.request(t, http.MethodPost, base+"/next", map[string]string{
		"first_name": "Marie",
		"email":      "broken",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var payload struct {
		Errors FieldErrors `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "L'adresse e-mail est invalide", payload.Errors["email"])
	assert.Contains(t, payload.Errors, "last_name")

	// Entered values stick even though the step did not move.
	stored, err := f.store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, StepPersonal, stored.Step)
	assert.Equal(t, "Marie", stored.FormData.FirstName)
}

func TestHandler_FullWizardStartsCalculationOnce(t *testing.T) {
	f := newFunnelFixture(t)
	session := f.createSession(t)
	base := "/funnel/sessions/" + session.ID

	steps := []interface{}{
		nil, // start
		map[string]string{
			"first_name": "Marie", "last_name": "Dupont",
			"address": "12 rue des Lilas, Lyon",
			"phone":   "+33612345678", "email": "marie@example.fr",
		},
		map[string]interface{}{
			"roof_surface": "50", "roof_orientation": "Sud", "skylight_count": 0,
			"meter_type": "LINKY", "meter_power_kw": 9, "meter_phase": "mono",
		},
		map[string]interface{}{
			"heating_system": "pompe à chaleur", "water_heating_system": "ballon électrique",
			"water_tank_liters": 200, "has_washer": true, "fridge_count": 1,
		},
		map[string]interface{}{
			"annual_consumption_kwh": "6500", "monthly_edf_payment": "180",
		},
	}

	for _, payload := range steps {
		resp, _ := f.request(t, http.MethodPost, base+"/next", payload)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	stored, err := f.store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, StepCalculation, stored.Step)
	assert.Equal(t, 2160.0, stored.FormData.AnnualEDFPayment, "annual payment is derived from the monthly amount")
	assert.Equal(t, 1, f.starter.startedCount(), "orchestration starts when entering the calculation step")

	// Waiting on the calculation: advancing again is refused.
	resp, _ := f.request(t, http.MethodPost, base+"/next", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandler_PreviousFromStart(t *testing.T) {
	f := newFunnelFixture(t)
	session := f.createSession(t)

	resp, _ := f.request(t, http.MethodPost, "/funnel/sessions/"+session.ID+"/previous", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandler_RegionChangeInvalidatesResult(t *testing.T) {
	f := newFunnelFixture(t)
	session := f.createSession(t)

	// Plant a finished calculation directly in the store.
	stored, err := f.store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	stored.Step = StepResults
	stored.FormData = validForm()
	stored.Result = &pvgis.CalculationResult{KitPower: 6}
	stored.ClientID = "client-1"
	require.NoError(t, f.store.Save(context.Background(), stored))

	resp, body := f.request(t, http.MethodPut, "/funnel/sessions/"+session.ID+"/region",
		map[string]string{"region": "martinique"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated Session
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "martinique", updated.Region)
	assert.Nil(t, updated.Result)
	assert.Equal(t, "Marie", updated.FormData.FirstName)
}

func TestHandler_RegionChangeRejectsUnknownRegion(t *testing.T) {
	f := newFunnelFixture(t)
	session := f.createSession(t)

	resp, _ := f.request(t, http.MethodPut, "/funnel/sessions/"+session.ID+"/region",
		map[string]string{"region": "corse"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_ListKits(t *testing.T) {
	f := newFunnelFixture(t)
	session := f.createSession(t)

	resp, body := f.request(t, http.MethodGet, "/funnel/sessions/"+session.ID+"/kits", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Kits []kits.Kit `json:"kits"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Kits, 2)
	assert.Equal(t, 3.0, payload.Kits[0].Power, "catalog is sorted by power")
}

func TestHandler_ListKitsBackendDown(t *testing.T) {
	f := newFunnelFixture(t)
	f.fetcher.err = errors.New("backend down")
	session := f.createSession(t)

	resp, body := f.request(t, http.MethodGet, "/funnel/sessions/"+session.ID+"/kits", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "indisponible")
}

func TestHandler_SelectAndClearKit(t *testing.T) {
	f := newFunnelFixture(t)
	session := f.createSession(t)
	base := "/funnel/sessions/" + session.ID

	resp, body := f.request(t, http.MethodPut, base+"/kit", map[string]interface{}{"power": 6})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated Session
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.True(t, updated.UseManualKit)
	require.NotNil(t, updated.ManualKit)
	assert.Equal(t, 6.0, updated.ManualKit.Power)

	resp, _ = f.request(t, http.MethodPut, base+"/kit", map[string]interface{}{"power": 12})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.request(t, http.MethodDelete, base+"/kit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated = Session{}
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.False(t, updated.UseManualKit)
	assert.Nil(t, updated.ManualKit)
}

func TestHandler_Reset(t *testing.T) {
	f := newFunnelFixture(t)
	session := f.createSession(t)

	stored, err := f.store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	stored.Step = StepResults
	stored.FormData = validForm()
	stored.Result = &pvgis.CalculationResult{}
	require.NoError(t, f.store.Save(context.Background(), stored))

	resp, body := f.request(t, http.MethodPost, "/funnel/sessions/"+session.ID+"/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated Session
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, StepStart, updated.Step)
	assert.Equal(t, FormData{}, updated.FormData)
	assert.Nil(t, updated.Result)
	assert.Equal(t, []string{session.ID}, f.starter.forgot)
}

func TestHandler_GetSessionNotFound(t *testing.T) {
	f := newFunnelFixture(t)
	resp, _ := f.request(t, http.MethodGet, "/funnel/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_GoToSideStep(t *testing.T) {
	f := newFunnelFixture(t)
	session := f.createSession(t)

	stored, err := f.store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	stored.Step = StepResults
	stored.Result = &pvgis.CalculationResult{}
	require.NoError(t, f.store.Save(context.Background(), stored))

	resp, body := f.request(t, http.MethodPost, "/funnel/sessions/"+session.ID+"/goto",
		map[string]string{"step": "animation"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated Session
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, StepAnimation, updated.Step)

	// Side steps are unreachable from the middle of the wizard.
	resp, _ = f.request(t, http.MethodPost, "/funnel/sessions/"+session.ID+"/goto",
		map[string]string{"step": "heating"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandler_RegionConfigProxy(t *testing.T) {
	f := newFunnelFixture(t)

	resp, body := f.request(t, http.MethodGet, "/regions/martinique", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "martinique")

	resp, _ = f.request(t, http.MethodGet, "/regions/texas", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_CalculationModesProxy(t *testing.T) {
	f := newFunnelFixture(t)

	resp, body := f.request(t, http.MethodGet, "/calculation-modes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "standard")
	assert.Contains(t, string(body), "premium")
}
