package results

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunelia/solar-funnel/internal/funnel"
	"github.com/sunelia/solar-funnel/internal/pvgis"
)

type fakeDownloader struct {
	reportErr  error
	devisErr   error
	lastRegion string
}

func (f *fakeDownloader) DownloadReport(_ context.Context, clientID string) ([]byte, error) {
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	return []byte("%PDF report " + clientID), nil
}

func (f *fakeDownloader) DownloadDevis(_ context.Context, clientID, region string) ([]byte, error) {
	f.lastRegion = region
	if f.devisErr != nil {
		return nil, f.devisErr
	}
	return []byte("%PDF devis " + clientID), nil
}

func testResult() *pvgis.CalculationResult {
	return &pvgis.CalculationResult{
		ClientID:          "client-1",
		KitPower:          6,
		KitPanelCount:     16,
		KitSurface:        33.6,
		KitPriceTTC:       14990,
		KitPriceHT:        12492,
		PriceWithAids:     11512,
		AnnualProduction:  7400,
		MonthlyProduction: []float64{300, 400, 550, 650, 750, 800, 820, 780, 650, 500, 350, 280},
		AutonomyPercent:   62.5,
		AnnualSavings:     1120,
		TwentyYearSavings: 22400,
		Aids:              pvgis.AidBreakdown{AutoconsumptionAid: 480, TVARefund: 2998, Total: 3478},
		Financing: []pvgis.FinancingOption{
			{Label: "12 mois", DurationMonths: 12, MonthlyPayment: 980, Rate: 0},
		},
		Latitude:  45.76,
		Longitude: 4.83,
	}
}

func resultsServer(t *testing.T, store funnel.Store, downloader Downloader) *httptest.Server {
	t.Helper()
	handler := NewHandler(store, downloader, "experts@sunelia.fr", 5*time.Second, nil, nil)
	r := chi.NewRouter()
	r.Route("/funnel/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/results/{tab}", handler.GetTab)
		r.Get("/report", handler.DownloadReport)
		r.Get("/devis", handler.DownloadDevis)
		r.Get("/contact-expert", handler.ContactExpert)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func sessionWithResult(t *testing.T, store funnel.Store) *funnel.Session {
	t.Helper()
	session := funnel.NewSession("martinique", "standard")
	session.Step = funnel.StepResults
	session.ClientID = "client-1"
	session.Result = testResult()
	session.FormData.FirstName = "Marie"
	session.FormData.LastName = "Dupont"
	session.FormData.Phone = "+596696123456"
	require.NoError(t, store.Create(context.Background(), session))
	return session
}

func TestGetTab_AllTabs(t *testing.T) {
	store := funnel.NewMemoryStore(time.Hour)
	session := sessionWithResult(t, store)
	srv := resultsServer(t, store, &fakeDownloader{})

	for _, tab := range []string{TabOverview, TabTechnical, TabFinancial} {
		resp, err := http.Get(srv.URL + "/funnel/sessions/" + session.ID + "/results/" + tab)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, tab)
		resp.Body.Close()
	}
}

func TestGetTab_Overview(t *testing.T) {
	store := funnel.NewMemoryStore(time.Hour)
	session := sessionWithResult(t, store)
	srv := resultsServer(t, store, &fakeDownloader{})

	resp, err := http.Get(srv.URL + "/funnel/sessions/" + session.ID + "/results/overview")
	require.NoError(t, err)
	defer resp.Body.Close()

	var view OverviewView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, 6.0, view.KitPower)
	assert.Equal(t, 11512.0, view.PriceWithAids)
	assert.Equal(t, 62.5, view.AutonomyPercent)
}

func TestGetTab_Unknown(t *testing.T) {
	store := funnel.NewMemoryStore(time.Hour)
	session := sessionWithResult(t, store)
	srv := resultsServer(t, store, &fakeDownloader{})

	resp, err := http.Get(srv.URL + "/funnel/sessions/" + session.ID + "/results/bogus")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetTab_NoResultYet(t *testing.T) {
	store := funnel.NewMemoryStore(time.Hour)
	session := funnel.NewSession("france", "standard")
	require.NoError(t, store.Create(context.Background(), session))
	srv := resultsServer(t, store, &fakeDownloader{})

	resp, err := http.Get(srv.URL + "/funnel/sessions/" + session.ID + "/results/overview")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDownloadReport(t *testing.T) {
	store := funnel.NewMemoryStore(time.Hour)
	session := sessionWithResult(t, store)
	srv := resultsServer(t, store, &fakeDownloader{})

	resp, err := http.Get(srv.URL + "/funnel/sessions/" + session.ID + "/report")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "etude-solaire-client-1.pdf")
}

func TestDownloadDevis_UsesSessionRegion(t *testing.T) {
	store := funnel.NewMemoryStore(time.Hour)
	session := sessionWithResult(t, store)
	downloader := &fakeDownloader{}
	srv := resultsServer(t, store, downloader)

	resp, err := http.Get(srv.URL + "/funnel/sessions/" + session.ID + "/devis")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "martinique", downloader.lastRegion)
}

func TestDownloadFailures_AreIndependent(t *testing.T) {
	store := funnel.NewMemoryStore(time.Hour)
	session := sessionWithResult(t, store)
	downloader := &fakeDownloader{reportErr: errors.New("pdf service down")}
	srv := resultsServer(t, store, downloader)

	// Report fails with a transient notification...
	resp, err := http.Get(srv.URL + "/funnel/sessions/" + session.ID + "/report")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var payload map[string]Notification
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	assert.Equal(t, "failure", payload["notification"].State)
	assert.Equal(t, int64(5000), payload["notification"].DismissAfterMS)

	// ...while the devis download still succeeds.
	resp, err = http.Get(srv.URL + "/funnel/sessions/" + session.ID + "/devis")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// And the results themselves are untouched.
	resp2, err := http.Get(srv.URL + "/funnel/sessions/" + session.ID + "/results/overview")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestContactExpert_Mailto(t *testing.T) {
	store := funnel.NewMemoryStore(time.Hour)
	session := sessionWithResult(t, store)
	srv := resultsServer(t, store, &fakeDownloader{})

	resp, err := http.Get(srv.URL + "/funnel/sessions/" + session.ID + "/contact-expert")
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	mailto := payload["mailto"]
	assert.Contains(t, mailto, "mailto:experts@sunelia.fr?")
	assert.Contains(t, mailto, "subject=")
	assert.NotContains(t, mailto, "+", "mailto links must use percent encoding")
}
