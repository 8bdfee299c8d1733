package results

import (
	"github.com/sunelia/solar-funnel/internal/pvgis"
)

// Tab names of the results screen.
const (
	TabOverview  = "overview"
	TabTechnical = "technical"
	TabFinancial = "financial"
)

// OverviewView is the headline figures tab.
type OverviewView struct {
	KitPower          float64 `json:"kit_power"`
	PriceWithAids     float64 `json:"price_with_aids"`
	AutonomyPercent   float64 `json:"autonomy_percent"`
	AnnualSavings     float64 `json:"annual_savings"`
	TwentyYearSavings float64 `json:"twenty_year_savings"`
}

// TechnicalView is the installation specification tab.
type TechnicalView struct {
	KitPower          float64   `json:"kit_power"`
	PanelCount        int       `json:"panel_count"`
	Surface           float64   `json:"surface_m2"`
	AnnualProduction  float64   `json:"annual_production_kwh"`
	MonthlyProduction []float64 `json:"monthly_production_kwh"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
}

// FinancialView is the pricing and financing tab.
type FinancialView struct {
	PriceTTC      float64                 `json:"price_ttc"`
	PriceHT       float64                 `json:"price_ht"`
	Aids          pvgis.AidBreakdown      `json:"aids"`
	PriceWithAids float64                 `json:"price_with_aids"`
	Financing     []pvgis.FinancingOption `json:"financing_options"`
}

// BuildView derives the requested read-only tab from a calculation result.
// The result itself is never mutated.
func BuildView(tab string, result *pvgis.CalculationResult) (interface{}, bool) {
	switch tab {
	case TabOverview:
		return OverviewView{
			KitPower:          result.KitPower,
			PriceWithAids:     result.PriceWithAids,
			AutonomyPercent:   result.AutonomyPercent,
			AnnualSavings:     result.AnnualSavings,
			TwentyYearSavings: result.TwentyYearSavings,
		}, true
	case TabTechnical:
		return TechnicalView{
			KitPower:          result.KitPower,
			PanelCount:        result.KitPanelCount,
			Surface:           result.KitSurface,
			AnnualProduction:  result.AnnualProduction,
			MonthlyProduction: result.MonthlyProduction,
			Latitude:          result.Latitude,
			Longitude:         result.Longitude,
		}, true
	case TabFinancial:
		return FinancialView{
			PriceTTC:      result.KitPriceTTC,
			PriceHT:       result.KitPriceHT,
			Aids:          result.Aids,
			PriceWithAids: result.PriceWithAids,
			Financing:     result.Financing,
		}, true
	default:
		return nil, false
	}
}
