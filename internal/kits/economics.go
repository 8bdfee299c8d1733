package kits

import (
	"math"

	"github.com/sunelia/solar-funnel/internal/pvgis"
)

// Pricing constants shared by both regions.
const (
	tvaRate            = 1.2  // TTC = HT × 1.2
	commissionRate     = 0.15 // of HT
	panelSurfaceM2     = 2.1  // per panel
	aidPerKW           = 80   // autoconsumption aid, € per kW
	tvaRefundRate      = 0.2  // of TTC, above the power threshold
	tvaRefundThreshold = 3.0  // kW
)

// ComputeEconomics derives the displayed amounts for one raw catalog entry.
// Pure and deterministic: identical input yields identical (pre-rounded)
// output. For France all aids are derived here; for Martinique the backend
// amounts pass through and the TVA refund is always zero.
func ComputeEconomics(raw pvgis.RawKit) Kit {
	kit := Kit{
		Region:     raw.Region,
		Power:      raw.Power,
		PanelCount: raw.PanelCount,
		Surface:    roundTo(float64(raw.PanelCount)*panelSurfaceM2, 1),
		PriceTTC:   round(raw.PriceTTC),
	}

	if raw.Region == pvgis.RegionMartinique {
		kit.PriceHT = round(raw.PriceHT)
		kit.Commission = round(raw.PriceHT * commissionRate)
		kit.AutoconsumptionAid = round(raw.AutoconsumptionAid)
		kit.TVARefund = 0
		kit.TotalAids = round(raw.TotalAids)
		kit.PriceWithAids = kit.PriceTTC - kit.TotalAids
		return kit
	}

	kit.PriceHT = round(raw.PriceTTC / tvaRate)
	kit.Commission = round(kit.PriceHT * commissionRate)
	kit.AutoconsumptionAid = round(raw.Power * aidPerKW)
	if raw.Power > tvaRefundThreshold {
		kit.TVARefund = round(raw.PriceTTC * tvaRefundRate)
	}
	kit.TotalAids = kit.AutoconsumptionAid + kit.TVARefund
	kit.PriceWithAids = kit.PriceTTC - kit.TotalAids
	return kit
}

func round(x float64) float64 {
	return math.Round(x)
}

func roundTo(x float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(x*pow) / pow
}
