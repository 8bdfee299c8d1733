package kits

// Kit is one catalog offering, normalized from either backend shape with all
// derived amounts pre-rounded for display.
type Kit struct {
	Region     string  `json:"region"`
	Power      float64 `json:"power_kw"`
	PanelCount int     `json:"panel_count"`
	Surface    float64 `json:"surface_m2"`

	PriceTTC           float64 `json:"price_ttc"`
	PriceHT            float64 `json:"price_ht"`
	Commission         float64 `json:"commission"`
	AutoconsumptionAid float64 `json:"autoconsumption_aid"`
	TVARefund          float64 `json:"tva_refund"`
	TotalAids          float64 `json:"total_aids"`
	PriceWithAids      float64 `json:"price_with_aids"`
}
