package pvgis

// Region codes accepted by the calculation backend.
const (
	RegionFrance     = "france"
	RegionMartinique = "martinique"
)

// RegionConfig is the display configuration for a region.
type RegionConfig struct {
	Code         string `json:"code"`
	Label        string `json:"label"`
	Currency     string `json:"currency"`
	PhonePrefix  string `json:"phone_prefix"`
	DevisEnabled bool   `json:"devis_enabled"`
}

// CalculationMode describes one selectable calculation mode.
type CalculationMode struct {
	Code        string `json:"code"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// ClientPayload is the body for POST /api/clients. Numeric fields are already
// coerced by the caller; pointer fields marshal to null when absent.
type ClientPayload struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`

	RoofSurface     float64 `json:"roof_surface"`
	RoofOrientation string  `json:"roof_orientation"`
	SkylightCount   int     `json:"skylight_count"`

	HeatingSystem      string   `json:"heating_system"`
	SecondaryHeating   []string `json:"secondary_heating"`
	WaterHeatingSystem string   `json:"water_heating_system"`
	WaterTankLiters    *int     `json:"water_tank_liters"`

	HasWasher      bool `json:"has_washer"`
	HasDryer       bool `json:"has_dryer"`
	HasDishwasher  bool `json:"has_dishwasher"`
	FridgeCount    int  `json:"fridge_count"`
	HasOven        bool `json:"has_oven"`
	HasCooktop     bool `json:"has_cooktop"`
	HasHood        bool `json:"has_hood"`
	HasVentilation bool `json:"has_ventilation"`

	MeterType  string  `json:"meter_type"`
	MeterPower float64 `json:"meter_power_kw"`
	MeterPhase string  `json:"meter_phase"`

	AnnualConsumption float64 `json:"annual_consumption_kwh"`
	MonthlyEDFPayment float64 `json:"monthly_edf_payment"`
	AnnualEDFPayment  float64 `json:"annual_edf_payment"`

	ManualKitPower *float64 `json:"manual_kit_power"`
}

// CreatedClient is the response from POST /api/clients.
type CreatedClient struct {
	ID string `json:"id"`
}

// FinancingOption is one entry of the financing options list.
type FinancingOption struct {
	Label          string  `json:"label"`
	DurationMonths int     `json:"duration_months"`
	MonthlyPayment float64 `json:"monthly_payment"`
	Rate           float64 `json:"rate"`
}

// AidBreakdown details the aid amounts applied to the recommended kit.
type AidBreakdown struct {
	AutoconsumptionAid float64 `json:"autoconsumption_aid"`
	TVARefund          float64 `json:"tva_refund"`
	Total              float64 `json:"total"`
}

// CalculationResult is the payload returned by POST /api/calculate/{id}.
// It is consumed read-only by the results views.
type CalculationResult struct {
	ClientID string `json:"client_id"`

	KitPower      float64 `json:"kit_power"`
	KitPanelCount int     `json:"kit_panel_count"`
	KitSurface    float64 `json:"kit_surface"`
	KitPriceTTC   float64 `json:"kit_price_ttc"`
	KitPriceHT    float64 `json:"kit_price_ht"`
	PriceWithAids float64 `json:"price_with_aids"`

	AnnualProduction  float64   `json:"annual_production_kwh"`
	MonthlyProduction []float64 `json:"monthly_production_kwh"`
	AutonomyPercent   float64   `json:"autonomy_percent"`
	AnnualSavings     float64   `json:"annual_savings"`
	TwentyYearSavings float64   `json:"twenty_year_savings"`

	Aids      AidBreakdown      `json:"aids"`
	Financing []FinancingOption `json:"financing_options"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// franceKit is the raw catalog entry for the France backend shape. Aids are
// not present and must be derived client-side.
type franceKit struct {
	Puissance  float64 `json:"puissance"`
	NbPanneaux int     `json:"nb_panneaux"`
	PrixTTC    float64 `json:"prix_ttc"`
}

// martiniqueKit is the raw catalog entry for the Martinique backend shape.
// Aid amounts come pre-computed and TVA refund is always zero.
type martiniqueKit struct {
	PowerKW            float64 `json:"power_kw"`
	PanelCount         int     `json:"panel_count"`
	PriceTTC           float64 `json:"price_ttc"`
	PriceHT            float64 `json:"price_ht"`
	AutoconsumptionAid float64 `json:"autoconsumption_aid"`
	TotalAids          float64 `json:"total_aids"`
}

// RawKit is a catalog entry normalized only at the transport level: one struct
// carrying whichever of the two backend shapes applied, tagged by Region.
type RawKit struct {
	Region     string
	Power      float64
	PanelCount int
	PriceTTC   float64

	// Martinique only; zero for France.
	PriceHT            float64
	AutoconsumptionAid float64
	TotalAids          float64
}

type franceKitsData struct {
	Kits []franceKit `json:"kits"`
}

type martiniqueKitsData struct {
	Kits []martiniqueKit `json:"kits"`
}

type errorData struct {
	Error string `json:"error"`
}
