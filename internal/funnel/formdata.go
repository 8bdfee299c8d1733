package funnel

// Roof orientation values accepted by the technical step. Domain vocabulary is
// kept in French, matching the backend.
var Orientations = []string{"Sud", "Sud-Est", "Sud-Ouest", "Est", "Ouest"}

// Meter types and phases accepted by the technical step.
var (
	MeterTypes  = []string{"classique", "LINKY"}
	MeterPhases = []string{"mono", "tri"}
)

// FormData is the single record accumulated across wizard steps. It is owned
// by the session and mutated only by the currently active step's form.
type FormData struct {
	// Identity
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`

	// Roof
	RoofSurface     float64 `json:"roof_surface"`
	RoofOrientation string  `json:"roof_orientation"`
	SkylightCount   int     `json:"skylight_count"`

	// Heating
	HeatingSystem      string   `json:"heating_system"`
	SecondaryHeating   []string `json:"secondary_heating"`
	WaterHeatingSystem string   `json:"water_heating_system"`
	WaterTankLiters    *int     `json:"water_tank_liters"`

	// Appliances
	HasWasher      bool `json:"has_washer"`
	HasDryer       bool `json:"has_dryer"`
	HasDishwasher  bool `json:"has_dishwasher"`
	FridgeCount    int  `json:"fridge_count"`
	HasOven        bool `json:"has_oven"`
	HasCooktop     bool `json:"has_cooktop"`
	HasHood        bool `json:"has_hood"`
	HasVentilation bool `json:"has_ventilation"`

	// Meter
	MeterType  string  `json:"meter_type"`
	MeterPower float64 `json:"meter_power_kw"`
	MeterPhase string  `json:"meter_phase"`

	// Consumption. AnnualEDFPayment is derived, never edited directly.
	AnnualConsumption float64 `json:"annual_consumption_kwh"`
	MonthlyEDFPayment float64 `json:"monthly_edf_payment"`
	AnnualEDFPayment  float64 `json:"annual_edf_payment"`
}

// SetMonthlyPayment updates the monthly EDF payment and recomputes the annual
// amount. This is the only way either field changes.
func (f *FormData) SetMonthlyPayment(monthly float64) {
	f.MonthlyEDFPayment = monthly
	f.AnnualEDFPayment = monthly * 12
}
