package funnel

import (
	"bytes"
	"encoding/json"
)

// stepPayload is the union of every field a wizard form can submit. Fields
// are pointers so an absent key never clobbers a previously entered value;
// apply only copies the fields owned by the active step.
type stepPayload struct {
	// Personal
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Address   *string `json:"address"`
	Phone     *string `json:"phone"`
	Email     *string `json:"email"`

	// Technical
	RoofSurface     *FlexFloat `json:"roof_surface"`
	RoofOrientation *string    `json:"roof_orientation"`
	SkylightCount   *FlexInt   `json:"skylight_count"`
	MeterType       *string    `json:"meter_type"`
	MeterPower      *FlexFloat `json:"meter_power_kw"`
	MeterPhase      *string    `json:"meter_phase"`

	// Heating. WaterTankLiters stays raw so an explicit null ("no tank")
	// can be told apart from an absent key.
	HeatingSystem      *string         `json:"heating_system"`
	SecondaryHeating   *[]string       `json:"secondary_heating"`
	WaterHeatingSystem *string         `json:"water_heating_system"`
	WaterTankLiters    json.RawMessage `json:"water_tank_liters"`
	HasWasher          *bool           `json:"has_washer"`
	HasDryer           *bool           `json:"has_dryer"`
	HasDishwasher      *bool           `json:"has_dishwasher"`
	FridgeCount        *FlexInt        `json:"fridge_count"`
	HasOven            *bool           `json:"has_oven"`
	HasCooktop         *bool           `json:"has_cooktop"`
	HasHood            *bool           `json:"has_hood"`
	HasVentilation     *bool           `json:"has_ventilation"`

	// Consumption
	AnnualConsumption *FlexFloat `json:"annual_consumption_kwh"`
	MonthlyEDFPayment *FlexFloat `json:"monthly_edf_payment"`
}

// apply copies the payload fields owned by step into the form. Fields of
// other steps are ignored even when present.
func (p *stepPayload) apply(step Step, form *FormData) {
	switch step {
	case StepPersonal:
		setString(p.FirstName, &form.FirstName)
		setString(p.LastName, &form.LastName)
		setString(p.Address, &form.Address)
		setString(p.Phone, &form.Phone)
		setString(p.Email, &form.Email)

	case StepTechnical:
		setFloat(p.RoofSurface, &form.RoofSurface)
		setString(p.RoofOrientation, &form.RoofOrientation)
		setInt(p.SkylightCount, &form.SkylightCount)
		setString(p.MeterType, &form.MeterType)
		setFloat(p.MeterPower, &form.MeterPower)
		setString(p.MeterPhase, &form.MeterPhase)

	case StepHeating:
		setString(p.HeatingSystem, &form.HeatingSystem)
		if p.SecondaryHeating != nil {
			form.SecondaryHeating = append([]string(nil), (*p.SecondaryHeating)...)
		}
		setString(p.WaterHeatingSystem, &form.WaterHeatingSystem)
		p.applyWaterTank(form)
		setBool(p.HasWasher, &form.HasWasher)
		setBool(p.HasDryer, &form.HasDryer)
		setBool(p.HasDishwasher, &form.HasDishwasher)
		setInt(p.FridgeCount, &form.FridgeCount)
		setBool(p.HasOven, &form.HasOven)
		setBool(p.HasCooktop, &form.HasCooktop)
		setBool(p.HasHood, &form.HasHood)
		setBool(p.HasVentilation, &form.HasVentilation)

	case StepConsumption:
		setFloat(p.AnnualConsumption, &form.AnnualConsumption)
		if p.MonthlyEDFPayment != nil {
			form.SetMonthlyPayment(float64(*p.MonthlyEDFPayment))
		}
	}
}

func (p *stepPayload) applyWaterTank(form *FormData) {
	raw := bytes.TrimSpace(p.WaterTankLiters)
	if len(raw) == 0 {
		return
	}
	if bytes.Equal(raw, []byte("null")) {
		form.WaterTankLiters = nil
		return
	}
	var liters FlexInt
	if err := liters.UnmarshalJSON(raw); err != nil {
		return
	}
	value := int(liters)
	form.WaterTankLiters = &value
}

func setString(src *string, dst *string) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(src *FlexFloat, dst *float64) {
	if src != nil {
		*dst = float64(*src)
	}
}

func setInt(src *FlexInt, dst *int) {
	if src != nil {
		*dst = int(*src)
	}
}

func setBool(src *bool, dst *bool) {
	if src != nil {
		*dst = *src
	}
}
