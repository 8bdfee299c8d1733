package funnel

import (
	"regexp"
	"strings"
)

// FieldErrors maps a form field name to a user-visible message. An empty map
// means the step is valid.
type FieldErrors map[string]string

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9 .-]{10,}$`)
)

// ValidateStep runs the validator of a single step against the accumulated
// form data. Only the given step is checked, never its neighbors.
func ValidateStep(step Step, form *FormData) FieldErrors {
	switch step {
	case StepStart:
		return FieldErrors{}
	case StepPersonal:
		return validatePersonal(form)
	case StepTechnical:
		return validateTechnical(form)
	case StepHeating:
		return validateHeating(form)
	case StepConsumption:
		return validateConsumption(form)
	default:
		return FieldErrors{}
	}
}

func validatePersonal(form *FormData) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(form.FirstName) == "" {
		errs["first_name"] = "Le prénom est requis"
	}
	if strings.TrimSpace(form.LastName) == "" {
		errs["last_name"] = "Le nom est requis"
	}
	if strings.TrimSpace(form.Address) == "" {
		errs["address"] = "L'adresse est requise"
	}
	if strings.TrimSpace(form.Phone) == "" {
		errs["phone"] = "Le numéro de téléphone est requis"
	} else if !phonePattern.MatchString(strings.TrimSpace(form.Phone)) {
		errs["phone"] = "Le numéro de téléphone est invalide"
	}
	if strings.TrimSpace(form.Email) == "" {
		errs["email"] = "L'adresse e-mail est requise"
	} else if !emailPattern.MatchString(strings.TrimSpace(form.Email)) {
		errs["email"] = "L'adresse e-mail est invalide"
	}
	return errs
}

func validateTechnical(form *FormData) FieldErrors {
	errs := FieldErrors{}
	if form.RoofSurface <= 0 {
		errs["roof_surface"] = "La surface de toiture doit être supérieure à 0"
	} else if form.RoofSurface > 1000 {
		errs["roof_surface"] = "La surface de toiture est invalide"
	}
	if !contains(Orientations, form.RoofOrientation) {
		errs["roof_orientation"] = "L'orientation de la toiture est requise"
	}
	if form.SkylightCount < 0 {
		errs["skylight_count"] = "Le nombre de fenêtres de toit est invalide"
	}
	if !contains(MeterTypes, form.MeterType) {
		errs["meter_type"] = "Le type de compteur est requis"
	}
	if form.MeterPower <= 0 {
		errs["meter_power_kw"] = "La puissance du compteur est requise"
	}
	if !contains(MeterPhases, form.MeterPhase) {
		errs["meter_phase"] = "Le type de raccordement est requis"
	}
	return errs
}

func validateHeating(form *FormData) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(form.HeatingSystem) == "" {
		errs["heating_system"] = "Le système de chauffage principal est requis"
	}
	if strings.TrimSpace(form.WaterHeatingSystem) == "" {
		errs["water_heating_system"] = "Le système de production d'eau chaude est requis"
	}
	if form.WaterTankLiters != nil && *form.WaterTankLiters <= 0 {
		errs["water_tank_liters"] = "La capacité du ballon est invalide"
	}
	if form.FridgeCount < 0 {
		errs["fridge_count"] = "Le nombre de réfrigérateurs est invalide"
	}
	return errs
}

func validateConsumption(form *FormData) FieldErrors {
	errs := FieldErrors{}
	if form.AnnualConsumption <= 0 {
		errs["annual_consumption_kwh"] = "La consommation annuelle est requise"
	}
	if form.MonthlyEDFPayment <= 0 {
		errs["monthly_edf_payment"] = "La mensualité EDF est requise"
	}
	return errs
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
