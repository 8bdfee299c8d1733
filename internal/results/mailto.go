package results

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sunelia/solar-funnel/internal/funnel"
)

// ComposeExpertMailto builds the pre-filled "contact an expert" email link
// from the session's result. Pure string work: no network call, cannot fail.
func ComposeExpertMailto(expertEmail string, session *funnel.Session) string {
	subject := "Étude solaire"
	var body strings.Builder

	fmt.Fprintf(&body, "Bonjour,\n\nJe souhaite être rappelé(e) au sujet de mon étude solaire.\n\n")
	form := session.FormData
	if form.FirstName != "" || form.LastName != "" {
		fmt.Fprintf(&body, "Nom : %s %s\n", form.FirstName, form.LastName)
	}
	if form.Phone != "" {
		fmt.Fprintf(&body, "Téléphone : %s\n", form.Phone)
	}
	if result := session.Result; result != nil {
		subject = fmt.Sprintf("Étude solaire — kit %.0f kWc", result.KitPower)
		fmt.Fprintf(&body, "\nKit recommandé : %.0f kWc (%d panneaux)\n", result.KitPower, result.KitPanelCount)
		fmt.Fprintf(&body, "Prix après aides : %.0f €\n", result.PriceWithAids)
		fmt.Fprintf(&body, "Autonomie estimée : %.0f %%\n", result.AutonomyPercent)
		fmt.Fprintf(&body, "Économies annuelles : %.0f €\n", result.AnnualSavings)
	}
	fmt.Fprintf(&body, "\nCordialement")

	query := url.Values{}
	query.Set("subject", subject)
	query.Set("body", body.String())
	// mailto expects percent-encoded spaces, not form-encoded plus signs.
	encoded := strings.ReplaceAll(query.Encode(), "+", "%20")

	return "mailto:" + expertEmail + "?" + encoded
}
