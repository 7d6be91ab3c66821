package checkout

import (
	"regexp"
	"strings"

	"github.com/fjod/storefront/internal/domain"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CustomerDetails is the raw step 1 form.
type CustomerDetails struct {
	FullName       string `json:"fullName"`
	ContactEmail   string `json:"contactEmail"`
	EpicUsername   string `json:"epicUsername"`
	EpicLoginEmail string `json:"epicLoginEmail"`
	WhatsAppNumber string `json:"whatsappNumber"`
	Platform       string `json:"platform"`
}

// validateDetails checks the form for the given product type and returns the
// trimmed customer. Crew orders need the Epic account; V-Bucks need a platform.
func validateDetails(d CustomerDetails, pt domain.ProductType) (domain.Customer, error) {
	c := domain.Customer{
		FullName:     strings.TrimSpace(d.FullName),
		ContactEmail: strings.TrimSpace(d.ContactEmail),
		ProductType:  pt,
	}
	if c.FullName == "" || c.ContactEmail == "" {
		return domain.Customer{}, &ValidationError{Field: "details", Message: "Veuillez remplir tous les champs requis"}
	}
	if !emailPattern.MatchString(c.ContactEmail) {
		return domain.Customer{}, &ValidationError{Field: "contactEmail", Message: "Email invalide"}
	}

	if pt == domain.ProductTypeCrew {
		c.EpicUsername = strings.TrimSpace(d.EpicUsername)
		c.EpicLoginEmail = strings.TrimSpace(d.EpicLoginEmail)
		c.WhatsAppNumber = strings.TrimSpace(d.WhatsAppNumber)
		if c.EpicUsername == "" || c.EpicLoginEmail == "" || c.WhatsAppNumber == "" {
			return domain.Customer{}, &ValidationError{Field: "crew", Message: "Veuillez remplir tous les champs Fortnite Crew"}
		}
		if !emailPattern.MatchString(c.EpicLoginEmail) {
			return domain.Customer{}, &ValidationError{Field: "epicLoginEmail", Message: "Email Epic Games invalide"}
		}
		return c, nil
	}

	c.Platform = strings.TrimSpace(d.Platform)
	if c.Platform == "" {
		return domain.Customer{}, &ValidationError{Field: "platform", Message: "Veuillez sélectionner une plateforme"}
	}
	return c, nil
}
