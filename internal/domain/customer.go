package domain

type ProductType string

const (
	ProductTypeVBucks ProductType = "vbucks"
	ProductTypeCrew   ProductType = "crew"
)

// Customer is the contact data collected at checkout step 1. Crew orders carry
// the Epic account fields, V-Bucks orders carry the platform.
type Customer struct {
	FullName       string      `json:"fullName"`
	ContactEmail   string      `json:"contactEmail"`
	ProductType    ProductType `json:"productType"`
	EpicUsername   string      `json:"epicUsername,omitempty"`
	EpicLoginEmail string      `json:"epicLoginEmail,omitempty"`
	WhatsAppNumber string      `json:"whatsappNumber,omitempty"`
	Platform       string      `json:"platform,omitempty"`
}

// DisplayName is used on review entries.
func (c Customer) DisplayName() string {
	if c.FullName == "" {
		return "Client"
	}
	return c.FullName
}
