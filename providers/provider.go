package providers

import (
	"context"
	"fmt"
	"strings"
)

// Category selects the upstream endpoint family and the user-input schema of a bill.
type Category string

const (
	CategoryData        Category = "data"
	CategoryAirtime     Category = "airtime"
	CategoryElectricity Category = "electricity"
	CategoryCable       Category = "cable"
)

// Categories lists every supported bill category.
var Categories = []Category{CategoryData, CategoryAirtime, CategoryElectricity, CategoryCable}

// ParseCategory maps a raw category name onto a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedCategory, s)
}

// HasPlans reports whether purchases in the category are priced by a catalog plan.
func (c Category) HasPlans() bool {
	return c == CategoryData || c == CategoryCable
}

// Provider is a network operator, DISCO or cable company. Code is the identity; Name is display-only.
type Provider struct {
	ID   string
	Name string
	Code string
}

// Plan is a purchasable product of a provider. Amount is in NGN major units.
type Plan struct {
	ID       string
	Name     string
	Code     string
	Amount   float64
	Provider string // provider code
}

// Catalog is the provider/plan listing of one category as returned by an upstream.
type Catalog struct {
	Providers []Provider
	Plans     map[string][]Plan // keyed by provider code
}

// Provider looks a provider up by code, id or display name, case-insensitively.
func (c *Catalog) Provider(key string) (Provider, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Provider{}, false
	}
	for _, p := range c.Providers {
		if strings.EqualFold(p.Code, key) || strings.EqualFold(p.ID, key) || strings.EqualFold(p.Name, key) {
			return p, true
		}
	}
	return Provider{}, false
}

// PlansFor returns the plans of the provider with the given code, never nil.
func (c *Catalog) PlansFor(code string) []Plan {
	if plans, ok := c.Plans[code]; ok && plans != nil {
		return plans
	}
	return []Plan{}
}

// Plan finds planID under the provider identified by providerKey.
func (c *Catalog) Plan(providerKey, planID string) (Provider, Plan, bool) {
	provider, ok := c.Provider(providerKey)
	if !ok {
		return Provider{}, Plan{}, false
	}
	for _, plan := range c.PlansFor(provider.Code) {
		if plan.ID == planID || (plan.Code != "" && plan.Code == planID) {
			return provider, plan, true
		}
	}
	return provider, Plan{}, false
}

// UserInputs is the union of the category-specific purchase fields collected by the front end.
type UserInputs struct {
	Network         string `json:"network,omitempty"`
	PlanID          string `json:"planId,omitempty"`
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	Disco           string `json:"disco,omitempty"`
	MeterType       string `json:"meterType,omitempty"`
	MeterNumber     string `json:"meterNumber,omitempty"`
	CustomerName    string `json:"customerName,omitempty"`
	Provider        string `json:"provider,omitempty"`
	SmartCardNumber string `json:"smartCardNumber,omitempty"`
}

// Missing returns the JSON names of the fields the category requires but the inputs lack.
func (u UserInputs) Missing(c Category) []string {
	var required map[string]string
	switch c {
	case CategoryData:
		required = map[string]string{"network": u.Network, "planId": u.PlanID, "phoneNumber": u.PhoneNumber}
	case CategoryAirtime:
		required = map[string]string{"network": u.Network, "phoneNumber": u.PhoneNumber}
	case CategoryElectricity:
		required = map[string]string{"disco": u.Disco, "meterNumber": u.MeterNumber, "phoneNumber": u.PhoneNumber}
	case CategoryCable:
		required = map[string]string{"provider": u.Provider, "planId": u.PlanID, "smartCardNumber": u.SmartCardNumber, "phoneNumber": u.PhoneNumber}
	}

	var missing []string
	for _, name := range []string{"network", "provider", "disco", "planId", "meterNumber", "smartCardNumber", "phoneNumber"} {
		if v, ok := required[name]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Purchase is a normalized buy instruction. Inputs carry provider codes, not display names.
type Purchase struct {
	Category  Category
	Reference string
	Amount    float64
	Inputs    UserInputs
}

// PaymentReceipt is the canonical result of a settled bill.
type PaymentReceipt struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

// VerifyRequest identifies a meter or smartcard to look up before payment.
type VerifyRequest struct {
	Category     Category
	Number       string // meter or smartcard number
	ProviderCode string
	PlanCode     string // meter type for electricity, bouquet for cable
}

// VerifyResult holds the customer details returned by a verification.
type VerifyResult struct {
	CustomerName string
}

// BillingProvider defines the interface for all upstream billers (Adapter Pattern).
type BillingProvider interface {
	Name() string
	FetchCatalog(ctx context.Context, category Category) (*Catalog, error)
	Buy(ctx context.Context, purchase Purchase) (*PaymentReceipt, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
}
