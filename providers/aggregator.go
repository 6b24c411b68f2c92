package providers

import (
	"context"
	"fmt"
	"net/http"

	"billpay-gateway/config"

	"go.uber.org/zap"
)

// Aggregator implements BillingProvider against the generic bill aggregator: one endpoint family
// under a single base URL, bearer auth on every call, nested response envelopes.
type Aggregator struct {
	api    *apiClient
	apiKey string
}

var aggregatorCatalogPaths = map[Category]string{
	CategoryData:        "/DataPurchase/getDataInfo",
	CategoryAirtime:     "/Airtime/getAirtimeInfo",
	CategoryElectricity: "/Electricity/getElectricityInfo",
	CategoryCable:       "/CableTV/getCableTVInfo",
}

var aggregatorBuyPaths = map[Category]string{
	CategoryData:        "/DataPurchase/buyData",
	CategoryAirtime:     "/Airtime/buyAirtime",
	CategoryElectricity: "/Electricity/buyElectricity",
	CategoryCable:       "/CableTV/buyCableTV",
}

func NewAggregator(cfg config.AggregatorConfig, httpClient *http.Client, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		api:    newAPIClient("aggregator", cfg.BaseURL, httpClient, logger),
		apiKey: cfg.APIKey,
	}
}

func (a *Aggregator) Name() string {
	return "aggregator"
}

func (a *Aggregator) auth() (string, error) {
	if a.apiKey == "" {
		return "", fmt.Errorf("%w: BILL_API_KEY is not set", ErrMissingCredential)
	}
	return "Bearer " + a.apiKey, nil
}

func (a *Aggregator) post(ctx context.Context, path string, payload any) (any, error) {
	auth, err := a.auth()
	if err != nil {
		return nil, err
	}
	return a.api.do(ctx, apiCall{method: http.MethodPost, path: path, body: payload, auth: auth})
}

// FetchCatalog loads the category listing from the {data:[{providers:[...]}]} envelope.
func (a *Aggregator) FetchCatalog(ctx context.Context, category Category) (*Catalog, error) {
	path, ok := aggregatorCatalogPaths[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCategory, category)
	}
	body, err := a.post(ctx, path, map[string]any{})
	if err != nil {
		return nil, err
	}

	countries := listUnder(body, "data")
	if len(countries) == 0 {
		return nil, fmt.Errorf("aggregator: %s catalog has no data", category)
	}
	providers := asList(asMap(countries[0])["providers"])
	if len(providers) == 0 {
		return nil, fmt.Errorf("aggregator: %s catalog has no providers", category)
	}
	return catalogFromProviders(providers, "providerPlans", "plans"), nil
}

// Buy dispatches the purchase to the category's buy endpoint.
func (a *Aggregator) Buy(ctx context.Context, p Purchase) (*PaymentReceipt, error) {
	in := p.Inputs
	var payload map[string]any
	switch p.Category {
	case CategoryData:
		payload = map[string]any{
			"network":          in.Network,
			"providerPlanCode": in.PlanID,
			"phoneNumber":      in.PhoneNumber,
			"reference":        p.Reference,
		}
	case CategoryAirtime:
		payload = map[string]any{
			"network":     in.Network,
			"phoneNumber": in.PhoneNumber,
			"reference":   p.Reference,
			"amount":      p.Amount,
		}
	case CategoryElectricity:
		payload = map[string]any{
			"providerCode":     in.Disco,
			"providerPlanCode": in.MeterType,
			"meterNumber":      in.MeterNumber,
			"customerName":     in.CustomerName,
			"phoneNumber":      in.PhoneNumber,
			"reference":        p.Reference,
			"amount":           p.Amount,
		}
	case CategoryCable:
		payload = map[string]any{
			"providerCode":     in.Provider,
			"providerPlanCode": in.PlanID,
			"phoneNumber":      in.PhoneNumber,
			"smartCardNumber":  in.SmartCardNumber,
			"customerName":     in.CustomerName,
			"reference":        p.Reference,
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCategory, p.Category)
	}

	body, err := a.post(ctx, aggregatorBuyPaths[p.Category], payload)
	if err != nil {
		return nil, err
	}
	return receiptFrom(body, p.Reference), nil
}

// Verify looks up the customer behind a meter or smartcard.
func (a *Aggregator) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	var path string
	payload := map[string]any{
		"providerCode":     req.ProviderCode,
		"providerPlanCode": req.PlanCode,
	}
	switch req.Category {
	case CategoryElectricity:
		path = "/Electricity/verifyMeter"
		payload["meterNumber"] = req.Number
	case CategoryCable:
		path = "/CableTV/verifySmartCard"
		payload["smartCardNumber"] = req.Number
	default:
		return nil, fmt.Errorf("%w: %s cannot be verified", ErrUnsupportedCategory, req.Category)
	}

	body, err := a.post(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	return verifyResultFrom(body), nil
}
