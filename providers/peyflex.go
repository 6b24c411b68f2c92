package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"billpay-gateway/config"

	"go.uber.org/zap"
)

// Peyflex implements BillingProvider against the Peyflex REST API. Catalog listings for data and
// airtime are public; everything that spends money or reveals customer data needs the token.
type Peyflex struct {
	api    *apiClient
	apiKey string
	logger *zap.Logger
}

func NewPeyflex(cfg config.PeyflexConfig, httpClient *http.Client, logger *zap.Logger) *Peyflex {
	return &Peyflex{
		api:    newAPIClient("peyflex", cfg.BaseURL, httpClient, logger),
		apiKey: cfg.APIKey,
		logger: logger,
	}
}

func (p *Peyflex) Name() string {
	return "peyflex"
}

func (p *Peyflex) auth() (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%w: PEYFLEX_API_KEY is not set", ErrMissingCredential)
	}
	return "Token " + p.apiKey, nil
}

func (p *Peyflex) get(ctx context.Context, path string, query url.Values, private bool) (any, error) {
	call := apiCall{method: http.MethodGet, path: path, query: query}
	if private {
		auth, err := p.auth()
		if err != nil {
			return nil, err
		}
		call.auth = auth
	}
	return p.api.do(ctx, call)
}

func (p *Peyflex) post(ctx context.Context, path string, payload any) (any, error) {
	auth, err := p.auth()
	if err != nil {
		return nil, err
	}
	return p.api.do(ctx, apiCall{method: http.MethodPost, path: path, body: payload, auth: auth})
}

func (p *Peyflex) FetchCatalog(ctx context.Context, category Category) (*Catalog, error) {
	switch category {
	case CategoryData:
		return p.twoStageCatalog(ctx, category, "/api/data/networks/", false, func(ctx context.Context, prov Provider) (any, error) {
			return p.get(ctx, "/api/data/plans/", url.Values{"network": {prov.Code}}, false)
		})
	case CategoryAirtime:
		body, err := p.get(ctx, "/api/airtime/networks/", nil, false)
		if err != nil {
			return nil, err
		}
		cat := catalogFromProviders(listUnder(body, "networks", "data"))
		if len(cat.Providers) == 0 {
			return nil, fmt.Errorf("peyflex: airtime catalog has no networks")
		}
		return cat, nil
	case CategoryElectricity:
		body, err := p.get(ctx, "/api/electricity/plans/", url.Values{"identifier": {"electricity"}}, true)
		if err != nil {
			return nil, err
		}
		cat := catalogFromProviders(listUnder(body, "plans", "data"), "plans")
		if len(cat.Providers) == 0 {
			return nil, fmt.Errorf("peyflex: electricity catalog has no providers")
		}
		return cat, nil
	case CategoryCable:
		return p.twoStageCatalog(ctx, category, "/api/cable/providers/", true, func(ctx context.Context, prov Provider) (any, error) {
			return p.get(ctx, "/api/cable/plans/"+url.PathEscape(prov.Code)+"/", nil, true)
		})
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCategory, category)
}

// twoStageCatalog lists providers, then fetches plans per provider. A failing plan fetch leaves that
// provider with an empty plan list and does not abort the refresh; only a failing provider list does.
func (p *Peyflex) twoStageCatalog(ctx context.Context, category Category, listPath string, private bool, fetchPlans func(context.Context, Provider) (any, error)) (*Catalog, error) {
	body, err := p.get(ctx, listPath, nil, private)
	if err != nil {
		return nil, err
	}
	cat := catalogFromProviders(listUnder(body, "networks", "providers", "data"))
	if len(cat.Providers) == 0 {
		return nil, fmt.Errorf("peyflex: %s catalog has no providers", category)
	}

	for _, prov := range cat.Providers {
		plansBody, err := fetchPlans(ctx, prov)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("plan fetch failed, provider served without plans",
				zap.String("category", string(category)),
				zap.String("provider", prov.Code),
				zap.Error(err))
			cat.Plans[prov.Code] = []Plan{}
			continue
		}
		cat.Plans[prov.Code] = parsePlans(listUnder(plansBody, "plans", "data"), prov.Code)
	}
	return cat, nil
}

func (p *Peyflex) Buy(ctx context.Context, purchase Purchase) (*PaymentReceipt, error) {
	in := purchase.Inputs
	var (
		path    string
		payload map[string]any
	)
	switch purchase.Category {
	case CategoryData:
		path = "/api/data/purchase/"
		payload = map[string]any{
			"network":       in.Network,
			"plan_code":     in.PlanID,
			"mobile_number": in.PhoneNumber,
		}
	case CategoryAirtime:
		path = "/api/airtime/topup/"
		payload = map[string]any{
			"network":       in.Network,
			"amount":        purchase.Amount,
			"mobile_number": in.PhoneNumber,
		}
	case CategoryElectricity:
		path = "/api/electricity/subscribe/"
		payload = map[string]any{
			"identifier": "electricity",
			"meter":      in.MeterNumber,
			"plan":       in.Disco,
			"amount":     purchase.Amount,
			"type":       in.MeterType,
			"phone":      in.PhoneNumber,
		}
	case CategoryCable:
		path = "/api/cable/subscribe/"
		payload = map[string]any{
			"identifier": in.Provider,
			"plan":       in.PlanID,
			"iuc":        in.SmartCardNumber,
			"phone":      in.PhoneNumber,
			"amount":     purchase.Amount,
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCategory, purchase.Category)
	}

	body, err := p.post(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	return receiptFrom(body, purchase.Reference), nil
}

func (p *Peyflex) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	var (
		body any
		err  error
	)
	switch req.Category {
	case CategoryElectricity:
		meterType := req.PlanCode
		if meterType == "" {
			meterType = "prepaid"
		}
		body, err = p.get(ctx, "/api/electricity/verify/", url.Values{
			"identifier": {"electricity"},
			"meter":      {req.Number},
			"plan":       {req.ProviderCode},
			"type":       {meterType},
		}, false)
	case CategoryCable:
		body, err = p.post(ctx, "/api/cable/verify/", map[string]any{
			"iuc":        req.Number,
			"identifier": req.ProviderCode,
		})
	default:
		return nil, fmt.Errorf("%w: %s cannot be verified", ErrUnsupportedCategory, req.Category)
	}
	if err != nil {
		return nil, err
	}
	return verifyResultFrom(body), nil
}
