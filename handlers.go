package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"billpay-gateway/catalog"
	"billpay-gateway/chain"
	"billpay-gateway/payment"
	"billpay-gateway/providers"
	"billpay-gateway/rates"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// RateSource provides the USDT/NGN rate. *rates.Source satisfies it.
type RateSource interface {
	Rate(ctx context.Context) rates.Quote
}

// Gateway holds the components behind the HTTP surface.
type Gateway struct {
	biller   providers.BillingProvider
	catalog  *catalog.Cache
	rates    RateSource
	pricing  rates.Pricing
	payments *payment.Orchestrator
	logger   *zap.Logger
}

func NewGateway(biller providers.BillingProvider, cat *catalog.Cache, rs RateSource, pricing rates.Pricing, payments *payment.Orchestrator, logger *zap.Logger) *Gateway {
	return &Gateway{
		biller:   biller,
		catalog:  cat,
		rates:    rs,
		pricing:  pricing,
		payments: payments,
		logger:   logger,
	}
}

type providerView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type planView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Code     string  `json:"code,omitempty"`
	Amount   float64 `json:"amount"`
	NGNPrice float64 `json:"ngnPrice"`
	Network  string  `json:"network,omitempty"`
	Provider string  `json:"provider,omitempty"`
}

// category parses the {category} path parameter, answering 404 for unknown ones.
func (g *Gateway) category(w http.ResponseWriter, r *http.Request) (providers.Category, bool) {
	c, err := providers.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		g.sendError(w, http.StatusNotFound, "Unknown category", err)
		return "", false
	}
	return c, true
}

func provenance(res catalog.Result, body map[string]any) map[string]any {
	body["success"] = true
	body["updated"] = res.Updated
	body["fromApi"] = res.FromAPI()
	body["source"] = res.Source
	return body
}

func providerViews(cat providers.Catalog) []providerView {
	out := make([]providerView, 0, len(cat.Providers))
	for _, p := range cat.Providers {
		out = append(out, providerView{ID: p.ID, Name: p.Name, Code: p.Code})
	}
	return out
}

func providerNames(cat providers.Catalog) []string {
	out := make([]string, 0, len(cat.Providers))
	for _, p := range cat.Providers {
		out = append(out, p.Name)
	}
	return out
}

func planViews(category providers.Category, provider providers.Provider, plans []providers.Plan) []planView {
	out := make([]planView, 0, len(plans))
	for _, p := range plans {
		v := planView{ID: p.ID, Name: p.Name, Code: p.Code, Amount: p.Amount, NGNPrice: p.Amount}
		if category == providers.CategoryData || category == providers.CategoryAirtime {
			v.Network = provider.Name
		} else {
			v.Provider = provider.Name
		}
		out = append(out, v)
	}
	return out
}

// Networks lists the providers of a category: names for data and airtime, objects otherwise.
func (g *Gateway) Networks(w http.ResponseWriter, r *http.Request) {
	category, ok := g.category(w, r)
	if !ok {
		return
	}
	res := g.catalog.Get(r.Context(), category)

	body := map[string]any{}
	if category == providers.CategoryData || category == providers.CategoryAirtime {
		body["networks"] = providerNames(res.Snapshot.Catalog)
	} else {
		body["providers"] = providerViews(res.Snapshot.Catalog)
	}
	g.sendJSON(w, http.StatusOK, provenance(res, body))
}

// Plans lists plans, optionally narrowed to one provider given as network in the query or body.
func (g *Gateway) Plans(w http.ResponseWriter, r *http.Request) {
	category, ok := g.category(w, r)
	if !ok {
		return
	}
	filter := r.URL.Query().Get("network")
	if filter == "" && r.Method == http.MethodPost {
		var body struct {
			Network  string `json:"network"`
			Provider string `json:"provider"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err == nil {
			filter = body.Network
			if filter == "" {
				filter = body.Provider
			}
		}
	}

	res := g.catalog.Get(r.Context(), category)
	cat := res.Snapshot.Catalog

	selected := cat.Providers
	if filter != "" {
		selected = nil
		if p, ok := cat.Provider(filter); ok {
			selected = []providers.Provider{p}
		}
	}

	byProvider := map[string][]planView{}
	all := []planView{}
	for _, p := range selected {
		views := planViews(category, p, cat.PlansFor(p.Code))
		byProvider[p.Name] = views
		all = append(all, views...)
	}

	body := map[string]any{"allPlans": all}
	if category == providers.CategoryData {
		body["networks"] = providerNames(cat)
		body["plansByNetwork"] = byProvider
	} else {
		body["providers"] = providerViews(cat)
		body["plans"] = all
	}
	g.sendJSON(w, http.StatusOK, provenance(res, body))
}

// Rates returns the current USDT/NGN rate. It always succeeds.
func (g *Gateway) Rates(w http.ResponseWriter, r *http.Request) {
	q := g.rates.Rate(r.Context())
	body := map[string]any{"success": true, "rate": q.Rate.InexactFloat64()}
	if q.Cached {
		body["cached"] = true
	}
	g.sendJSON(w, http.StatusOK, body)
}

// Quote prices an NGN bill in USD including the service fee.
func (g *Gateway) Quote(w http.ResponseWriter, r *http.Request) {
	ngn, err := decimal.NewFromString(strings.TrimSpace(r.URL.Query().Get("ngnAmount")))
	if err != nil || !ngn.IsPositive() {
		g.sendError(w, http.StatusBadRequest, "ngnAmount must be a positive number", err)
		return
	}
	b := g.pricing.Breakdown(ngn, g.rates.Rate(r.Context()))
	body := map[string]any{
		"success":   true,
		"rate":      b.Rate.InexactFloat64(),
		"ngnAmount": b.NGNAmount.InexactFloat64(),
		"fee":       b.Fee.InexactFloat64(),
		"total":     b.Total.InexactFloat64(),
		"usdAmount": b.USDAmount.InexactFloat64(),
	}
	if b.Cached {
		body["cached"] = true
	}
	g.sendJSON(w, http.StatusOK, body)
}

type verifyRequest struct {
	MeterNumber      string `json:"meterNumber"`
	SmartCardNumber  string `json:"smartCardNumber"`
	ProviderCode     string `json:"providerCode"`
	ProviderPlanCode string `json:"providerPlanCode"`
	MeterType        string `json:"meterType"`
}

func (g *Gateway) VerifyMeter(w http.ResponseWriter, r *http.Request) {
	g.verify(w, r, providers.CategoryElectricity)
}

func (g *Gateway) VerifySmartcard(w http.ResponseWriter, r *http.Request) {
	g.verify(w, r, providers.CategoryCable)
}

func (g *Gateway) verify(w http.ResponseWriter, r *http.Request, category providers.Category) {
	var req verifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		g.sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	number, field, planCode := req.MeterNumber, "meterNumber", req.ProviderPlanCode
	if category == providers.CategoryElectricity {
		if req.MeterType != "" {
			planCode = req.MeterType
		}
		if planCode == "" {
			planCode = "prepaid"
		}
	}
	if category == providers.CategoryCable {
		number, field = req.SmartCardNumber, "smartCardNumber"
	}
	if strings.TrimSpace(number) == "" || strings.TrimSpace(req.ProviderCode) == "" {
		g.sendError(w, http.StatusBadRequest, "Missing required fields", payment.ErrMissingFields)
		return
	}

	providerCode := req.ProviderCode
	if p, err := g.catalog.FindProvider(r.Context(), category, providerCode); err == nil {
		providerCode = p.Code
	}

	result, err := g.biller.Verify(r.Context(), providers.VerifyRequest{
		Category:     category,
		Number:       number,
		ProviderCode: providerCode,
		PlanCode:     planCode,
	})
	if err != nil {
		status, msg := errorResponse(err)
		g.sendError(w, status, msg, err)
		return
	}

	g.sendJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"customerName": result.CustomerName,
		field:          number,
	})
}

// Pay settles a bill against a confirmed on-chain transfer.
func (g *Gateway) Pay(w http.ResponseWriter, r *http.Request) {
	var req payment.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		g.sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	receipt, err := g.payments.Pay(r.Context(), req)
	if err != nil {
		status, msg := errorResponse(err)
		g.sendError(w, status, msg, err)
		return
	}
	g.sendJSON(w, http.StatusOK, receipt)
}

// errorResponse maps a domain error to its HTTP status and client-facing message.
func errorResponse(err error) (int, string) {
	var rejected *providers.UpstreamError
	switch {
	case errors.Is(err, payment.ErrChainFailed):
		return http.StatusBadRequest, "Transaction failed on blockchain"
	case errors.Is(err, payment.ErrChainTimeout):
		return http.StatusBadRequest, "Transaction confirmation timeout"
	case errors.Is(err, payment.ErrDuplicatePayment):
		return http.StatusConflict, "Transaction has already been used for a payment"
	case errors.As(err, &rejected):
		return http.StatusBadRequest, rejected.Message
	case errors.Is(err, providers.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "Billing provider unavailable, please try again later"
	case errors.Is(err, providers.ErrMissingCredential):
		return http.StatusInternalServerError, "Billing provider is not configured"
	case errors.Is(err, payment.ErrMissingFields),
		errors.Is(err, payment.ErrInvalidCategory),
		errors.Is(err, chain.ErrInvalidTxHash),
		errors.Is(err, catalog.ErrUnknownPlan),
		errors.Is(err, catalog.ErrUnknownProvider),
		errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, payment.ErrAmountOutOfRange),
		errors.Is(err, payment.ErrUnderpaid),
		errors.Is(err, providers.ErrUnsupportedCategory):
		return http.StatusBadRequest, capitalize(err.Error())
	default:
		return http.StatusInternalServerError, "Payment processing failed"
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func (g *Gateway) sendJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (g *Gateway) sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	if statusCode >= http.StatusInternalServerError {
		g.logger.Error("request failed", zap.Int("status", statusCode), zap.Error(err))
	} else {
		g.logger.Info("request rejected", zap.Int("status", statusCode), zap.Error(err))
	}
	g.sendJSON(w, statusCode, map[string]string{"error": message})
}
