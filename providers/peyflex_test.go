package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"billpay-gateway/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPeyflex(t *testing.T, apiKey string, mux *http.ServeMux) *Peyflex {
	t.Helper()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return NewPeyflex(config.PeyflexConfig{BaseURL: ts.URL, APIKey: apiKey}, ts.Client(), zap.NewNop())
}

func TestPeyflexCablePlanFailureIsIsolated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cable/providers/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{"providers":[{"identifier":"dstv","name":"DStv"},{"identifier":"gotv","name":"GOtv"}]}`)
	})
	mux.HandleFunc("/api/cable/plans/dstv/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"plans":[{"plan_code":"dstv-padi","name":"Padi","amount":"4,400"}]}`)
	})
	mux.HandleFunc("/api/cable/plans/gotv/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"detail":"boom"}`)
	})
	p := newTestPeyflex(t, "secret", mux)

	cat, err := p.FetchCatalog(context.Background(), CategoryCable)
	require.NoError(t, err)
	require.Len(t, cat.Providers, 2)
	assert.Equal(t, []Plan{{ID: "dstv-padi", Name: "Padi", Code: "dstv-padi", Amount: 4400, Provider: "dstv"}}, cat.PlansFor("dstv"))
	gotv, ok := cat.Plans["gotv"]
	require.True(t, ok, "failing provider must still be listed")
	assert.NotNil(t, gotv)
	assert.Empty(t, gotv)
}

func TestPeyflexProviderListFailureFailsRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cable/providers/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{}`)
	})
	p := newTestPeyflex(t, "secret", mux)

	_, err := p.FetchCatalog(context.Background(), CategoryCable)
	var rejected *UpstreamError
	assert.ErrorAs(t, err, &rejected)
}

func TestPeyflexDataCatalogUsesPublicEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/data/networks/", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{"networks":[{"identifier":"mtn_gifting_data","name":"MTN Gifting"}]}`)
	})
	mux.HandleFunc("/api/data/plans/", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "mtn_gifting_data", r.URL.Query().Get("network"))
		writeJSON(w, http.StatusOK, `{"plans":[{"plan_code":"M1GB","label":"1GB 30 Days","amount":520}]}`)
	})
	p := newTestPeyflex(t, "", mux)

	cat, err := p.FetchCatalog(context.Background(), CategoryData)
	require.NoError(t, err)
	provider, plan, ok := cat.Plan("MTN Gifting", "M1GB")
	require.True(t, ok)
	assert.Equal(t, "mtn_gifting_data", provider.Code)
	assert.Equal(t, 520.0, plan.Amount)
	assert.Equal(t, "1GB 30 Days", plan.Name)
}

func TestPeyflexPrivateCatalogNeedsToken(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { called = true })
	p := newTestPeyflex(t, "", mux)

	_, err := p.FetchCatalog(context.Background(), CategoryElectricity)
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.False(t, called)
}

func TestPeyflexElectricityCatalog(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/electricity/plans/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "electricity", r.URL.Query().Get("identifier"))
		writeJSON(w, http.StatusOK, `{"plans":[{"id":"ikeja-electric","name":"Ikeja (IKEDC)","plans":[{"code":"prepaid","name":"prepaid"}]}]}`)
	})
	p := newTestPeyflex(t, "secret", mux)

	cat, err := p.FetchCatalog(context.Background(), CategoryElectricity)
	require.NoError(t, err)
	require.Len(t, cat.Providers, 1)
	assert.Equal(t, "ikeja-electric", cat.Providers[0].Code)
	assert.Equal(t, "prepaid", cat.PlansFor("ikeja-electric")[0].Code)
}

func TestPeyflexBuyMapsCanonicalInputs(t *testing.T) {
	var payload map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cable/subscribe/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		writeJSON(w, http.StatusOK, `{"status":"success","reference":"PFX-1","message":"Subscription successful"}`)
	})
	p := newTestPeyflex(t, "secret", mux)

	receipt, err := p.Buy(context.Background(), Purchase{
		Category:  CategoryCable,
		Reference: "local",
		Amount:    4400,
		Inputs:    UserInputs{Provider: "dstv", PlanID: "dstv-padi", SmartCardNumber: "7012345678", PhoneNumber: "08012345678"},
	})
	require.NoError(t, err)
	assert.Equal(t, "PFX-1", receipt.Reference)
	assert.Equal(t, "Subscription successful", receipt.Message)
	assert.Equal(t, "7012345678", payload["iuc"])
	assert.Equal(t, "dstv", payload["identifier"])
	assert.Equal(t, "dstv-padi", payload["plan"])
}

func TestPeyflexVerifyMeterDefaultsToPrepaid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/electricity/verify/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "45031234567", q.Get("meter"))
		assert.Equal(t, "ikeja-electric", q.Get("plan"))
		assert.Equal(t, "prepaid", q.Get("type"))
		writeJSON(w, http.StatusOK, `{"name":"ADA OBI"}`)
	})
	p := newTestPeyflex(t, "", mux)

	res, err := p.Verify(context.Background(), VerifyRequest{Category: CategoryElectricity, Number: "45031234567", ProviderCode: "ikeja-electric"})
	require.NoError(t, err)
	assert.Equal(t, "ADA OBI", res.CustomerName)
}

func TestPeyflexVerifySmartcard(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cable/verify/", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "7012345678", payload["iuc"])
		assert.Equal(t, "dstv", payload["identifier"])
		writeJSON(w, http.StatusOK, `{}`)
	})
	p := newTestPeyflex(t, "secret", mux)

	res, err := p.Verify(context.Background(), VerifyRequest{Category: CategoryCable, Number: "7012345678", ProviderCode: "dstv"})
	require.NoError(t, err)
	assert.Equal(t, "Customer", res.CustomerName)
}

func TestNewSelectsAdapter(t *testing.T) {
	agg, err := New(config.BillingConfig{Provider: config.ProviderAggregator}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "aggregator", agg.Name())

	pfx, err := New(config.BillingConfig{Provider: config.ProviderPeyflex}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "peyflex", pfx.Name())

	sb, err := New(config.BillingConfig{Provider: config.ProviderSandbox}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "sandbox", sb.Name())

	_, err = New(config.BillingConfig{Provider: "other"}, nil, zap.NewNop())
	assert.Error(t, err)
}
