package providers

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Upstream bodies are decoded into generic maps; these helpers pull canonical values out of the
// differently named fields each biller uses.

var (
	tokenKeys     = []string{"token", "purchased_code", "purchasedCode", "Token"}
	referenceKeys = []string{"reference", "transactionId", "transaction_id", "requestId", "request_id", "ref"}
	messageKeys   = []string{"message", "error", "detail", "response_description", "msg"}
	customerKeys  = []string{"customerName", "customer_name", "Customer_Name", "name"}
)

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func num(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	}
	return 0
}

// pick returns the first non-empty string under keys, looking into a nested "data" object when the
// top level has none.
func pick(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(m[k]); s != "" {
			return s
		}
	}
	if nested := asMap(m["data"]); nested != nil {
		for _, k := range keys {
			if s := str(nested[k]); s != "" {
				return s
			}
		}
	}
	return ""
}

// failed reports an explicit failure flag in an upstream body.
func failed(m map[string]any) bool {
	if v, ok := m["success"].(bool); ok && !v {
		return true
	}
	if v, ok := m["status"].(bool); ok && !v {
		return true
	}
	switch strings.ToLower(str(m["status"])) {
	case "failed", "fail", "error":
		return true
	}
	return false
}

func upstreamMessage(m map[string]any) string {
	for _, k := range messageKeys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]any:
			if s := upstreamMessage(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// receiptFrom maps a successful buy response onto the canonical receipt. The reference falls back to
// the locally generated one so it is never empty.
func receiptFrom(body any, localRef string) *PaymentReceipt {
	m := asMap(body)
	if m == nil {
		m = map[string]any{}
	}
	ref := pick(m, referenceKeys...)
	if ref == "" {
		ref = localRef
	}
	token := pick(m, tokenKeys...)
	if token == "" {
		token = ref
	}
	msg := upstreamMessage(m)
	if msg == "" {
		msg = "Payment successful"
	}
	return &PaymentReceipt{Success: true, Token: token, Reference: ref, Message: msg}
}

func verifyResultFrom(body any) *VerifyResult {
	name := pick(asMap(body), customerKeys...)
	if name == "" {
		name = "Customer"
	}
	return &VerifyResult{CustomerName: name}
}

// listUnder returns the list stored under the first present key, or body itself when it is a list.
func listUnder(body any, keys ...string) []any {
	if l := asList(body); l != nil {
		return l
	}
	m := asMap(body)
	for _, k := range keys {
		if l := asList(m[k]); l != nil {
			return l
		}
	}
	return nil
}

// parseProvider reads one provider object. Peyflex uses identifier/id where the aggregator uses code.
func parseProvider(raw any) (Provider, bool) {
	m := asMap(raw)
	if m == nil {
		return Provider{}, false
	}
	code := pick(m, "code", "identifier", "id", "serviceId", "network")
	if code == "" {
		return Provider{}, false
	}
	name := str(m["name"])
	if name == "" {
		name = code
	}
	return Provider{ID: code, Name: name, Code: code}, true
}

func parsePlans(list []any, providerCode string) []Plan {
	plans := make([]Plan, 0, len(list))
	for _, raw := range list {
		m := asMap(raw)
		if m == nil {
			continue
		}
		code := pick(m, "code", "plan_code", "planCode", "variation_code", "id")
		if code == "" {
			continue
		}
		name := pick(m, "name", "label", "plan_name")
		if name == "" {
			name = code
		}
		amount := num(m["amount"])
		if amount == 0 {
			amount = num(m["price"])
		}
		plans = append(plans, Plan{ID: code, Name: name, Code: code, Amount: amount, Provider: providerCode})
	}
	return plans
}

// catalogFromProviders parses providers with their plans nested under one of planKeys.
func catalogFromProviders(list []any, planKeys ...string) *Catalog {
	cat := &Catalog{Plans: map[string][]Plan{}}
	for _, raw := range list {
		p, ok := parseProvider(raw)
		if !ok {
			continue
		}
		cat.Providers = append(cat.Providers, p)
		m := asMap(raw)
		var plans []any
		for _, k := range planKeys {
			if l := asList(m[k]); l != nil {
				plans = l
				break
			}
		}
		cat.Plans[p.Code] = parsePlans(plans, p.Code)
	}
	return cat
}
