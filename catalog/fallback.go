package catalog

import "billpay-gateway/providers"

type fallbackPlan struct {
	code   string
	name   string
	amount float64
}

// Static reference data bundled with the service. It is the bottom tier of catalog serving and
// is what the front end sees when no upstream answer has ever been obtained.

var dataNetworks = []struct {
	code, name string
	plans      []fallbackPlan
}{
	{"9mobile", "9MOBILE", []fallbackPlan{
		{"PSPLAN_495", "1GB 30 Days (NGN 320.00)", 320},
		{"PSPLAN_496", "2GB 30 Days (NGN 640.00)", 640},
		{"PSPLAN_497", "3GB 30 Days (NGN 960.00)", 960},
		{"PSPLAN_498", "5GB 30 Days (NGN 1600.00)", 1600},
		{"PSPLAN_499", "10GB 30 Days (NGN 3200.00)", 3200},
		{"PSPLAN_500", "15GB 30 Days (NGN 4800.00)", 4800},
	}},
	{"airtel", "AIRTEL NG", []fallbackPlan{
		{"PSPLAN_1300", "1GB - 7 Days (NGN 320.00)", 320},
		{"PSPLAN_1302", "1.5GB - 7 Days (NGN 450.00)", 450},
		{"PSPLAN_1301", "2GB - 14 Days (NGN 600.00)", 600},
		{"PSPLAN_1432", "2GB - 1 Day (NGN 750.00)", 750},
		{"PSPLAN_1433", "2GB - 30 Days (NGN 1500.00)", 1500},
		{"PSPLAN_1434", "3GB - 30 Days (NGN 2000.00)", 2000},
		{"PSPLAN_1436", "4GB - 30 Days (NGN 2500.00)", 2500},
		{"PSPLAN_1437", "8GB - 30 Days (NGN 3000.00)", 3000},
		{"PSPLAN_1438", "10GB - 30 Days (NGN 4000.00)", 4000},
		{"PSPLAN_1440", "18GB - 30 Days (NGN 6000.00)", 6000},
	}},
	{"glo", "GLO NG", []fallbackPlan{
		{"PSPLAN_318", "1GB - 5 days (NGN 100.00)", 100},
		{"PSPLAN_317", "350MB - 2 days (NGN 200.00)", 200},
		{"PSPLAN_315", "1.8GB - 14 days (NGN 500.00)", 500},
		{"PSPLAN_314", "3.9GB - 30 days (NGN 1000.00)", 1000},
		{"PSPLAN_313", "7.5GB - 30 days (NGN 1500.00)", 1500},
		{"PSPLAN_311", "9.2GB - 30 days (NGN 2000.00)", 2000},
		{"PSPLAN_310", "10.8GB - 30 days (NGN 2500.00)", 2500},
		{"PSPLAN_309", "14GB - 30 days (NGN 3000.00)", 3000},
		{"PSPLAN_308", "18GB - 30 days (NGN 4500.00)", 4500},
	}},
	{"mtn", "MTN NG", []fallbackPlan{
		{"PSPLAN_1385", "200MB 3Day (NGN 200.00)", 200},
		{"PSPLAN_1384", "250MB Daily (NGN 250.00)", 250},
		{"PSPLAN_1386", "1GB Daily (NGN 350.00)", 350},
		{"PSPLAN_177", "1GB - 30days (NGN 520.00)", 520},
		{"PSPLAN_178", "2GB - 30days (NGN 1040.00)", 1040},
		{"PSPLAN_179", "3GB - 30days (NGN 1560.00)", 1560},
		{"PSPLAN_180", "5GB - 30days (NGN 2600.00)", 2600},
		{"PSPLAN_181", "10GB - 30days (NGN 5200.00)", 5200},
		{"PSPLAN_1405", "20GB Monthly (NGN 7500.00)", 7500},
		{"PSPLAN_1410", "75GB Monthly (NGN 20000.00)", 20000},
	}},
}

var discos = []struct{ code, name string }{
	{"abuja-electric", "Abuja (AEDC)"},
	{"eko-electric", "Eko (EKEDC)"},
	{"enugu-electric", "Enugu (EEDC)"},
	{"ibadan-electric", "Ibadan (IBEDC)"},
	{"ikeja-electric", "Ikeja (IKEDC)"},
	{"jos-electric", "Jos (JED)"},
	{"kaduna-electric", "Kaduna (KAEDCO)"},
	{"kano-electric", "Kano (KEDCO)"},
	{"portharcourt-electric", "Portharcourt (PHED)"},
}

var cableProviders = []struct {
	code, name string
	plans      []fallbackPlan
}{
	{"dstv", "DStv ✅", []fallbackPlan{
		{"cwpadi", "Padi (NGN 4400.00)", 4400},
		{"cwyanga", "Yanga (NGN 6000.00)", 6000},
		{"cwpadiextraview", "Padi + ExtraView (NGN 10400.00)", 10400},
		{"cwconfam", "Confam (NGN 11000.00)", 11000},
		{"cwyangaextraview", "Yanga + ExtraView (NGN 12000.00)", 12000},
		{"cwconfamextraview", "Confam + ExtraView (NGN 17000.00)", 17000},
		{"cwcompact", "Compact (NGN 19000.00)", 19000},
		{"cwcompactextraview", "Compact ExtraView (NGN 25000.00)", 25000},
		{"cwcompactplus", "Compact Plus (NGN 30000.00)", 30000},
		{"cwcompactplusextraview", "Compact Plus ExtraView (NGN 36000.00)", 36000},
		{"cwpremium", "Premium (NGN 44500.00)", 44500},
		{"cwpremiumextraview", "Premium – ExtraView (NGN 50500.00)", 50500},
	}},
	{"Startimes", "Startimes ✅", []fallbackPlan{
		{"cwnovaantennamonthly", "Nova (Antenna) (NGN 1900.00)", 1900},
		{"cwbasicantennamonthly", "Basic (Antenna) (NGN 3700.00)", 3700},
		{"cwclassicantennamonthly", "Classic (Antenna) (NGN 5500.00)", 5500},
		{"cwsuperdishmonthly", "Super (Dish) (NGN 9000.00)", 9000},
	}},
}

// Fallback returns a fresh copy of the bundled catalog for the category. Airtime reuses the data
// networks without plans.
func Fallback(category providers.Category) providers.Catalog {
	cat := providers.Catalog{Plans: map[string][]providers.Plan{}}
	add := func(code, name string, plans []fallbackPlan) {
		cat.Providers = append(cat.Providers, providers.Provider{ID: code, Name: name, Code: code})
		list := make([]providers.Plan, 0, len(plans))
		for _, p := range plans {
			list = append(list, providers.Plan{ID: p.code, Name: p.name, Code: p.code, Amount: p.amount, Provider: code})
		}
		cat.Plans[code] = list
	}

	switch category {
	case providers.CategoryData:
		for _, n := range dataNetworks {
			add(n.code, n.name, n.plans)
		}
	case providers.CategoryAirtime:
		for _, n := range dataNetworks {
			add(n.code, n.name, nil)
		}
	case providers.CategoryElectricity:
		for _, d := range discos {
			add(d.code, d.name, []fallbackPlan{{"prepaid", "prepaid", 0}})
		}
	case providers.CategoryCable:
		for _, c := range cableProviders {
			add(c.code, c.name, c.plans)
		}
	}
	return cat
}
