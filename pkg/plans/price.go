package plans

import "os"

// PriceLookup resolves a plan's PriceRef to the provider price id.
type PriceLookup func(ref string) (string, bool)

// EnvPriceLookup reads the price id from the process environment.
func EnvPriceLookup(ref string) (string, bool) {
	v, ok := os.LookupEnv(ref)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// MapPriceLookup serves price ids from a fixed ref → price id map.
func MapPriceLookup(prices map[string]string) PriceLookup {
	return func(ref string) (string, bool) {
		v, ok := prices[ref]
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}
}

// ChainPriceLookup returns the first hit among lookups.
func ChainPriceLookup(lookups ...PriceLookup) PriceLookup {
	return func(ref string) (string, bool) {
		for _, lookup := range lookups {
			if lookup == nil {
				continue
			}
			if v, ok := lookup(ref); ok {
				return v, true
			}
		}
		return "", false
	}
}
