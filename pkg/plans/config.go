package plans

// Config locates the plan catalog and maps price refs to provider price ids.
// PLAN_PRICES uses the "ref:price_id,ref:price_id" form.
type Config struct {
	CatalogPath string            `env:"PLANS_CATALOG_PATH" envDefault:"plans.yaml"`
	Prices      map[string]string `env:"PLAN_PRICES"`
}
