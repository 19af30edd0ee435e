package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/gosimple/slug"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Plan is a subscribable tier. Paid tiers carry the provider price reference.
type Plan struct {
	Code     string `mapstructure:"code" json:"code"`
	Name     string `mapstructure:"name" json:"name"`
	PriceRef string `mapstructure:"priceRef" json:"price_ref,omitempty"`
	Free     bool   `mapstructure:"free" json:"free"`
	Amount   int64  `mapstructure:"amount" json:"amount"`
	Currency string `mapstructure:"currency" json:"currency,omitempty"`
	Interval string `mapstructure:"interval" json:"interval,omitempty"`
}

// PlanCatalog is the static plan -> price mapping used by the lifecycle controller.
type PlanCatalog struct {
	Plans []Plan `mapstructure:"plans" json:"plans"`
}

// Lookup resolves a plan by code or display name.
func (c PlanCatalog) Lookup(name string) (Plan, bool) {
	code := slug.Make(strings.TrimSpace(name))
	if code == "" {
		return Plan{}, false
	}
	for _, plan := range c.Plans {
		if plan.Code == code {
			return plan, true
		}
	}
	return Plan{}, false
}

// ByPriceRef resolves the paid plan billed under priceRef.
func (c PlanCatalog) ByPriceRef(priceRef string) (Plan, bool) {
	priceRef = strings.TrimSpace(priceRef)
	if priceRef == "" {
		return Plan{}, false
	}
	for _, plan := range c.Plans {
		if !plan.Free && plan.PriceRef == priceRef {
			return plan, true
		}
	}
	return Plan{}, false
}

func DefaultPlanCatalog(defaults PlanDefaults) PlanCatalog {
	plans := []Plan{
		{Code: "basic", Name: "Basic", Free: true, Currency: "USD", Interval: "month"},
	}
	if ref := strings.TrimSpace(defaults.ProPriceRef); ref != "" {
		plans = append(plans, Plan{Code: "pro", Name: "Pro", PriceRef: ref, Amount: 1900, Currency: "USD", Interval: "month"})
	}
	if ref := strings.TrimSpace(defaults.EnterprisePriceRef); ref != "" {
		plans = append(plans, Plan{Code: "enterprise", Name: "Enterprise", PriceRef: ref, Amount: 9900, Currency: "USD", Interval: "month"})
	}
	return PlanCatalog{Plans: plans}
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewStaticPlanCatalogHolder wraps a fixed catalog.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) (*PlanCatalogHolder, error) {
	normalized, err := normalizePlanCatalog(catalog)
	if err != nil {
		return nil, err
	}
	holder := &PlanCatalogHolder{}
	holder.current.Store(normalized)
	return holder, nil
}

// NewPlanCatalogHolder loads plans.yml and reloads it on change. Without a
// plans file the catalog is built from environment price references.
func NewPlanCatalogHolder(cfg Config, log *zap.Logger) (*PlanCatalogHolder, error) {
	log = log.Named("plan.catalog")

	v := viper.New()
	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/finora/config")
	v.AddConfigPath("/etc/finora")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FINORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return loadPlanCatalog(v, cfg, log)
}

func loadPlanCatalog(v *viper.Viper, cfg Config, log *zap.Logger) (*PlanCatalogHolder, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("plans file not found, using defaults")
		return NewStaticPlanCatalogHolder(DefaultPlanCatalog(cfg.Plans))
	}

	catalog, err := readPlanCatalog(v)
	if err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readPlanCatalog(v)
		if err != nil {
			log.Warn("invalid plan catalog ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plan catalog reloaded", zap.String("file", e.Name), zap.Int("plans", len(updated.Plans)))
	})

	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func readPlanCatalog(v *viper.Viper) (PlanCatalog, error) {
	var catalog PlanCatalog
	if err := v.UnmarshalKey("billing", &catalog); err != nil {
		return PlanCatalog{}, err
	}
	return normalizePlanCatalog(catalog)
}

func normalizePlanCatalog(catalog PlanCatalog) (PlanCatalog, error) {
	if len(catalog.Plans) == 0 {
		return PlanCatalog{}, errors.New("billing.plans cannot be empty")
	}

	out := make([]Plan, 0, len(catalog.Plans))
	seen := map[string]struct{}{}
	free := 0
	for _, plan := range catalog.Plans {
		plan.Name = strings.TrimSpace(plan.Name)
		plan.Code = slug.Make(strings.TrimSpace(plan.Code))
		if plan.Code == "" {
			plan.Code = slug.Make(plan.Name)
		}
		if plan.Code == "" {
			return PlanCatalog{}, errors.New("billing.plans: code or name is required")
		}
		if plan.Name == "" {
			plan.Name = plan.Code
		}
		if _, ok := seen[plan.Code]; ok {
			return PlanCatalog{}, fmt.Errorf("billing.plans: duplicate code %q", plan.Code)
		}
		seen[plan.Code] = struct{}{}

		plan.PriceRef = strings.TrimSpace(plan.PriceRef)
		plan.Currency = strings.ToUpper(strings.TrimSpace(plan.Currency))
		if plan.Free {
			free++
			plan.PriceRef = ""
		} else if plan.PriceRef == "" {
			return PlanCatalog{}, fmt.Errorf("billing.plans: paid plan %q requires priceRef", plan.Code)
		}
		out = append(out, plan)
	}
	if free != 1 {
		return PlanCatalog{}, errors.New("billing.plans: exactly one free plan is required")
	}
	return PlanCatalog{Plans: out}, nil
}
