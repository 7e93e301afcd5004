/*
Package factory provides JSON to Go rate configuration conversion.

PURPOSE:
  Converts JSON rate documents into billing.RateConfiguration. This enables
  rate changes without code changes: the admin UI sends JSON, the store
  keeps it as JSON, and the factory creates the proper Go structs.

JSON SCHEMA:
  {
    "electric_rate": "12.50",
    "electric_min_charge": "300",
    "association_dues_rate": "25",
    "parking_rate": "100",
    "penalty_rate": "0.10",
    "water_residential": [
      {"max_consumption": "10", "rate": "200"},
      {"max_consumption": "20", "rate": "280"},
      {"max_consumption": "30", "rate": "350"},
      {"max_consumption": "40", "rate": "45"},
      {"max_consumption": "50", "rate": "50"},
      {"max_consumption": "60", "rate": "55"},
      {"rate": "60"}
    ],
    "water_commercial": [ ...seven tiers... ]
  }

  Amounts may be JSON strings or numbers. Tiers 1-3 are flat fees, tiers
  4-7 are per cubic meter. The last tier has no max_consumption.

KEY FEATURES:
  - Exactly seven tiers per schedule
  - Missing schedules fall back to the presets
  - ParseRateConfiguration validates, DecodeRateConfiguration does not
    (stored documents are validated by the generator at use)

USAGE:
  f := factory.NewRateFactory()
  cfg, err := f.ParseRateConfiguration(jsonString)

SEE ALSO:
  - billing/rates.go: RateConfiguration type definition
  - store/sqlite: rate_configs.config_json
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RateConfigJSON is the JSON representation of a tenant's rates.
type RateConfigJSON struct {
	ElectricRate        decimal.Decimal `json:"electric_rate"`
	ElectricMinCharge   decimal.Decimal `json:"electric_min_charge"`
	AssociationDuesRate decimal.Decimal `json:"association_dues_rate"`
	ParkingRate         decimal.Decimal `json:"parking_rate"`
	PenaltyRate         decimal.Decimal `json:"penalty_rate"`
	WaterResidential    []WaterTierJSON `json:"water_residential,omitempty"`
	WaterCommercial     []WaterTierJSON `json:"water_commercial,omitempty"`
	Version             int             `json:"version,omitempty"`
}

// WaterTierJSON represents one water tier.
type WaterTierJSON struct {
	MaxConsumption *decimal.Decimal `json:"max_consumption,omitempty"`
	Rate           decimal.Decimal  `json:"rate"`
}

// =============================================================================
// RATE FACTORY
// =============================================================================

// RateFactory converts JSON rate documents to Go structs.
type RateFactory struct{}

// NewRateFactory creates a new rate factory.
func NewRateFactory() *RateFactory {
	return &RateFactory{}
}

// ParseRateConfiguration parses and validates a JSON rate document.
func (f *RateFactory) ParseRateConfiguration(jsonStr string) (billing.RateConfiguration, error) {
	var rj RateConfigJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return billing.RateConfiguration{}, generic.NewValidationError("settings", "failed to parse rate JSON: %v", err)
	}

	cfg, err := f.FromJSON(rj)
	if err != nil {
		return billing.RateConfiguration{}, err
	}
	if err := cfg.Validate(); err != nil {
		return billing.RateConfiguration{}, err
	}
	return cfg, nil
}

// FromJSON converts RateConfigJSON to billing.RateConfiguration. An absent
// schedule takes its preset.
func (f *RateFactory) FromJSON(rj RateConfigJSON) (billing.RateConfiguration, error) {
	cfg := billing.RateConfiguration{
		ElectricRate:        rj.ElectricRate,
		ElectricMinCharge:   rj.ElectricMinCharge,
		AssociationDuesRate: rj.AssociationDuesRate,
		ParkingRate:         rj.ParkingRate,
		PenaltyRate:         rj.PenaltyRate,
		WaterResidential:    ResidentialWaterPreset(),
		WaterCommercial:     CommercialWaterPreset(),
		Version:             rj.Version,
	}

	var err error
	if len(rj.WaterResidential) > 0 {
		if cfg.WaterResidential, err = parseSchedule("water_residential", rj.WaterResidential); err != nil {
			return billing.RateConfiguration{}, err
		}
	}
	if len(rj.WaterCommercial) > 0 {
		if cfg.WaterCommercial, err = parseSchedule("water_commercial", rj.WaterCommercial); err != nil {
			return billing.RateConfiguration{}, err
		}
	}
	return cfg, nil
}

// ToJSON converts a RateConfiguration to RateConfigJSON.
func (f *RateFactory) ToJSON(cfg billing.RateConfiguration) RateConfigJSON {
	return RateConfigJSON{
		ElectricRate:        cfg.ElectricRate,
		ElectricMinCharge:   cfg.ElectricMinCharge,
		AssociationDuesRate: cfg.AssociationDuesRate,
		ParkingRate:         cfg.ParkingRate,
		PenaltyRate:         cfg.PenaltyRate,
		WaterResidential:    scheduleJSON(cfg.WaterResidential),
		WaterCommercial:     scheduleJSON(cfg.WaterCommercial),
		Version:             cfg.Version,
	}
}

// EncodeRateConfiguration marshals a configuration for storage.
func EncodeRateConfiguration(cfg billing.RateConfiguration) ([]byte, error) {
	data, err := json.Marshal(NewRateFactory().ToJSON(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to encode rate configuration: %w", err)
	}
	return data, nil
}

// DecodeRateConfiguration unmarshals a stored configuration without
// validating its values.
func DecodeRateConfiguration(data []byte) (billing.RateConfiguration, error) {
	var rj RateConfigJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return billing.RateConfiguration{}, fmt.Errorf("failed to decode rate configuration: %w", err)
	}
	return NewRateFactory().FromJSON(rj)
}

// =============================================================================
// PRESETS
// =============================================================================

// ResidentialWaterPreset is the default residential schedule.
func ResidentialWaterPreset() billing.WaterTierSchedule {
	return presetSchedule([billing.WaterTierCount]string{"200", "280", "350", "45", "50", "55", "60"})
}

// CommercialWaterPreset is the default commercial schedule.
func CommercialWaterPreset() billing.WaterTierSchedule {
	return presetSchedule([billing.WaterTierCount]string{"300", "420", "520", "60", "65", "70", "75"})
}

// DefaultRateConfiguration returns a complete configuration for a new
// tenant, built from the presets.
func DefaultRateConfiguration(tenantID generic.TenantID) billing.RateConfiguration {
	return billing.RateConfiguration{
		TenantID:            tenantID,
		ElectricRate:        decimal.RequireFromString("12.50"),
		ElectricMinCharge:   decimal.RequireFromString("300"),
		AssociationDuesRate: decimal.RequireFromString("25"),
		ParkingRate:         decimal.RequireFromString("100"),
		PenaltyRate:         decimal.RequireFromString("0.10"),
		WaterResidential:    ResidentialWaterPreset(),
		WaterCommercial:     CommercialWaterPreset(),
	}
}

// presetSchedule bands every 10 cu.m up to 60.
func presetSchedule(rates [billing.WaterTierCount]string) billing.WaterTierSchedule {
	var s billing.WaterTierSchedule
	for i := range s.Tiers {
		s.Tiers[i].Rate = decimal.RequireFromString(rates[i])
		if i < billing.WaterTierCount-1 {
			max := decimal.NewFromInt(int64(10 * (i + 1)))
			s.Tiers[i].MaxConsumption = &max
		}
	}
	return s
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseSchedule(field string, tiers []WaterTierJSON) (billing.WaterTierSchedule, error) {
	var s billing.WaterTierSchedule
	if len(tiers) != billing.WaterTierCount {
		return s, generic.NewValidationError(field, "must have exactly %d tiers, got %d", billing.WaterTierCount, len(tiers))
	}
	for i, tj := range tiers {
		s.Tiers[i] = billing.WaterTier{Rate: tj.Rate}
		if tj.MaxConsumption != nil {
			max := *tj.MaxConsumption
			s.Tiers[i].MaxConsumption = &max
		}
	}
	return s, nil
}

func scheduleJSON(s billing.WaterTierSchedule) []WaterTierJSON {
	tiers := make([]WaterTierJSON, 0, len(s.Tiers))
	for _, t := range s.Tiers {
		tj := WaterTierJSON{Rate: t.Rate}
		if t.MaxConsumption != nil {
			max := *t.MaxConsumption
			tj.MaxConsumption = &max
		}
		tiers = append(tiers, tj)
	}
	return tiers
}
