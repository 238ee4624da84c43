package models

import "fmt"

// ValidateVaultConfig rejects a negative vault_percentage and clamps any
// value above MaxVaultPercentage down to it. Called both at construction
// and on every onTradeEvent decode, since a live strategy's config can be
// edited after the worker starts.
func ValidateVaultConfig(cfg *VaultConfig) error {
	if cfg.VaultPercentage < 0 {
		return fmt.Errorf("models: vault_percentage must not be negative, got %v", cfg.VaultPercentage)
	}
	if cfg.VaultPercentage > MaxVaultPercentage {
		cfg.VaultPercentage = MaxVaultPercentage
	}
	return nil
}

// ValidatePairTradeConfig rejects an allocation_percentage or max_slippage
// outside their documented ranges.
func ValidatePairTradeConfig(cfg *PairTradeConfig) error {
	if cfg.AllocationPercentage < MinPairAllocationPercentage || cfg.AllocationPercentage > MaxPairAllocationPercentage {
		return fmt.Errorf("models: allocation_percentage must be within [%v,%v], got %v", MinPairAllocationPercentage, MaxPairAllocationPercentage, cfg.AllocationPercentage)
	}
	if cfg.MaxSlippage < MinPairMaxSlippage || cfg.MaxSlippage > MaxPairMaxSlippage {
		return fmt.Errorf("models: max_slippage must be within [%v,%v], got %v", MinPairMaxSlippage, MaxPairMaxSlippage, cfg.MaxSlippage)
	}
	return nil
}

// ValidatePerpPositionConfig rejects a leverage outside its documented
// range.
func ValidatePerpPositionConfig(cfg *PerpPositionConfig) error {
	if cfg.Leverage < MinPerpLeverage || cfg.Leverage > MaxPerpLeverage {
		return fmt.Errorf("models: leverage must be within [%v,%v], got %v", MinPerpLeverage, MaxPerpLeverage, cfg.Leverage)
	}
	return nil
}

// FilterValidLevels drops levels with a non-positive price or, for
// sell-side levels, a sol_percentage outside (0,100]. Returns a new slice;
// the caller persists it back to the Store when it differs in length from
// the input.
func FilterValidLevels(levels []Level) []Level {
	out := make([]Level, 0, len(levels))
	for _, lv := range levels {
		if lv.Price <= 0 {
			continue
		}
		if lv.SOLPercentage != nil && (*lv.SOLPercentage <= 0 || *lv.SOLPercentage > 100) {
			continue
		}
		out = append(out, lv)
	}
	return out
}
