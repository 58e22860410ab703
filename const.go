package match

const (
	// EngineVersion is the current version of the matching engine
	EngineVersion = "v1.0.0"

	// PriceDecimals is the number of implied decimal places carried by Price.
	PriceDecimals = 4

	// PriceScale converts a whole price unit into Price minor units.
	PriceScale = 10_000

	// MaxOrderQty bounds a single order so level and side totals cannot overflow Qty.
	MaxOrderQty Qty = 1_000_000_000
)
