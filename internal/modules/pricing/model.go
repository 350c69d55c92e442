// README: Delivery fee tiers and tax policy values.
package pricing

// FeeTier maps a pickup-to-door distance band to a flat delivery fee in paise.
// Tiers are ordered by UptoKm ascending; the last tier is the open-ended band.
type FeeTier struct {
	UptoKm float64
	Fee    int64
}

// defaultTiers backs the service when the rates table is empty or unreachable.
var defaultTiers = []FeeTier{
	{UptoKm: 3, Fee: 2000},
	{UptoKm: 6, Fee: 3000},
	{UptoKm: 10, Fee: 4500},
	{UptoKm: 0, Fee: 6000}, // beyond the last band
}

// taxBasisPoints is GST on the item subtotal (5% = 500 bps).
const taxBasisPoints = 500
