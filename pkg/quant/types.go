package quant

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// PriceMicros represents a quoted price multiplied by 1,000,000 (10^6).
// E.g., a spot quote of 1234.56 = 1,234,560,000 PriceMicros.
type PriceMicros int64

// AmountMicros represents a monetary amount (stake, payout, balance)
// multiplied by 1,000,000 (10^6).
type AmountMicros int64

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

const (
	PriceScale  = 1000000
	AmountScale = 1000000
)

// ToPriceMicros converts a float64 (from the wire) to PriceMicros.
// Note: Only used at the boundary. Internal logic uses PriceMicros directly.
func ToPriceMicros(f float64) PriceMicros {
	return PriceMicros(math.Round(f * PriceScale))
}

// ToAmountMicros converts a float64 to AmountMicros.
func ToAmountMicros(f float64) AmountMicros {
	return AmountMicros(math.Round(f * AmountScale))
}

func (p PriceMicros) String() string {
	return fmt.Sprintf("%.6f", float64(p)/PriceScale)
}

func (a AmountMicros) String() string {
	return fmt.Sprintf("%.6f", float64(a)/AmountScale)
}

// Float converts back to float64 for outbound wire frames.
func (p PriceMicros) Float() float64 { return float64(p) / PriceScale }

// Float converts back to float64 for outbound wire frames.
func (a AmountMicros) Float() float64 { return float64(a) / AmountScale }

// ParsePriceMicros parses a numeric display string into PriceMicros exactly,
// without a float64 round trip.
func ParsePriceMicros(s string) (PriceMicros, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	return PriceMicros(d.Mul(decimal.NewFromInt(PriceScale)).IntPart()), nil
}

// ParseAmountMicros parses a monetary display string into AmountMicros exactly.
func ParseAmountMicros(s string) (AmountMicros, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return AmountMicros(d.Mul(decimal.NewFromInt(AmountScale)).IntPart()), nil
}

// FromEpochSeconds converts provider epoch seconds to TimeStamp (micros).
func FromEpochSeconds(sec int64) TimeStamp {
	return TimeStamp(sec * 1_000_000)
}

// EpochSeconds truncates a TimeStamp back to epoch seconds.
func (t TimeStamp) EpochSeconds() int64 {
	return int64(t) / 1_000_000
}

// NextSeq generates the next sequence number atomically.
func NextSeq(ptr *uint64) uint64 {
	return atomic.AddUint64(ptr, 1)
}
