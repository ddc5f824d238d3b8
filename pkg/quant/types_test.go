package quant

import (
	"testing"
)

func TestToPriceMicros(t *testing.T) {
	tests := []struct {
		input    float64
		expected PriceMicros
	}{
		{1.23, 1230000},
		{0.000001, 1},
		{0.0, 0},
		{-1.23, -1230000},
		{100.1, 100100000},
	}

	for _, tt := range tests {
		got := ToPriceMicros(tt.input)
		if got != tt.expected {
			t.Errorf("ToPriceMicros(%f) = %d; want %d", tt.input, got, tt.expected)
		}
	}
}

func TestParsePriceMicros(t *testing.T) {
	tests := []struct {
		input    string
		expected PriceMicros
	}{
		{"1.23", 1230000},
		{"100.1", 100100000},
		{"0", 0},
		{"-5.5", -5500000},
		// Exact where float64 would drift
		{"0.1", 100000},
	}

	for _, tt := range tests {
		got, err := ParsePriceMicros(tt.input)
		if err != nil {
			t.Fatalf("ParsePriceMicros(%q) error: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("ParsePriceMicros(%q) = %d; want %d", tt.input, got, tt.expected)
		}
	}

	if _, err := ParsePriceMicros("not-a-number"); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestParseAmountMicros(t *testing.T) {
	got, err := ParseAmountMicros("5.14")
	if err != nil {
		t.Fatalf("ParseAmountMicros error: %v", err)
	}
	if got != 5140000 {
		t.Errorf("ParseAmountMicros(\"5.14\") = %d; want 5140000", got)
	}
}

func TestPriceMicros_String(t *testing.T) {
	p := PriceMicros(1230000)
	expected := "1.230000"
	if p.String() != expected {
		t.Errorf("PriceMicros(1230000).String() = %s; want %s", p.String(), expected)
	}
}

func TestTimeStampRoundTrip(t *testing.T) {
	ts := FromEpochSeconds(1700000000)
	if ts != 1700000000000000 {
		t.Errorf("FromEpochSeconds = %d", ts)
	}
	if ts.EpochSeconds() != 1700000000 {
		t.Errorf("EpochSeconds = %d", ts.EpochSeconds())
	}
}

func TestNextSeq(t *testing.T) {
	var seq uint64
	if NextSeq(&seq) != 1 {
		t.Error("first seq should be 1")
	}
	if NextSeq(&seq) != 2 {
		t.Error("second seq should be 2")
	}
}
