package domain

import (
	"testing"

	"trade_stream/pkg/quant"
)

func TestContract_ApplyUpdate(t *testing.T) {
	c := Contract{
		ID:       123,
		Symbol:   "R_100",
		Status:   StatusOpen,
		BuyPrice: 10_000_000,
		Payout:   19_500_000,
	}

	// Spot moves while open
	if !c.ApplyUpdate(Contract{Spot: 101_500_000, SpotTs: 1000, Profit: 2_000_000}) {
		t.Fatal("update on open contract should apply")
	}
	if c.Spot != 101_500_000 {
		t.Errorf("spot = %d", c.Spot)
	}
	if !c.IsOpen() {
		t.Error("contract should still be open")
	}

	// Terminal close
	if !c.ApplyUpdate(Contract{Status: StatusWon, Profit: 9_500_000, ClosedTs: 2000}) {
		t.Fatal("closing update should apply")
	}
	if !c.IsClosed() {
		t.Error("contract should be closed")
	}
	if c.ClosedTs != 2000 {
		t.Errorf("closed ts = %d", c.ClosedTs)
	}

	// Immutable once closed
	if c.ApplyUpdate(Contract{Status: StatusLost, Profit: -10_000_000}) {
		t.Error("update on closed contract must be ignored")
	}
	if c.Status != StatusWon {
		t.Errorf("status = %s; want won", c.Status)
	}
}

func TestContract_RealizedProfit(t *testing.T) {
	won := Contract{Status: StatusWon, BuyPrice: 10_000_000, Payout: 19_500_000}
	if got := won.RealizedProfit(); got != 9_500_000 {
		t.Errorf("won profit = %d", got)
	}

	lost := Contract{Status: StatusLost, BuyPrice: 10_000_000, Payout: 19_500_000}
	if got := lost.RealizedProfit(); got != -10_000_000 {
		t.Errorf("lost profit = %d", got)
	}

	sold := Contract{Status: StatusSold, BuyPrice: 10_000_000, SellPrice: 12_250_000}
	if got := sold.RealizedProfit(); got != 2_250_000 {
		t.Errorf("sold profit = %d", got)
	}
}

func TestProposal_ProfitIfWon(t *testing.T) {
	p := Proposal{ID: "abc", AskPrice: 5_140_000, Payout: 10_000_000, Spot: quant.PriceMicros(100_100_000)}
	if got := p.ProfitIfWon(); got != 4_860_000 {
		t.Errorf("profit if won = %d", got)
	}
}
