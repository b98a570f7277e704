package arrowstream

import (
	"testing"

	"btlab/services/engine"
	"btlab/services/execution"
)

func TestEncodeDecodeTrades(t *testing.T) {
	p := NewPipeline()
	in := []execution.ClosedTrade{
		{
			Symbol:  "BTCUSDT",
			EntryTs: 1000, EntryPrice: 105, Quantity: 2, FeeIn: 2.1,
			ExitTs: 3000, ExitPrice: 120, FeeOut: 2.4,
			GrossPnl: 30, NetPnl: 25.5,
		},
		{
			Symbol:  "ETHUSDT",
			EntryTs: 4000, EntryPrice: 2000, Quantity: 0.5, FeeIn: 0.4,
			ExitTs: 5000, ExitPrice: 1900, FeeOut: 0.38,
			GrossPnl: -50, NetPnl: -50.78,
		},
	}

	payload, err := p.EncodeTrades(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.DecodeTrades(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("decoded %d trades, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("trade %d mismatch:\n got %+v\nwant %+v", i, out[i], in[i])
		}
	}
}

func TestEncodeBars(t *testing.T) {
	p := NewPipeline()
	bars := []engine.Bar{
		{Timestamp: 1000, Open: 100, High: 102, Low: 99, Close: 101, Volume: 5000},
		{Timestamp: 2000, Open: 101, High: 103, Low: 100, Close: 102, Volume: 6000},
	}
	payload, err := p.EncodeBars("BTCUSDT", bars)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) == 0 {
		t.Fatal("empty IPC payload")
	}

	if _, err := p.EncodeBars("BTCUSDT", nil); err == nil {
		t.Fatal("empty bar slice must error")
	}
}
