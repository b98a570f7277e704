// Package arrowstream serializes bars and closed trades to Apache Arrow IPC
// streams for the HTTP result endpoints.
package arrowstream

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"btlab/services/engine"
	"btlab/services/execution"
)

// Pipeline owns the allocator shared by the encoders.
type Pipeline struct {
	mem memory.Allocator
}

func NewPipeline() *Pipeline {
	return &Pipeline{mem: memory.NewGoAllocator()}
}

var barSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var tradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "entry_ts", Type: arrow.PrimitiveTypes.Int64},
	{Name: "entry_price_eff", Type: arrow.PrimitiveTypes.Float64},
	{Name: "qty", Type: arrow.PrimitiveTypes.Float64},
	{Name: "fee_in", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_ts", Type: arrow.PrimitiveTypes.Int64},
	{Name: "exit_price_eff", Type: arrow.PrimitiveTypes.Float64},
	{Name: "fee_out", Type: arrow.PrimitiveTypes.Float64},
	{Name: "gross_pnl", Type: arrow.PrimitiveTypes.Float64},
	{Name: "net_pnl", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// EncodeBars writes the bars of one symbol as a single-record IPC stream.
func (p *Pipeline) EncodeBars(symbol string, bars []engine.Bar) ([]byte, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("arrowstream: no bars to encode")
	}

	b := array.NewRecordBuilder(p.mem, barSchema)
	defer b.Release()

	for _, bar := range bars {
		b.Field(0).(*array.StringBuilder).Append(symbol)
		b.Field(1).(*array.Int64Builder).Append(bar.Timestamp)
		b.Field(2).(*array.Float64Builder).Append(bar.Open)
		b.Field(3).(*array.Float64Builder).Append(bar.High)
		b.Field(4).(*array.Float64Builder).Append(bar.Low)
		b.Field(5).(*array.Float64Builder).Append(bar.Close)
		b.Field(6).(*array.Float64Builder).Append(bar.Volume)
	}

	record := b.NewRecord()
	defer record.Release()

	return p.writeIPC(barSchema, record)
}

// EncodeTrades writes closed round-trip trades as a single-record IPC stream.
func (p *Pipeline) EncodeTrades(trades []execution.ClosedTrade) ([]byte, error) {
	b := array.NewRecordBuilder(p.mem, tradeSchema)
	defer b.Release()

	for _, t := range trades {
		b.Field(0).(*array.StringBuilder).Append(t.Symbol)
		b.Field(1).(*array.Int64Builder).Append(t.EntryTs)
		b.Field(2).(*array.Float64Builder).Append(t.EntryPrice)
		b.Field(3).(*array.Float64Builder).Append(t.Quantity)
		b.Field(4).(*array.Float64Builder).Append(t.FeeIn)
		b.Field(5).(*array.Int64Builder).Append(t.ExitTs)
		b.Field(6).(*array.Float64Builder).Append(t.ExitPrice)
		b.Field(7).(*array.Float64Builder).Append(t.FeeOut)
		b.Field(8).(*array.Float64Builder).Append(t.GrossPnl)
		b.Field(9).(*array.Float64Builder).Append(t.NetPnl)
	}

	record := b.NewRecord()
	defer record.Release()

	return p.writeIPC(tradeSchema, record)
}

// DecodeTrades reads an IPC stream produced by EncodeTrades.
func (p *Pipeline) DecodeTrades(data []byte) ([]execution.ClosedTrade, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(p.mem))
	if err != nil {
		return nil, fmt.Errorf("arrowstream: open reader: %w", err)
	}
	defer reader.Release()

	var trades []execution.ClosedTrade
	for reader.Next() {
		rec := reader.Record()
		symbols := rec.Column(0).(*array.String)
		entryTs := rec.Column(1).(*array.Int64)
		entryPx := rec.Column(2).(*array.Float64)
		qty := rec.Column(3).(*array.Float64)
		feeIn := rec.Column(4).(*array.Float64)
		exitTs := rec.Column(5).(*array.Int64)
		exitPx := rec.Column(6).(*array.Float64)
		feeOut := rec.Column(7).(*array.Float64)
		gross := rec.Column(8).(*array.Float64)
		net := rec.Column(9).(*array.Float64)

		for i := 0; i < int(rec.NumRows()); i++ {
			trades = append(trades, execution.ClosedTrade{
				Symbol:     symbols.Value(i),
				EntryTs:    entryTs.Value(i),
				EntryPrice: entryPx.Value(i),
				Quantity:   qty.Value(i),
				FeeIn:      feeIn.Value(i),
				ExitTs:     exitTs.Value(i),
				ExitPrice:  exitPx.Value(i),
				FeeOut:     feeOut.Value(i),
				GrossPnl:   gross.Value(i),
				NetPnl:     net.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("arrowstream: read records: %w", err)
	}
	return trades, nil
}

func (p *Pipeline) writeIPC(schema *arrow.Schema, record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(p.mem))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("arrowstream: write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("arrowstream: close writer: %w", err)
	}
	return buf.Bytes(), nil
}
