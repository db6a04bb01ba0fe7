package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/preview"
	"github.com/noah-isme/backend-billing/internal/pricing"
)

// op is one edit read from the script.
type op struct {
	Op    string                `json:"op"`
	Index int                   `json:"index"`
	Item  *billing.ItemRequest  `json:"item,omitempty"`
	Items []billing.ItemRequest `json:"items,omitempty"`
	Value decimal.Decimal       `json:"value"`
	MS    int                   `json:"ms"`
}

func replay(ctx context.Context, r io.Reader, s *preview.Session) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var o op
		if err := json.Unmarshal([]byte(text), &o); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := apply(ctx, s, o); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return sc.Err()
}

func apply(ctx context.Context, s *preview.Session, o op) error {
	switch o.Op {
	case "set":
		if o.Item == nil {
			return fmt.Errorf("set needs an item")
		}
		s.SetItem(o.Index, toLine(*o.Item))
	case "replace":
		lines := make([]pricing.LineItem, 0, len(o.Items))
		for _, it := range o.Items {
			lines = append(lines, toLine(it))
		}
		s.SetItems(lines)
	case "remove":
		s.RemoveItem(o.Index)
	case "transportation":
		s.SetTransportation(o.Value)
	case "flush":
		s.Flush(ctx)
	case "wait":
		t := time.NewTimer(time.Duration(o.MS) * time.Millisecond)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	default:
		return fmt.Errorf("unknown op %q", o.Op)
	}
	return nil
}

func toLine(it billing.ItemRequest) pricing.LineItem {
	return pricing.LineItem{Description: it.Description, ItemID: it.ItemID, Quantity: it.Quantity, Rate: it.Rate}
}

// stateLine is the printed form of a preview state.
type stateLine struct {
	Seq         uint64                       `json:"seq"`
	Calculating bool                         `json:"calculating"`
	Preview     *billing.CalculationResponse `json:"preview"`
}

type printer struct {
	mu   sync.Mutex
	enc  *json.Encoder
	kind billing.Kind
	err  error
}

func newPrinter(w io.Writer, kind billing.Kind) *printer {
	return &printer{enc: json.NewEncoder(w), kind: kind}
}

// Print is called from the debounce goroutine as well as the caller's.
func (p *printer) Print(st preview.State) {
	out := stateLine{Seq: st.Seq, Calculating: st.Calculating}
	if st.Preview != nil {
		resp := billing.NewCalculationResponse(p.kind, *st.Preview)
		out.Preview = &resp
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	p.err = p.enc.Encode(out)
}

func (p *printer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
