// Package quote holds quotation snapshots and turns them into merge
// contexts. It is the data source documents are rendered from.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aspcranes/quotegen/internal/merge"
)

// ErrQuotationNotFound is returned when no quotation has the given id.
var ErrQuotationNotFound = errors.New("quotation not found")

// Source supplies the merge context for a quotation id.
type Source interface {
	Context(ctx context.Context, id string) (merge.Context, error)
}

type Company struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`
	GSTIN   string `json:"gstin,omitempty"`
}

type Client struct {
	Name        string `json:"name,omitempty"`
	Company     string `json:"company,omitempty"`
	Designation string `json:"designation,omitempty"`
	Address     string `json:"address,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Item is one priced line. Amount is supplied, not derived.
type Item struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit,omitempty"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}

// Totals are pre-computed by the pricing side.
type Totals struct {
	Subtotal       float64 `json:"subtotal"`
	Tax            float64 `json:"tax"`
	TaxRate        float64 `json:"taxRate,omitempty"`
	Total          float64 `json:"total"`
	MobDemob       float64 `json:"mobDemob,omitempty"`
	RiskAdjustment float64 `json:"riskAdjustment,omitempty"`
	Incidental     float64 `json:"incidental,omitempty"`
	Other          float64 `json:"other,omitempty"`
}

// Quotation is a snapshot of everything a quotation document shows.
type Quotation struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"`
	Date        time.Time `json:"date"`
	ValidUntil  time.Time `json:"validUntil,omitempty"`
	MachineType string    `json:"machineType,omitempty"`
	// Duration and Validity are in days.
	Duration  int       `json:"duration,omitempty"`
	Validity  int       `json:"validity,omitempty"`
	OrderType string    `json:"orderType,omitempty"`
	Location  string    `json:"location,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Company   Company   `json:"company"`
	Client    Client    `json:"client"`
	Items     []Item    `json:"items"`
	Totals    Totals    `json:"totals"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Extra is exposed to templates as additional top-level buckets.
	Extra map[string]any `json:"extra,omitempty"`
}

// Validate checks the fields every document needs.
func (q *Quotation) Validate() error {
	if q.Number == "" {
		return errors.New("quotation number is required")
	}
	for i, item := range q.Items {
		if item.Description == "" {
			return fmt.Errorf("item %d: description is required", i+1)
		}
	}
	return nil
}

// Context returns the merge context of the quotation. Empty values are left
// out so that placeholders fall back to their documented defaults.
func (q *Quotation) Context() merge.Context {
	ctx := merge.Context{}
	for k, v := range q.Extra {
		ctx[k] = v
	}

	company := fields{}
	company.text("name", q.Company.Name)
	company.text("address", q.Company.Address)
	company.text("phone", q.Company.Phone)
	company.text("email", q.Company.Email)
	company.text("website", q.Company.Website)
	company.text("gstin", q.Company.GSTIN)
	ctx["company"] = map[string]any(company)

	client := fields{}
	client.text("name", q.Client.Name)
	client.text("company", q.Client.Company)
	client.text("designation", q.Client.Designation)
	client.text("address", q.Client.Address)
	client.text("phone", q.Client.Phone)
	client.text("email", q.Client.Email)
	ctx["client"] = map[string]any(client)

	quotation := fields{}
	quotation.text("id", q.ID)
	quotation.text("number", q.Number)
	quotation.time("date", q.Date)
	quotation.time("validUntil", q.ValidUntil)
	quotation.text("machineType", q.MachineType)
	quotation.count("duration", q.Duration)
	quotation.count("validity", q.Validity)
	quotation.text("orderType", q.OrderType)
	quotation.text("location", q.Location)
	quotation.text("notes", q.Notes)
	ctx["quotation"] = map[string]any(quotation)

	items := make([]any, 0, len(q.Items))
	for _, item := range q.Items {
		row := fields{
			"description": item.Description,
			"quantity":    item.Quantity,
			"rate":        item.Rate,
			"amount":      item.Amount,
		}
		row.text("unit", item.Unit)
		items = append(items, map[string]any(row))
	}
	ctx["items"] = items

	totals := fields{}
	totals.amount("subtotal", q.Totals.Subtotal)
	totals.amount("tax", q.Totals.Tax)
	totals.amount("total", q.Totals.Total)
	totals.amount("taxRate", q.Totals.TaxRate)
	totals.amount("mobDemob", q.Totals.MobDemob)
	totals.amount("riskAdjustment", q.Totals.RiskAdjustment)
	totals.amount("incidental", q.Totals.Incidental)
	totals.amount("other", q.Totals.Other)
	ctx["totals"] = map[string]any(totals)

	return ctx
}

type fields map[string]any

func (f fields) text(key, v string) {
	if v != "" {
		f[key] = v
	}
}

func (f fields) time(key string, v time.Time) {
	if !v.IsZero() {
		f[key] = v
	}
}

func (f fields) count(key string, v int) {
	if v != 0 {
		f[key] = v
	}
}

func (f fields) amount(key string, v float64) {
	if v != 0 {
		f[key] = v
	}
}

// StaticSource serves fixed contexts, keyed by quotation id.
type StaticSource map[string]merge.Context

func (s StaticSource) Context(_ context.Context, id string) (merge.Context, error) {
	c, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuotationNotFound, id)
	}
	return c, nil
}
