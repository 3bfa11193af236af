package merge

import "strings"

// Kind selects how a resolved value is formatted.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindCurrency
	KindDate
)

// Entry is one documented placeholder name.
type Entry struct {
	Name    string
	Path    string
	Kind    Kind
	Default string
}

const notAvailable = "N/A"

// Vocabulary is the documented placeholder set. Every name resolves to a
// path in the render context; names that carry a Default render it when
// the context has no value.
var Vocabulary = buildVocabulary()

// ItemVocabulary is available inside items_table rows.
var ItemVocabulary = []Entry{
	{Name: "item_no", Path: "item.no", Kind: KindText},
	{Name: "item_name", Path: "item.description", Kind: KindText},
	{Name: "item_description", Path: "item.description", Kind: KindText},
	{Name: "item_quantity", Path: "item.quantity", Kind: KindNumber},
	{Name: "item_unit", Path: "item.unit", Kind: KindText},
	{Name: "item_rate", Path: "item.rate", Kind: KindCurrency},
	{Name: "item_amount", Path: "item.amount", Kind: KindCurrency},
}

func buildVocabulary() []Entry {
	entries := []Entry{
		{Name: "company.name", Kind: KindText},
		{Name: "company.address", Kind: KindText},
		{Name: "company.phone", Kind: KindText},
		{Name: "company.email", Kind: KindText},
		{Name: "company.website", Kind: KindText},
		{Name: "company.gstin", Kind: KindText},

		{Name: "client.name", Kind: KindText, Default: notAvailable},
		{Name: "client.company", Kind: KindText},
		{Name: "client.address", Kind: KindText},
		{Name: "client.phone", Kind: KindText},
		{Name: "client.email", Kind: KindText},
		{Name: "client.designation", Kind: KindText},

		{Name: "quotation.id", Kind: KindText},
		{Name: "quotation.number", Kind: KindText, Default: notAvailable},
		{Name: "quotation.date", Kind: KindDate, Default: notAvailable},
		{Name: "quotation.validUntil", Kind: KindDate, Default: notAvailable},
		{Name: "quotation.machineType", Kind: KindText},
		{Name: "quotation.duration", Kind: KindText},
		{Name: "quotation.validity", Kind: KindText},
		{Name: "quotation.orderType", Kind: KindText},
		{Name: "quotation.location", Kind: KindText},
		{Name: "quotation.notes", Kind: KindText},

		{Name: "totals.subtotal", Kind: KindCurrency, Default: notAvailable},
		{Name: "totals.tax", Kind: KindCurrency},
		{Name: "totals.taxRate", Kind: KindText},
		{Name: "totals.total", Kind: KindCurrency, Default: notAvailable},
		{Name: "totals.mobDemob", Kind: KindCurrency},
		{Name: "totals.riskAdjustment", Kind: KindCurrency},
		{Name: "totals.incidental", Kind: KindCurrency},
		{Name: "totals.other", Kind: KindCurrency},
	}
	for i := range entries {
		entries[i].Path = entries[i].Name
	}

	// customer.* is the same bucket as client.*
	for _, e := range entries {
		if rest, ok := strings.CutPrefix(e.Name, "client."); ok {
			alias := e
			alias.Name = "customer." + rest
			entries = append(entries, alias)
		}
	}

	legacy := []struct{ name, path string }{
		{"company_name", "company.name"},
		{"company_address", "company.address"},
		{"company_phone", "company.phone"},
		{"company_email", "company.email"},
		{"customer_name", "client.name"},
		{"client_name", "client.name"},
		{"customer_company", "client.company"},
		{"customer_address", "client.address"},
		{"customer_phone", "client.phone"},
		{"customer_email", "client.email"},
		{"quotation_number", "quotation.number"},
		{"quotation_date", "quotation.date"},
		{"date", "quotation.date"},
		{"valid_until", "quotation.validUntil"},
		{"machine_type", "quotation.machineType"},
		{"duration", "quotation.duration"},
		{"subtotal", "totals.subtotal"},
		{"tax_amount", "totals.tax"},
		{"gst_amount", "totals.tax"},
		{"total_amount", "totals.total"},
		{"total", "totals.total"},
	}
	byPath := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.Name == e.Path {
			byPath[e.Path] = e
		}
	}
	for _, l := range legacy {
		e := byPath[l.path]
		e.Name = l.name
		entries = append(entries, e)
	}
	return entries
}

// kindForPath returns the formatting kind of a dotted path that is not a
// vocabulary name.
func kindForPath(path string) Kind {
	if kind, ok := pathKinds[path]; ok {
		return kind
	}
	if strings.HasPrefix(path, "totals.") {
		return KindCurrency
	}
	last := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		last = path[i+1:]
	}
	switch last {
	case "date", "validUntil", "createdAt", "updatedAt", "startDate", "endDate":
		return KindDate
	case "rate", "amount", "price":
		return KindCurrency
	}
	return KindText
}

var pathKinds = func() map[string]Kind {
	kinds := make(map[string]Kind)
	for _, e := range Vocabulary {
		kinds[e.Path] = e.Kind
	}
	for _, e := range ItemVocabulary {
		kinds[e.Path] = e.Kind
	}
	return kinds
}()
