package template

// FallbackID identifies the synthesised template used when the store has
// nothing to offer.
const FallbackID = "fallback"

var defaultTerms = []string{
	"Rates are exclusive of GST, charged as applicable.",
	"Mobilisation and demobilisation charges are billed separately unless stated.",
	"Payment within 30 days of invoice.",
	"Working hours are 8 hours per day; overtime is charged pro rata.",
}

// FallbackTemplate returns the built-in quotation layout. It is constructed
// in memory on every call and never touches a store.
func FallbackTemplate() *Template {
	tmpl := standardBuilder(Meta{
		Name:        "Default Quotation",
		Description: "Built-in layout used when no template is stored",
		Theme:       ThemeModern,
		Category:    DefaultScope,
	}).Build()
	tmpl.ID = FallbackID
	tmpl.IsDefault = true
	tmpl.Version = 1
	return tmpl
}

// Builtins returns the starter templates offered for seeding a store.
func Builtins() []*Template {
	standard := standardBuilder(Meta{
		Name:        "Standard quotation",
		Description: "Header, parties, itemised rates, totals, terms and signature",
		Theme:       ThemeProfessional,
		Category:    DefaultScope,
	}).Build()

	compact := NewBuilder(Meta{
		Name:        "Compact quotation",
		Description: "Single page summary without terms",
		Theme:       ThemeMinimal,
		Category:    DefaultScope,
	}).
		AddElement(ElementHeader, &HeaderContent{
			Title:    "Quotation {{quotation.number}}",
			Subtitle: "{{company.name}}",
		}).
		AddElement(ElementClientInfo, &InfoContent{Fields: []Field{
			{Label: "To", Value: "{{client.name}}"},
			{Label: "Date", Value: "{{quotation.date}}"},
		}}).
		AddElement(ElementItemsTable, &ItemsTableContent{}).
		AddElement(ElementTotals, &TotalsContent{Rows: []TotalsRow{
			{Label: "Total", Value: "{{totals.total}}", Emphasis: true},
		}}).
		Build()

	return []*Template{standard, compact}
}

func standardBuilder(meta Meta) *Builder {
	return NewBuilder(meta).
		AddElement(ElementHeader, &HeaderContent{
			Title:    "QUOTATION",
			Subtitle: "{{company.name}}",
		}).
		AddElement(ElementCompanyInfo, &InfoContent{
			Title: "From",
			Fields: []Field{
				{Label: "Company", Value: "{{company.name}}"},
				{Label: "Address", Value: "{{company.address}}"},
				{Label: "Phone", Value: "{{company.phone}}"},
				{Label: "Email", Value: "{{company.email}}"},
				{Label: "GSTIN", Value: "{{company.gstin}}"},
			},
		}).
		AddElement(ElementClientInfo, &InfoContent{
			Title: "To",
			Fields: []Field{
				{Label: "Name", Value: "{{client.name}}"},
				{Label: "Company", Value: "{{client.company}}"},
				{Label: "Address", Value: "{{client.address}}"},
				{Label: "Phone", Value: "{{client.phone}}"},
				{Label: "Email", Value: "{{client.email}}"},
			},
		}).
		AddElement(ElementQuotationInfo, &InfoContent{
			Title: "Quotation Details",
			Fields: []Field{
				{Label: "Quotation No", Value: "{{quotation.number}}"},
				{Label: "Date", Value: "{{quotation.date}}"},
				{Label: "Valid Until", Value: "{{quotation.validUntil}}"},
				{Label: "Machine Type", Value: "{{quotation.machineType}}"},
				{Label: "Duration", Value: "{{quotation.duration}}"},
			},
		}).
		AddElement(ElementItemsTable, &ItemsTableContent{Title: "Items"}).
		AddElement(ElementTotals, &TotalsContent{
			Title: "Summary",
			Rows: []TotalsRow{
				{Label: "Subtotal", Value: "{{totals.subtotal}}"},
				{Label: "GST", Value: "{{totals.tax}}"},
				{Label: "Total", Value: "{{totals.total}}", Emphasis: true},
			},
		}).
		AddElement(ElementTerms, &TermsContent{
			Title: "Terms & Conditions",
			Items: append([]string(nil), defaultTerms...),
		}).
		AddElement(ElementSignature, &SignatureContent{
			Label:   "Authorised Signatory",
			Company: "{{company.name}}",
		})
}
