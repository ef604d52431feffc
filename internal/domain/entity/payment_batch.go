package entity

// PaymentRequestType defines how the price of a paid request is negotiated.
type PaymentRequestType int

const (
	// StaticPriceRequest accepts whatever amount the resource server quotes.
	StaticPriceRequest PaymentRequestType = iota
	// BudgetPriceRequest sends an X-Budget header and expects the quote to
	// stay within it.
	BudgetPriceRequest
)

// PaymentRequestItem represents a single paid resource in a batch run.
// Budget and MaxAmount are money strings ("$0.01"); conversion to atomic
// units happens once the quoted asset and its decimals are known.
type PaymentRequestItem struct {
	ID        string
	Type      PaymentRequestType
	Method    string
	Resource  string
	Budget    string
	MaxAmount string
}
