package orders

// Payment methods
const (
	PaymentCash       = "CASH"
	PaymentCreditCard = "CREDIT_CARD"
	PaymentDebitCard  = "DEBIT_CARD"
)

// Shipping types and carriers
const (
	ShippingEconomic = "ECONOMIC"
	ShippingUrgent   = "URGENT"

	CarrierCorreios = "CORREIOS"
	CarrierSedex    = "SEDEX"
)

// Billing is the payment snapshot taken when the order is created.
type Billing struct {
	Payment    string  `dynamodbav:"payment" json:"payment"`
	TotalPrice float64 `dynamodbav:"totalPrice" json:"totalPrice"`
}

// Shipping is the delivery snapshot taken when the order is created.
type Shipping struct {
	Type    string `dynamodbav:"type" json:"type"`
	Carrier string `dynamodbav:"carrier" json:"carrier"`
}

// OrderProduct is a product copied into the order at creation time.
type OrderProduct struct {
	Code  string  `dynamodbav:"code" json:"code"`
	Price float64 `dynamodbav:"price" json:"price"`
}

// Order represents the item stored in the orders table.
type Order struct {
	Email     string         `dynamodbav:"pk" json:"email"`            // PK
	OrderID   string         `dynamodbav:"sk" json:"id"`               // SK
	CreatedAt int64          `dynamodbav:"createdAt" json:"createdAt"` // epoch millis
	Billing   Billing        `dynamodbav:"billing" json:"billing"`
	Shipping  Shipping       `dynamodbav:"shipping" json:"shipping"`
	Products  []OrderProduct `dynamodbav:"products" json:"products"`
}

// ProductCodes lists the codes of the ordered products in order.
func (o Order) ProductCodes() []string {
	codes := make([]string, 0, len(o.Products))
	for _, p := range o.Products {
		codes = append(codes, p.Code)
	}
	return codes
}
