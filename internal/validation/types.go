package validation

// ShippingRequest selects delivery for an order.
type ShippingRequest struct {
	Type    string `json:"type" validate:"required,oneof=ECONOMIC URGENT"`
	Carrier string `json:"carrier" validate:"required,oneof=CORREIOS SEDEX"`
}

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	ProductIDs []string        `json:"productIds" validate:"required,min=1,unique,dive,required"` // each id at most once
	Payment    string          `json:"payment" validate:"required,oneof=CASH CREDIT_CARD DEBIT_CARD"`
	Shipping   ShippingRequest `json:"shipping"`
}

// OrderKey addresses one order: DELETE /orders
type OrderKey struct {
	Email   string `json:"email" validate:"required,email"`
	OrderID string `json:"orderId" validate:"required"`
}

// OrderQuery is GET /orders. Both empty lists everything, email alone lists
// one customer, both fetch one order.
type OrderQuery struct {
	Email   string `json:"email" validate:"omitempty,email"`
	OrderID string `json:"orderId"`
}

// ProductRequest is the payload for POST /products and PUT /products/:id.
// ID is accepted but ignored: ids are generated by the store.
type ProductRequest struct {
	ID          string  `json:"id,omitempty"`
	ProductName string  `json:"productName" validate:"required,max=200"`
	Code        string  `json:"code" validate:"required,max=50"`
	Price       float64 `json:"price" validate:"gt=0"`
	Model       string  `json:"model" validate:"required"`
	ProductURL  string  `json:"productUrl" validate:"omitempty,url"`
}
