package products

// Product is the item stored in the products table.
type Product struct {
	ID          string  `dynamodbav:"id" json:"id"` // PK
	ProductName string  `dynamodbav:"productName" json:"productName"`
	Code        string  `dynamodbav:"code" json:"code"`
	Price       float64 `dynamodbav:"price" json:"price"`
	Model       string  `dynamodbav:"model" json:"model"`
	ProductURL  string  `dynamodbav:"productUrl" json:"productUrl"`
}
