package models

// Order mirrors a document of the Kibana sample e-commerce dataset.
// Only the fields queried by this service are declared.
type Order struct {
	User          string         `json:"user,omitempty"`
	OrderDate     string         `json:"order_date,omitempty"`
	Products      []OrderProduct `json:"products,omitempty"`
	TotalQuantity int            `json:"total_quantity,omitempty"`
	SKU           []string       `json:"sku,omitempty"`
}

// OrderProduct is a single order line item.
type OrderProduct struct {
	Price       float64 `json:"price"`
	ProductName string  `json:"product_name"`
}
