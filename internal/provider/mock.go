package provider

// Built-in fallback data served when no provider endpoint is configured or
// the client is fully offline. Mirrors the row schemas of the remote store.

var mockProducts = []Row{
	{"id": 1, "product_id": "PRD001", "category_id": "electronics", "product_name": "Dell Laptop", "quantity_per_pack": 1, "price": 45000.0, "image_url": "https://picsum.photos/seed/laptop1/200/200.jpg", "status": "active", "description": "High performance laptop"},
	{"id": 2, "product_id": "PRD002", "category_id": "electronics", "product_name": "Samsung Phone", "quantity_per_pack": 1, "price": 25000.0, "image_url": "https://picsum.photos/seed/phone1/200/200.jpg", "status": "active", "description": "Modern smartphone"},
	{"id": 3, "product_id": "PRD003", "category_id": "clothing", "product_name": "Men's T-Shirt", "quantity_per_pack": 1, "price": 1500.0, "image_url": "https://picsum.photos/seed/shirt1/200/200.jpg", "status": "active", "description": "Cotton t-shirt"},
	{"id": 4, "product_id": "PRD004", "category_id": "clothing", "product_name": "Jeans", "quantity_per_pack": 1, "price": 3500.0, "image_url": "https://picsum.photos/seed/jeans1/200/200.jpg", "status": "active", "description": "Denim jeans"},
	{"id": 5, "product_id": "PRD005", "category_id": "food", "product_name": "Coffee", "quantity_per_pack": 1, "price": 800.0, "image_url": "https://picsum.photos/seed/coffee1/200/200.jpg", "status": "active", "description": "Arabic coffee"},
	{"id": 6, "product_id": "PRD006", "category_id": "food", "product_name": "Tea", "quantity_per_pack": 1, "price": 500.0, "image_url": "https://picsum.photos/seed/tea1/200/200.jpg", "status": "active", "description": "Green tea"},
	{"id": 7, "product_id": "PRD007", "category_id": "books", "product_name": "Arabic Novel", "quantity_per_pack": 1, "price": 1200.0, "image_url": "https://picsum.photos/seed/book1/200/200.jpg", "status": "active", "description": "Literary novel"},
	{"id": 8, "product_id": "PRD008", "category_id": "books", "product_name": "Programming Book", "quantity_per_pack": 1, "price": 3500.0, "image_url": "https://picsum.photos/seed/book2/200/200.jpg", "status": "active", "description": "Technical book"},
}

var mockOrders = []Row{
	{"id": 1, "order_id": "ORD001", "customer_id": "CUST001", "customer_name": "Ahmed Mohamed", "phone": "0551234567", "address": "Algiers", "total_price": 45000.0, "order_status": "pending", "order_date": "2024-01-15", "items": "Dell Laptop x1"},
	{"id": 2, "order_id": "ORD002", "customer_id": "CUST002", "customer_name": "Fatima Ali", "phone": "0559876543", "address": "Oran", "total_price": 25000.0, "order_status": "processing", "order_date": "2024-01-14", "items": "Samsung Phone x1"},
	{"id": 3, "order_id": "ORD003", "customer_id": "CUST003", "customer_name": "Mohamed Said", "phone": "0554567890", "address": "Constantine", "total_price": 5000.0, "order_status": "shipped", "order_date": "2024-01-13", "items": "T-Shirt x2, Jeans x1"},
	{"id": 4, "order_id": "ORD004", "customer_id": "CUST004", "customer_name": "Khadija Omar", "phone": "0553216549", "address": "Blida", "total_price": 1300.0, "order_status": "delivered", "order_date": "2024-01-12", "items": "Coffee x1, Tea x1"},
}

var mockCategories = []Row{
	{"id": 1, "category_id": "electronics", "category_name": "Electronics", "description": "Devices and gadgets", "status": "active"},
	{"id": 2, "category_id": "clothing", "category_name": "Clothing", "description": "Apparel", "status": "active"},
	{"id": 3, "category_id": "food", "category_name": "Food", "description": "Food and drink", "status": "active"},
	{"id": 4, "category_id": "books", "category_name": "Books", "description": "Books and print", "status": "active"},
}

// mockData maps collection names to their fallback rows. Collections with no
// sample data serve an empty list.
var mockData = map[string][]Row{
	"products":   mockProducts,
	"orders":     mockOrders,
	"categories": mockCategories,
}

// mockRows returns a copy of the fallback rows for a collection so callers
// cannot mutate the shared dataset.
func mockRows(collection string) []Row {
	src := mockData[collection]
	rows := make([]Row, len(src))
	copy(rows, src)
	return rows
}
