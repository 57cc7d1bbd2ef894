package product

// Каталог товаров. Фиксированный список, витрина и
// страница оплаты читают его через API

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Image       string  `json:"image"`
}

var products = []Product{
	{
		ID:          "coffee-beans",
		Name:        "Colombian Coffee Beans",
		Description: "Premium single-origin Arabica beans from Huila region. 500g bag.",
		Price:       24.99,
		Image:       "/products/coffee.svg",
	},
	{
		ID:          "emerald-pendant",
		Name:        "Emerald Pendant",
		Description: "Handcrafted silver pendant with genuine Colombian emerald.",
		Price:       149.99,
		Image:       "/products/emerald.svg",
	},
	{
		ID:          "panela-pack",
		Name:        "Organic Panela Pack",
		Description: "Traditional unrefined cane sugar. Pack of 6 blocks (3kg total).",
		Price:       18.50,
		Image:       "/products/panela.svg",
	},
	{
		ID:          "aguardiente",
		Name:        "Aguardiente Antioqueño",
		Description: "Classic Colombian anise-flavored spirit. 750ml bottle.",
		Price:       32.00,
		Image:       "/products/aguardiente.svg",
	},
}

func Catalog() []Product {
	return products
}
