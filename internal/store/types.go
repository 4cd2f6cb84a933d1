package store

// CatalogItem is one equipment record from the upstream catalog feed.
type CatalogItem struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	CategoryID   string   `json:"categoryId"`
	CategoryName string   `json:"categoryName"`
	Quantity     int      `json:"quantity"`
	Status       string   `json:"status"`
	DailyRate    float64  `json:"dailyRate"`
	Equivalents  []string `json:"equivalents"`
}
