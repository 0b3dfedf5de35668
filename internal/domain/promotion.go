package domain

// Promotion is an advertised offer. Promotions are immutable once created.
type Promotion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PromotionRecord pairs a promotion with its sequential id.
type PromotionRecord struct {
	ID string
	Promotion
}
