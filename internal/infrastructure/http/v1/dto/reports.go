package dto

// GenerateConsolidationRequest is the body of POST /consolidation/generate.
type GenerateConsolidationRequest struct {
	DeliveryDate Date `json:"deliveryDate"`
}

// ConsolidationQuery filters GET /consolidation.
type ConsolidationQuery struct {
	PageQuery
	DeliveryDate string `form:"deliveryDate"`
	ItemID       string `form:"itemId"`
	BatchID      string `form:"batchId"`
}

// ExpiryAlertQuery filters GET /alerts/expiry.
type ExpiryAlertQuery struct {
	LocationID string `form:"locationId"`
	ItemID     string `form:"itemId"`
	Severity   string `form:"severity"`
	AsOf       string `form:"asOf"`
}

// LowStockAlertQuery filters GET /alerts/low-stock.
type LowStockAlertQuery struct {
	LocationID string `form:"locationId"`
	ItemID     string `form:"itemId"`
	Severity   string `form:"severity"`
}
