package order

// QueryOrdersModel filters orders on retrieval.
type QueryOrdersModel struct {
	OrderIDs    []string
	CustomerIDs []string
	Limit       int
	Offset      int
}
