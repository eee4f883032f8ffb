package orderitem

// QueryOrderItemsModel filters order items on retrieval.
type QueryOrderItemsModel struct {
	OrderIDs   []string
	ProductIDs []string
	Limit      int
	Offset     int
}
