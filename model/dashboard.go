package model

type DashboardStats struct {
	TodayRevenue   int64 `json:"todayRevenue"`
	ActiveProducts int64 `json:"activeProducts"`
	TotalProducts  int64 `json:"totalProducts"`
	TotalOrders    int64 `json:"totalOrders"`
}

type ChannelBreakdown struct {
	Amount   int64            `json:"amount"`
	Orders   int64            `json:"orders"`
	ByMethod map[string]int64 `json:"byMethod"`
}

type SalesPoint struct {
	Day    string `json:"day"`
	Amount int64  `json:"amount"`
	Orders int64  `json:"orders"`
}

type CategoryEarning struct {
	Category string `json:"category"`
	Amount   int64  `json:"amount"`
	Quantity int64  `json:"quantity"`
}

type TopProduct struct {
	ProductId uint   `json:"productId"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	Amount    int64  `json:"amount"`
}

type RecentTransaction struct {
	OrderId     string        `json:"orderId"`
	OrderNumber string        `json:"orderNumber"`
	Source      Source        `json:"source"`
	Method      PaymentMethod `json:"method"`
	Status      OrderStatus   `json:"status"`
	Total       int64         `json:"total"`
	CreatedAt   string        `json:"createdAt"`
}

type Dashboard struct {
	TheaterId          uint                        `json:"theaterId"`
	StartDate          string                      `json:"startDate"`
	EndDate            string                      `json:"endDate"`
	Revision           int64                       `json:"revision"`
	Stats              DashboardStats              `json:"stats"`
	Channels           map[string]ChannelBreakdown `json:"channels"`
	SalesOverTime      []SalesPoint                `json:"salesOverTime"`
	CategoryEarnings   []CategoryEarning           `json:"categoryEarnings"`
	RecentTransactions []RecentTransaction         `json:"recentTransactions"`
	TopProducts        []TopProduct                `json:"topProducts"`
}
