package dashboard

import (
	"context"
	"time"

	model "github.com/jeffsasaki/store-admin/models"

	"github.com/shopspring/decimal"
)

type Store interface {
	PaidSaleLines(ctx context.Context, storeID string) ([]model.SaleLine, error)
	CountPaidOrders(ctx context.Context, storeID string) (int, error)
	CountActiveProducts(ctx context.Context, storeID string) (int, error)
}

type MonthRevenue struct {
	Name  string          `json:"name"`
	Total decimal.Decimal `json:"total"`
}

type Stats struct {
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	SalesCount   int             `json:"salesCount"`
	StockCount   int             `json:"stockCount"`
	Graph        []MonthRevenue  `json:"graphRevenue"`
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Stats(ctx context.Context, storeID string) (*Stats, error) {
	lines, err := s.store.PaidSaleLines(ctx, storeID)
	if err != nil {
		return nil, err
	}
	sales, err := s.store.CountPaidOrders(ctx, storeID)
	if err != nil {
		return nil, err
	}
	stock, err := s.store.CountActiveProducts(ctx, storeID)
	if err != nil {
		return nil, err
	}

	return &Stats{
		TotalRevenue: TotalRevenue(lines),
		SalesCount:   sales,
		StockCount:   stock,
		Graph:        MonthlyRevenue(lines),
	}, nil
}

func TotalRevenue(lines []model.SaleLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price)
	}
	return total
}

// MonthlyRevenue buckets revenue by calendar month of order creation,
// across years, Jan through Dec.
func MonthlyRevenue(lines []model.SaleLine) []MonthRevenue {
	graph := make([]MonthRevenue, 12)
	for i := range graph {
		graph[i] = MonthRevenue{Name: time.Month(i + 1).String()[:3], Total: decimal.Zero}
	}
	for _, l := range lines {
		m := l.OrderedAt.Month() - 1
		graph[m].Total = graph[m].Total.Add(l.Price)
	}
	return graph
}
