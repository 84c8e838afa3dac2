package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	model "github.com/jeffsasaki/store-admin/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	lines []model.SaleLine
	sales int
	stock int
	err   error
}

func (s stubStore) PaidSaleLines(context.Context, string) ([]model.SaleLine, error) {
	return s.lines, s.err
}

func (s stubStore) CountPaidOrders(context.Context, string) (int, error) { return s.sales, nil }

func (s stubStore) CountActiveProducts(context.Context, string) (int, error) { return s.stock, nil }

func line(month time.Month, price string) model.SaleLine {
	return model.SaleLine{
		OrderedAt: time.Date(2024, month, 3, 12, 0, 0, 0, time.UTC),
		Price:     decimal.RequireFromString(price),
	}
}

func TestMonthlyRevenue(t *testing.T) {
	graph := MonthlyRevenue([]model.SaleLine{
		line(time.January, "10.00"),
		line(time.January, "5.50"),
		line(time.December, "20.00"),
	})

	require.Len(t, graph, 12)
	assert.Equal(t, "Jan", graph[0].Name)
	assert.Equal(t, "Dec", graph[11].Name)
	assert.Equal(t, "15.5", graph[0].Total.String())
	assert.True(t, graph[5].Total.IsZero())
	assert.Equal(t, "20", graph[11].Total.String())
}

func TestStats(t *testing.T) {
	svc := NewService(stubStore{
		lines: []model.SaleLine{line(time.March, "10.00"), line(time.April, "2.25")},
		sales: 2,
		stock: 7,
	})

	stats, err := svc.Stats(context.Background(), "store-1")
	require.NoError(t, err)

	assert.Equal(t, "12.25", stats.TotalRevenue.String())
	assert.Equal(t, 2, stats.SalesCount)
	assert.Equal(t, 7, stats.StockCount)
	assert.Equal(t, "10", stats.Graph[2].Total.String())
}

func TestStatsPropagatesStoreError(t *testing.T) {
	_, err := NewService(stubStore{err: errors.New("db down")}).Stats(context.Background(), "store-1")
	assert.EqualError(t, err, "db down")
}
