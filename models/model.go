package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Store struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	UserID    string    `gorm:"index;not null" json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Billboard struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	StoreID   string    `gorm:"type:text;index;not null" json:"storeId"`
	Label     string    `gorm:"not null" json:"label"`
	ImageURL  string    `gorm:"not null" json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Category struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"`
	StoreID     string    `gorm:"type:text;index;not null" json:"storeId"`
	BillboardID string    `gorm:"type:text;index;not null" json:"billboardId"`
	Name        string    `gorm:"not null" json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Size struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	StoreID   string    `gorm:"type:text;index;not null" json:"storeId"`
	Name      string    `gorm:"not null" json:"name"`
	Value     string    `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Color struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	StoreID   string    `gorm:"type:text;index;not null" json:"storeId"`
	Name      string    `gorm:"not null" json:"name"`
	Value     string    `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Product prices are whole minor currency units (cents for usd).
type Product struct {
	ID         string          `gorm:"primaryKey;type:text" json:"id"`
	StoreID    string          `gorm:"type:text;index;not null" json:"storeId"`
	CategoryID string          `gorm:"type:text;index;not null" json:"categoryId"`
	SizeID     string          `gorm:"type:text;index;not null" json:"sizeId"`
	ColorID    string          `gorm:"type:text;index;not null" json:"colorId"`
	Name       string          `gorm:"not null" json:"name"`
	Price      decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	IsFeatured bool            `gorm:"not null;default:false" json:"isFeatured"`
	IsArchived bool            `gorm:"not null;default:false" json:"isArchived"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type Order struct {
	ID        string      `gorm:"primaryKey;type:text" json:"id"`
	StoreID   string      `gorm:"type:text;index;not null" json:"storeId"`
	IsPaid    bool        `gorm:"not null;default:false" json:"isPaid"`
	Address   string      `gorm:"not null;default:''" json:"address"`
	Phone     string      `gorm:"not null;default:''" json:"phone"`
	Items     []OrderItem `gorm:"foreignKey:OrderID" json:"orderItems,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// OrderItem is one purchased unit; there is no quantity column.
type OrderItem struct {
	ID        string `gorm:"primaryKey;type:text" json:"id"`
	OrderID   string `gorm:"type:text;index;not null" json:"orderId"`
	ProductID string `gorm:"type:text;index;not null" json:"productId"`
}

// WebhookEvent records gateway event ids that were already applied.
type WebhookEvent struct {
	ID        string    `gorm:"primaryKey;size:255" json:"id"`
	Type      string    `gorm:"size:100;not null" json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

type OutboxEvent struct {
	ID          string     `gorm:"primaryKey;type:text" json:"id"`
	AggregateID string     `gorm:"type:text;index;not null" json:"aggregateId"`
	Topic       string     `gorm:"size:100;not null" json:"topic"`
	Payload     []byte     `gorm:"not null" json:"payload"`
	CreatedAt   time.Time  `json:"createdAt"`
	PublishedAt *time.Time `gorm:"index" json:"publishedAt,omitempty"`
}

// OrderPaidEvent is published on the order_events queue once an order is paid.
type OrderPaidEvent struct {
	OrderID    string    `json:"order_id"`
	StoreID    string    `json:"store_id"`
	ProductIDs []string  `json:"product_ids"`
	Address    string    `json:"address"`
	Phone      string    `json:"phone"`
	PaidAt     time.Time `json:"paid_at"`
}

// OrderSummary is one row of the admin order listing.
type OrderSummary struct {
	ID         string          `json:"id"`
	Phone      string          `json:"phone"`
	Address    string          `json:"address"`
	Products   []string        `json:"products"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	IsPaid     bool            `json:"isPaid"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type ProductFilter struct {
	CategoryID string
	SizeID     string
	ColorID    string
	IsFeatured bool
}

func (f ProductFilter) Empty() bool {
	return f == ProductFilter{}
}

// SaleLine is one order item of a paid order, priced at its product's
// current price.
type SaleLine struct {
	OrderedAt time.Time
	Price     decimal.Decimal
}
