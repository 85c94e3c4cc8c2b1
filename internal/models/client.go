package models

import "time"

// Client внешнее приложение, обращающееся к API по X-Client-ID / X-Client-Secret.
type Client struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	SKUPrefix    string    `json:"sku_prefix"`
	ProductName  string    `json:"product_name"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"-"`
	IsEnabled    bool      `json:"is_enabled"`
	CreatedAt    time.Time `json:"created_at"`
}
