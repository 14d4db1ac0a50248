package models

import "time"

// Product is a catalog item linking to a third-party retailer.
type Product struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Brand        string    `json:"brand"`
	Category     string    `json:"category"`
	PriceCents   int64     `json:"priceCents"`
	Currency     string    `json:"currency"`
	Description  string    `json:"description,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	AffiliateURL string    `json:"affiliateUrl,omitempty"`
	Retailer     string    `json:"retailer,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ProductInput is the admin create/update payload.
type ProductInput struct {
	ID           string `json:"id" binding:"omitempty,max=64"`
	Name         string `json:"name" binding:"required,max=200"`
	Brand        string `json:"brand" binding:"required,max=120"`
	Category     string `json:"category" binding:"required,max=80"`
	PriceCents   int64  `json:"priceCents" binding:"gte=0"`
	Currency     string `json:"currency" binding:"omitempty,len=3"`
	Description  string `json:"description" binding:"max=5000"`
	ImageURL     string `json:"imageUrl" binding:"omitempty,url"`
	AffiliateURL string `json:"affiliateUrl" binding:"required,url"`
	IsActive     *bool  `json:"isActive"`
}

// ProductFilter drives the public catalog listing. Every field is bound as a
// query parameter, never formatted into SQL.
type ProductFilter struct {
	Query    string `form:"q" binding:"max=100"`
	Category string `form:"category" binding:"max=80"`
	Brand    string `form:"brand" binding:"max=120"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset   int    `form:"offset" binding:"omitempty,min=0"`
}

// Moodboard is a curated, shoppable collection of products.
type Moodboard struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	IsPublished   bool      `json:"isPublished"`
	Products      []Product `json:"products,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type MoodboardInput struct {
	ID            string   `json:"id" binding:"omitempty,max=64"`
	Title         string   `json:"title" binding:"required,max=200"`
	Description   string   `json:"description" binding:"max=5000"`
	CoverImageURL string   `json:"coverImageUrl" binding:"omitempty,url"`
	IsPublished   bool     `json:"isPublished"`
	ProductIDs    []string `json:"productIds" binding:"dive,required"`
}

// RetailerCategory classifies a trusted retailer.
type RetailerCategory string

const (
	RetailerLuxury       RetailerCategory = "luxury"
	RetailerContemporary RetailerCategory = "contemporary"
	RetailerFastFashion  RetailerCategory = "fast-fashion"
	RetailerMarketplace  RetailerCategory = "marketplace"
)

// TrustedRetailer is a whitelist entry for affiliate redirects.
type TrustedRetailer struct {
	Domain   string           `json:"domain"`
	Name     string           `json:"name"`
	Category RetailerCategory `json:"category"`
	IsActive bool             `json:"isActive"`
	AddedAt  time.Time        `json:"addedAt"`
}

type RetailerInput struct {
	Domain   string           `json:"domain" binding:"required,max=253"`
	Name     string           `json:"name" binding:"required,max=120"`
	Category RetailerCategory `json:"category" binding:"required,oneof=luxury contemporary fast-fashion marketplace"`
	IsActive *bool            `json:"isActive"`
}

type RetailerToggleRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

type URLTestRequest struct {
	URL string `json:"url" binding:"required"`
}
