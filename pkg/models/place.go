// Package models contains domain models for placefeed.
package models

import "time"

// PlacesTable is the store table holding places.
const PlacesTable = "places"

// PlaceColumns is the projection used whenever a place is returned to a caller.
var PlaceColumns = []string{
	"id", "name", "address", "lat", "lng", "photo_url", "primary_type", "genre_tags",
	"classification_source", "classification_confidence", "updated_at",
}

// Place is a physical venue posts can be attached to.
type Place struct {
	UpdatedAt                time.Time  `gorm:"column:updated_at" json:"updated_at"`
	Address                  *string    `gorm:"column:address" json:"address"`
	Lat                      *float64   `gorm:"column:lat" json:"lat"`
	Lng                      *float64   `gorm:"column:lng" json:"lng"`
	PhotoURL                 *string    `gorm:"column:photo_url" json:"photo_url"`
	PrimaryType              *string    `gorm:"column:primary_type" json:"primary_type"`
	ClassificationSource     *string    `gorm:"column:classification_source" json:"classification_source"`
	ClassificationConfidence *float64   `gorm:"column:classification_confidence" json:"classification_confidence"`
	ID                       string     `gorm:"column:id" json:"id"`
	Name                     string     `gorm:"column:name" json:"name"`
	GenreTags                StringList `gorm:"column:genre_tags" json:"genre_tags"`
}
