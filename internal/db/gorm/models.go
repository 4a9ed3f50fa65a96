package gorm

import (
	"time"

	"github.com/thebtf/placefeed/pkg/models"
)

// GORM schema models. These only describe the tables for migrations; reads
// scan straight into pkg/models.

type profileRecord struct {
	UpdatedAt   time.Time `gorm:"not null;default:now()"`
	DisplayName *string
	AvatarURL   *string
	HeaderURL   *string
	Bio         *string
	ID          string `gorm:"primaryKey;type:text"`
	Username    string `gorm:"type:text;not null"`
	IsPublic    bool   `gorm:"not null;default:true"`
}

func (profileRecord) TableName() string { return models.ProfilesTable }

type placeRecord struct {
	UpdatedAt                time.Time `gorm:"not null;default:now()"`
	Address                  *string
	Lat                      *float64
	Lng                      *float64
	PhotoURL                 *string
	PrimaryType              *string
	ClassificationSource     *string
	ClassificationConfidence *float64
	ID                       string            `gorm:"primaryKey;type:text"`
	Name                     string            `gorm:"type:text;not null"`
	GenreTags                models.StringList `gorm:"type:text[];not null;default:'{}'"`
}

func (placeRecord) TableName() string { return models.PlacesTable }

type postRecord struct {
	CreatedAt      time.Time `gorm:"not null;default:now()"`
	Content        *string
	PlaceName      *string
	PlaceAddress   *string
	PlaceID        *string `gorm:"type:text"`
	RecommendScore *float64
	Price          *float64
	PriceRange     *string
	ImageVariants  models.JSONMap    `gorm:"type:jsonb"`
	ID             string            `gorm:"primaryKey;type:text"`
	AuthorID       string            `gorm:"type:text;not null"`
	ImageURLs      models.StringList `gorm:"column:image_urls;type:text[];not null;default:'{}'"`
}

func (postRecord) TableName() string { return models.PostsTable }

type followRecord struct {
	CreatedAt   time.Time `gorm:"not null;default:now()"`
	FollowerID  string    `gorm:"primaryKey;type:text"`
	FolloweeID  string    `gorm:"primaryKey;type:text"`
	Status      string    `gorm:"type:text;not null;default:'pending';check:status IN ('pending', 'accepted', 'rejected')"`
	RequestRead bool      `gorm:"not null;default:false"`
}

func (followRecord) TableName() string { return models.FollowsTable }
