package db

import (
	"time"

	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Article maps articles. Title is the dedup key; rows are never updated.
type Article struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ParentTopic     string    `gorm:"column:parent_topic;type:text;not null;index"`
	Source          string    `gorm:"column:source;type:text;not null;default:''"`
	Title           string    `gorm:"column:title;type:text;not null;index"`
	Description     string    `gorm:"column:description;type:text;not null;default:''"`
	Maintext        string    `gorm:"column:maintext;type:text;not null;default:''"`
	PublicationDate string    `gorm:"column:publication_date;type:text;not null;default:''"`
	URL             string    `gorm:"column:url;type:text;not null;default:''"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
}

func (Article) TableName() string { return "articles" }

// ArticleFeatures maps articles_features, one row per article, removed with it.
type ArticleFeatures struct {
	ID             int64                       `gorm:"column:id;primaryKey;autoIncrement"`
	ArticleID      int64                       `gorm:"column:article_id;not null;uniqueIndex"`
	Article        *Article                    `gorm:"foreignKey:ArticleID;references:ID;constraint:OnDelete:CASCADE"`
	TitleVector    pgvector.Vector             `gorm:"column:title_vector;type:vector;not null"`
	NumNumericals  int                         `gorm:"column:num_numericals;not null;default:0"`
	NamedEntities  datatypes.JSONSlice[string] `gorm:"column:named_entities;not null"`
	LemmatizedText string                      `gorm:"column:lemmatized_text;type:text;not null;default:''"`
	CreatedAt      time.Time                   `gorm:"column:created_at;not null"`
}

func (ArticleFeatures) TableName() string { return "articles_features" }

func autoMigrateModels() []any {
	return []any{
		&Article{},
		&ArticleFeatures{},
	}
}
