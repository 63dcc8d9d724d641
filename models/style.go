package models

import (
	"encoding/base64"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
)

// PhotoStyle is a named bundle of generation parameters. What the picker
// shows the user maps one-to-one onto a row here; the prompt template is
// what the pipeline actually consumes.
type PhotoStyle struct {
	gorm.Model
	Slug           string `json:"slug" gorm:"index:idx_style_slug,unique" binding:"required"`
	Name           string `json:"name" binding:"required"`
	Background     string `json:"background"`
	Clothing       string `json:"clothing"`
	Pose           string `json:"pose"`
	Branding       string `json:"branding"`
	PromptTemplate string `json:"prompt_template"`
	CreditCost     int64  `json:"credit_cost" gorm:"default:1"`
	Active         bool   `json:"active" gorm:"default:true"`
	SortOrder      int    `json:"sort_order" gorm:"default:0"`
}

// GetStyleBySlug fetches a style regardless of active flag; handlers decide
// whether inactive is acceptable.
func GetStyleBySlug(slug string, db *gorm.DB) (PhotoStyle, error) {
	var style PhotoStyle
	err := db.First(&style, "slug = ?", slug).Error
	return style, err
}

// ActiveStyles lists the picker catalog in display order.
func ActiveStyles(db *gorm.DB) ([]PhotoStyle, error) {
	var styles []PhotoStyle
	err := db.Where("active = ?", true).Order("sort_order asc, id asc").Find(&styles).Error
	return styles, err
}

// EncodeStyles packs the catalog for the redis cache.
func EncodeStyles(styles []PhotoStyle) (string, error) {
	data, err := json.Marshal(styles)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeStyles unpacks a cached catalog.
func DecodeStyles(data string) ([]PhotoStyle, error) {
	var styles []PhotoStyle
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(decoded, &styles); err != nil {
		return nil, err
	}
	return styles, nil
}
