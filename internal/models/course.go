// internal/models/course.go
package models

import (
	"github.com/google/uuid"
)

type Course struct {
	BaseModel
	Title           string        `json:"title" gorm:"size:255;not null"`
	Slug            string        `json:"slug" gorm:"size:191;not null;uniqueIndex"`
	Summary         string        `json:"summary" gorm:"size:500"`
	Description     string        `json:"description" gorm:"type:text"`
	Price           int64         `json:"price" gorm:"not null;default:0"`
	SalePrice       *int64        `json:"sale_price"`
	AccessDays      int           `json:"access_days" gorm:"not null;default:0"`
	ThumbnailURL    string        `json:"thumbnail_url" gorm:"size:500"`
	Status          PublishStatus `json:"status" gorm:"type:varchar(20);default:'DRAFT';not null;index"`
	TeacherID       *uuid.UUID    `json:"teacher_id" gorm:"type:uuid;index"`
	ImwebProductNo  string        `json:"imweb_product_no,omitempty" gorm:"size:100;index"`
	Position        int           `json:"position" gorm:"not null;default:0;index"`

	// Relationships
	Teacher   *Teacher   `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
	Lessons   []Lesson   `json:"lessons,omitempty" gorm:"foreignKey:CourseID"`
	Textbooks []Textbook `json:"textbooks,omitempty" gorm:"many2many:course_textbooks"`
}

// EffectivePrice is what a buyer pays today.
func (c *Course) EffectivePrice() int64 {
	if c.SalePrice != nil && *c.SalePrice >= 0 && *c.SalePrice < c.Price {
		return *c.SalePrice
	}
	return c.Price
}

type Lesson struct {
	BaseModel
	CourseID        uuid.UUID `json:"course_id" gorm:"type:uuid;not null;index"`
	Title           string    `json:"title" gorm:"size:255;not null"`
	Description     string    `json:"description" gorm:"type:text"`
	VimeoURL        string    `json:"vimeo_url,omitempty" gorm:"size:500"`
	VideoID         string    `json:"video_id,omitempty" gorm:"size:100"`
	DurationSeconds int       `json:"duration_seconds" gorm:"not null;default:0"`
	ThumbnailURL    string    `json:"thumbnail_url" gorm:"size:500"`
	Position        int       `json:"position" gorm:"not null;default:0;index"`
	IsPreview       bool      `json:"is_preview" gorm:"default:false"`
	Published       bool      `json:"published" gorm:"not null"`
}

type Textbook struct {
	BaseModel
	Title          string        `json:"title" gorm:"size:255;not null"`
	Slug           string        `json:"slug" gorm:"size:191;not null;uniqueIndex"`
	Author         string        `json:"author" gorm:"size:255"`
	Description    string        `json:"description" gorm:"type:text"`
	Price          int64         `json:"price" gorm:"not null;default:0"`
	SalePrice      *int64        `json:"sale_price"`
	AccessDays     int           `json:"access_days" gorm:"not null;default:0"`
	FileKey        string        `json:"-" gorm:"size:500"`
	CoverURL       string        `json:"cover_url" gorm:"size:500"`
	Status         PublishStatus `json:"status" gorm:"type:varchar(20);default:'DRAFT';not null;index"`
	ImwebProductNo string        `json:"imweb_product_no,omitempty" gorm:"size:100;index"`
	Position       int           `json:"position" gorm:"not null;default:0;index"`
}

func (t *Textbook) EffectivePrice() int64 {
	if t.SalePrice != nil && *t.SalePrice >= 0 && *t.SalePrice < t.Price {
		return *t.SalePrice
	}
	return t.Price
}

type Attachment struct {
	BaseModel
	CourseID   *uuid.UUID `json:"course_id" gorm:"type:uuid;index"`
	LessonID   *uuid.UUID `json:"lesson_id" gorm:"type:uuid;index"`
	FileName   string     `json:"file_name" gorm:"size:255;not null"`
	StorageKey string     `json:"storage_key" gorm:"size:500;not null"`
	URL        string     `json:"url" gorm:"size:1000"`
	Size       int64      `json:"size"`
	MimeType   string     `json:"mime_type" gorm:"size:100"`
	UploadedBy uuid.UUID  `json:"uploaded_by" gorm:"type:uuid"`
}

type Notice struct {
	BaseModel
	Title     string     `json:"title" gorm:"size:255;not null"`
	Body      string     `json:"body" gorm:"type:text;not null"`
	CourseID  *uuid.UUID `json:"course_id" gorm:"type:uuid;index"`
	Pinned    bool       `json:"pinned" gorm:"default:false;index"`
	Published bool       `json:"published" gorm:"not null;index"`
	AuthorID  uuid.UUID  `json:"author_id" gorm:"type:uuid"`
}
