package model

// Lecture 已清洗的讲义文本，由文档处理管线写入，本服务只读
type Lecture struct {
	BaseModel
	Title     string     `gorm:"size:255;not null" json:"title"`
	RawText   string     `gorm:"type:longtext;not null" json:"-"`
	CleanText string     `gorm:"type:longtext;not null" json:"cleanText"`
	IsActive  bool       `gorm:"default:true" json:"isActive"`
	Questions []Question `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Lecture) TableName() string {
	return "lectures"
}
