package model

// Question MCQ 题干。由出题管线创建，对本服务只读；
// 正确答案只以 AnswerKey 为准，永远不缓存判定结果
type Question struct {
	BaseModel
	LectureID  uint       `gorm:"index;not null" json:"lectureId"`
	Stem       string     `gorm:"type:text;not null" json:"stem"`
	Difficulty string     `gorm:"size:50;default:medium" json:"difficulty"`
	Lecture    *Lecture   `json:"-"`
	Options    []Option   `gorm:"constraint:OnDelete:CASCADE" json:"options"`
	AnswerKey  *AnswerKey `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Question) TableName() string {
	return "questions"
}

// Option 单个选项，Label 入库时已规范为大写单字母
type Option struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	QuestionID uint   `gorm:"index;not null" json:"questionId"`
	Label      string `gorm:"size:5;not null" json:"label"`
	Text       string `gorm:"size:512;not null" json:"text"`
	IsCorrect  bool   `gorm:"default:false" json:"-"`
}

func (Option) TableName() string {
	return "options"
}

// AnswerKey 题目的标准答案指针，创建后不再变更
type AnswerKey struct {
	ID              uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	QuestionID      uint    `gorm:"uniqueIndex;not null" json:"questionId"`
	CorrectOptionID uint    `gorm:"not null" json:"correctOptionId"`
	CorrectOption   *Option `gorm:"foreignKey:CorrectOptionID" json:"-"`
}

func (AnswerKey) TableName() string {
	return "answer_keys"
}
