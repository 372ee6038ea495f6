package model

import (
	"time"
)

// Explanation 解析缓存条目。按 (question_id, option_id, cache_version) 内容寻址，
// 写入后不可变：生成策略变化时递增 cache_version，旧行保留但不再命中
type Explanation struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	QuestionID   uint      `gorm:"not null;uniqueIndex:idx_expl_key,priority:1" json:"questionId"`
	OptionID     uint      `gorm:"not null;uniqueIndex:idx_expl_key,priority:2" json:"optionId"`
	CacheVersion string    `gorm:"size:20;not null;uniqueIndex:idx_expl_key,priority:3" json:"cacheVersion"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	Source       string    `gorm:"size:100" json:"source"` // template 或 template+llm
	CreatedAt    time.Time `gorm:"index" json:"createdAt"`
}

func (Explanation) TableName() string {
	return "explanations"
}
