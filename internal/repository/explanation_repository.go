package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mcq_tutor_backend/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const cacheTTL = 24 * time.Hour

// ExplanationKey 缓存键。版本号是键的一部分：策略升级递增版本即可让
// 旧条目全部失效，历史行保留可追溯
type ExplanationKey struct {
	QuestionID uint
	OptionID   uint
	Version    string
}

func (k ExplanationKey) redisKey() string {
	return fmt.Sprintf("xai:cache:%d:%d:%s", k.QuestionID, k.OptionID, k.Version)
}

type ExplanationRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
	ctx   context.Context
}

func NewExplanationRepository(db *gorm.DB, rdb *redis.Client) *ExplanationRepository {
	return &ExplanationRepository{
		DB:    db,
		Redis: rdb,
		ctx:   context.Background(),
	}
}

// Get 查缓存。Redis 为热层，MySQL 为准；未命中返回 (nil, nil)
func (r *ExplanationRepository) Get(key ExplanationKey) (*model.Explanation, error) {
	if r.Redis != nil {
		cached, err := r.Redis.Get(r.ctx, key.redisKey()).Result()
		if err == nil && cached != "" {
			var expl model.Explanation
			if err := json.Unmarshal([]byte(cached), &expl); err == nil {
				return &expl, nil
			}
		}
	}

	var expl model.Explanation
	err := r.DB.Where(
		"question_id = ? AND option_id = ? AND cache_version = ?",
		key.QuestionID, key.OptionID, key.Version,
	).First(&expl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.cacheHot(key, &expl)
	return &expl, nil
}

// Put 幂等写入，先写者胜。并发写同一个键时依靠复合唯一索引让后写者
// 静默落空，然后读回胜者的内容——输掉竞争不是错误
func (r *ExplanationRepository) Put(key ExplanationKey, content, source string) (*model.Explanation, error) {
	expl := model.Explanation{
		QuestionID:   key.QuestionID,
		OptionID:     key.OptionID,
		CacheVersion: key.Version,
		Content:      content,
		Source:       source,
	}

	err := r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "question_id"}, {Name: "option_id"}, {Name: "cache_version"},
		},
		DoNothing: true,
	}).Create(&expl).Error
	if err != nil {
		return nil, err
	}

	// 无论写入还是落空都读回持久化的那一行
	var winner model.Explanation
	err = r.DB.Where(
		"question_id = ? AND option_id = ? AND cache_version = ?",
		key.QuestionID, key.OptionID, key.Version,
	).First(&winner).Error
	if err != nil {
		return nil, err
	}

	r.cacheHot(key, &winner)
	return &winner, nil
}

func (r *ExplanationRepository) cacheHot(key ExplanationKey, expl *model.Explanation) {
	if r.Redis == nil {
		return
	}
	data, err := json.Marshal(expl)
	if err != nil {
		return
	}
	r.Redis.Set(r.ctx, key.redisKey(), data, cacheTTL)
}
