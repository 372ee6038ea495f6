package repository

import (
	"fmt"
	"mcq_tutor_backend/internal/model"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// 内存库串行访问，避免并发用例触发 SQLITE_BUSY
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Lecture{},
		&model.Question{},
		&model.Option{},
		&model.AnswerKey{},
		&model.Explanation{},
	))

	return db
}

func TestExplanationRoundTrip(t *testing.T) {
	r := NewExplanationRepository(newTestDB(t), nil)
	key := ExplanationKey{QuestionID: 1, OptionID: 2, Version: "v2"}

	got, err := r.Get(key)
	require.NoError(t, err)
	assert.Nil(t, got)

	winner, err := r.Put(key, "Correct. Nice work.", "template")
	require.NoError(t, err)
	assert.Equal(t, "Correct. Nice work.", winner.Content)

	got, err = r.Get(key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Correct. Nice work.", got.Content)
	assert.Equal(t, "template", got.Source)
}

func TestExplanationPutIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	r := NewExplanationRepository(db, nil)
	key := ExplanationKey{QuestionID: 1, OptionID: 2, Version: "v2"}

	first, err := r.Put(key, "first wording", "template")
	require.NoError(t, err)

	// 后写者静默落空，读回的是先写者的内容
	second, err := r.Put(key, "second wording", "template")
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, "first wording", second.Content)

	var count int64
	require.NoError(t, db.Model(&model.Explanation{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestExplanationKeyIsolation(t *testing.T) {
	r := NewExplanationRepository(newTestDB(t), nil)

	_, err := r.Put(ExplanationKey{QuestionID: 1, OptionID: 2, Version: "v2"}, "for option 2", "template")
	require.NoError(t, err)
	_, err = r.Put(ExplanationKey{QuestionID: 1, OptionID: 3, Version: "v2"}, "for option 3", "template")
	require.NoError(t, err)
	_, err = r.Put(ExplanationKey{QuestionID: 1, OptionID: 2, Version: "v3"}, "new strategy", "template")
	require.NoError(t, err)

	got, err := r.Get(ExplanationKey{QuestionID: 1, OptionID: 2, Version: "v2"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "for option 2", got.Content)

	got, err = r.Get(ExplanationKey{QuestionID: 1, OptionID: 2, Version: "v3"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new strategy", got.Content)
}

func TestExplanationConcurrentPuts(t *testing.T) {
	db := newTestDB(t)
	r := NewExplanationRepository(db, nil)
	key := ExplanationKey{QuestionID: 5, OptionID: 6, Version: "v2"}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			winner, err := r.Put(key, fmt.Sprintf("wording %d", i), "template")
			if err == nil {
				results[i] = winner.Content
			}
		}(i)
	}
	wg.Wait()

	var count int64
	require.NoError(t, db.Model(&model.Explanation{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// 所有调用方拿到的都是同一个胜者
	var persisted model.Explanation
	require.NoError(t, db.First(&persisted).Error)
	for i, got := range results {
		if got != "" {
			assert.Equal(t, persisted.Content, got, "caller %d", i)
		}
	}
}
