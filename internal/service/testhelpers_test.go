package service

import (
	"fmt"
	"mcq_tutor_backend/internal/model"
	"testing"

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

const testLectureText = "A stack is a last-in first-out data structure. " +
	"Elements are pushed onto the top and popped from the top. " +
	"A queue is a first-in first-out data structure. " +
	"Binary trees organize nodes hierarchically."

// seedQuestion 建一道四选一：A 为正确答案
func seedQuestion(t *testing.T, db *gorm.DB) uint {
	t.Helper()

	lecture := model.Lecture{Title: "Data Structures", CleanText: testLectureText, IsActive: true}
	require.NoError(t, db.Create(&lecture).Error)

	question := model.Question{LectureID: lecture.ID, Stem: "What is a stack?", Difficulty: "easy"}
	require.NoError(t, db.Create(&question).Error)

	options := []model.Option{
		{QuestionID: question.ID, Label: "A", Text: "A last-in first-out collection", IsCorrect: true},
		{QuestionID: question.ID, Label: "B", Text: "A first-in first-out collection"},
		{QuestionID: question.ID, Label: "C", Text: "A hierarchical node structure"},
		{QuestionID: question.ID, Label: "D", Text: "A key to value mapping"},
	}
	require.NoError(t, db.Create(&options).Error)

	answerKey := model.AnswerKey{QuestionID: question.ID, CorrectOptionID: options[0].ID}
	require.NoError(t, db.Create(&answerKey).Error)

	return question.ID
}
