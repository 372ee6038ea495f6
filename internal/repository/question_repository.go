package repository

import (
	"errors"
	"mcq_tutor_backend/internal/model"
	"mcq_tutor_backend/internal/util"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

// QuestionBundle 一次判题所需的全部静态数据
type QuestionBundle struct {
	Question     *model.Question
	LectureText  string
	CorrectLabel string
}

// GetBundle 加载题目、选项、答案键和所属讲义文本。
// 正确标签优先取 AnswerKey 指向的选项，缺失时回退到 is_correct 标记；
// 两者都没有视为坏数据，直接报 ErrMalformedQuestion
func (r *QuestionRepository) GetBundle(questionID uint) (*QuestionBundle, error) {
	var q model.Question
	err := r.DB.
		Preload("Lecture").
		Preload("Options").
		Preload("AnswerKey.CorrectOption").
		First(&q, questionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(q.Options) == 0 {
		return nil, util.ErrMalformedQuestion
	}

	correctLabel := ""
	if q.AnswerKey != nil && q.AnswerKey.CorrectOption != nil {
		correctLabel = q.AnswerKey.CorrectOption.Label
	}
	if correctLabel == "" {
		for _, o := range q.Options {
			if o.IsCorrect {
				correctLabel = o.Label
				break
			}
		}
	}
	if correctLabel == "" {
		return nil, util.ErrMalformedQuestion
	}

	lectureText := ""
	if q.Lecture != nil {
		lectureText = q.Lecture.CleanText
		if lectureText == "" {
			lectureText = q.Lecture.RawText
		}
	}

	return &QuestionBundle{
		Question:     &q,
		LectureText:  lectureText,
		CorrectLabel: correctLabel,
	}, nil
}

// GetLectureText 按题目 ID 取所属讲义文本，用于聊天上下文注入
func (r *QuestionRepository) GetLectureText(questionID uint) (string, error) {
	var q model.Question
	err := r.DB.Preload("Lecture").First(&q, questionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", util.ErrQuestionNotFound
	}
	if err != nil {
		return "", err
	}
	if q.Lecture == nil {
		return "", util.ErrLectureNotFound
	}
	if q.Lecture.CleanText != "" {
		return q.Lecture.CleanText, nil
	}
	return q.Lecture.RawText, nil
}
