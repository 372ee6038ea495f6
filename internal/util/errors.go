package util

import "errors"

var (
	ErrQuestionNotFound  = errors.New("question not found")
	ErrLectureNotFound   = errors.New("lecture not found")
	ErrMalformedQuestion = errors.New("question has no options or no answer key")
	ErrOptionNotFound    = errors.New("selected option does not exist for this question")
	ErrLabelUnreadable   = errors.New("could not extract an option label")
	ErrModelUnavailable  = errors.New("model backend unavailable")
)
