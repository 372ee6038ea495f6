package service

import (
	"mcq_tutor_backend/internal/model"
	"mcq_tutor_backend/internal/util"
	"regexp"
	"strings"
)

// AnswerVerifier 符号化判题：标签规范化 + 精确比对，无任何模糊匹配。
// 纯函数，不读写任何状态
type AnswerVerifier struct{}

func NewAnswerVerifier() *AnswerVerifier {
	return &AnswerVerifier{}
}

// 单字母词元，兼容 "A" / "A." / "(A)" / "option A" / "answer: A" 等写法
var letterTokenRe = regexp.MustCompile(`(?i)\b([A-Z])\b`)

// Normalize 把任意写法的选项标签规范为大写单字母。
// alphabet 是该题合法的标签集合；取不出字母时报 ErrLabelUnreadable，
// 绝不静默回退到默认值
func (v *AnswerVerifier) Normalize(raw string, alphabet string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", util.ErrLabelUnreadable
	}

	upperAlphabet := strings.ToUpper(alphabet)
	for _, m := range letterTokenRe.FindAllStringSubmatch(s, -1) {
		letter := strings.ToUpper(m[1])
		if strings.Contains(upperAlphabet, letter) {
			return letter, nil
		}
	}

	return "", util.ErrLabelUnreadable
}

// Alphabet 汇总一道题的合法标签字母表
func (v *AnswerVerifier) Alphabet(options []model.Option) string {
	var sb strings.Builder
	for _, o := range options {
		sb.WriteString(strings.ToUpper(strings.TrimSpace(o.Label)))
	}
	return sb.String()
}

// Verify 判定学生选择是否正确。正确性永远从答案键现算，不从缓存读
func (v *AnswerVerifier) Verify(options []model.Option, correctLabel, studentLabel string) (bool, string, error) {
	alphabet := v.Alphabet(options)

	correct, err := v.Normalize(correctLabel, alphabet)
	if err != nil {
		return false, "", util.ErrMalformedQuestion
	}

	student, err := v.Normalize(studentLabel, alphabet)
	if err != nil {
		return false, correct, err
	}

	return student == correct, correct, nil
}
