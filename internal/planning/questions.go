package planning

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

const questionBankEnv = "PLANNING_QUESTION_BANK_PATH"

const MaxQuestions = 3

// Answers below this confidence are asked again.
const confirmThreshold = 0.78

//go:embed questions.yaml
var questionBankFS embed.FS

type yamlQuestionBank struct {
	Bank      string         `yaml:"bank"`
	Version   int            `yaml:"version"`
	Questions []yamlQuestion `yaml:"questions"`
}

type yamlQuestion struct {
	QuestionID string       `yaml:"question_id"`
	Question   string       `yaml:"question"`
	AllowOther *bool        `yaml:"allow_other"`
	Options    []yamlOption `yaml:"options"`
}

type yamlOption struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// QuestionBank holds one canonical question per slot.
type QuestionBank struct {
	byID map[string]mix.Question
}

// LoadQuestionBank reads the bank from PLANNING_QUESTION_BANK_PATH when set,
// otherwise from the embedded questions.yaml.
func LoadQuestionBank() (*QuestionBank, error) {
	var (
		data []byte
		err  error
	)
	if path := strings.TrimSpace(os.Getenv(questionBankEnv)); path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = questionBankFS.ReadFile("questions.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return ParseQuestionBank(data)
}

func ParseQuestionBank(data []byte) (*QuestionBank, error) {
	var spec yamlQuestionBank
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if len(spec.Questions) == 0 {
		return nil, errors.New("question bank has no questions")
	}
	bank := &QuestionBank{byID: map[string]mix.Question{}}
	for _, q := range spec.Questions {
		id := strings.TrimSpace(q.QuestionID)
		if id == "" {
			return nil, errors.New("question_id is required")
		}
		if _, dup := bank.byID[id]; dup {
			return nil, fmt.Errorf("duplicate question_id: %s", id)
		}
		if len(q.Options) == 0 {
			return nil, fmt.Errorf("question %s has no options", id)
		}
		out := mix.Question{ID: id, Question: strings.TrimSpace(q.Question), AllowOther: q.AllowOther == nil || *q.AllowOther}
		for _, o := range q.Options {
			out.Options = append(out.Options, mix.QuestionOption{ID: strings.TrimSpace(o.ID), Label: strings.TrimSpace(o.Label)})
		}
		bank.byID[id] = out
	}
	for _, slot := range mix.SlotOrder {
		if _, ok := bank.byID[slot]; !ok {
			return nil, fmt.Errorf("question bank is missing slot %s", slot)
		}
	}
	return bank, nil
}

func (b *QuestionBank) Question(slotID string) (mix.Question, bool) {
	q, ok := b.byID[slotID]
	if !ok {
		return mix.Question{}, false
	}
	q.Options = append([]mix.QuestionOption(nil), q.Options...)
	return q, true
}

// Build returns the bank questions for the given slot ids, in order.
func (b *QuestionBank) Build(slotIDs []string) []mix.Question {
	out := make([]mix.Question, 0, len(slotIDs))
	for _, id := range slotIDs {
		if q, ok := b.Question(id); ok {
			out = append(out, q)
		}
	}
	return out
}

// MustAsk picks the slots the next round has to ask about: every slot before
// minRounds, afterwards only slots that are missing, weakly held or never
// answered. At most MaxQuestions are returned.
func MustAsk(slots mix.Slots, answers mix.Answers, roundCount, minRounds int) []string {
	var ids []string
	if roundCount < minRounds {
		ids = append(ids, mix.SlotOrder...)
	} else {
		for _, id := range mix.SlotOrder {
			s := slots[id]
			a, answered := answers[id]
			if !s.Filled() || s.Confidence < confirmThreshold || !answered || (a.SelectedOptionID == "" && a.OtherText == "") {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) > MaxQuestions {
		ids = ids[:MaxQuestions]
	}
	return ids
}
