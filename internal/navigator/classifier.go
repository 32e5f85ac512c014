package navigator

import "strings"

// Answers 是启发式填表的默认答案。全部来自配置，属于投递策略而不是
// 候选人画像；留空表示跳过对应类别。
type Answers struct {
	Sponsorship string `mapstructure:"sponsorship"`
	Authorized  string `mapstructure:"authorized"`
	Citizen     string `mapstructure:"citizen"`
	Veteran     string `mapstructure:"veteran"`
	Disability  string `mapstructure:"disability"`

	Gender      string `mapstructure:"gender"`
	Proficiency string `mapstructure:"proficiency"`

	ExperienceYears string `mapstructure:"experience_years"`
	Salary          string `mapstructure:"salary"`
	NoticePeriod    string `mapstructure:"notice_period"`
}

// DefaultAnswers 与扩展时代的取值一致。
func DefaultAnswers() Answers {
	return Answers{
		Sponsorship:     "No",
		Authorized:      "Yes",
		Citizen:         "Yes",
		Veteran:         "No",
		Disability:      "No",
		Gender:          "Male",
		Proficiency:     "Professional",
		ExperienceYears: "15",
		Salary:          "50000",
		NoticePeriod:    "0",
	}
}

// FillKind 标记一次填写动作的类型。
type FillKind int

const (
	FillChooseRadio FillKind = iota
	FillSelectOption
	FillSetText
)

// Fill 是分类器给出的填写指令。
type Fill struct {
	Kind  FillKind
	Value string
}

// Classifier 按标签文案把空字段归入已知类别并给出默认答案。
// 匹配规则刻意保守：认不出的字段留给人工。
type Classifier struct {
	answers Answers
}

func NewClassifier(answers Answers) *Classifier {
	return &Classifier{answers: answers}
}

// Classify 返回字段的填写指令。字段已有值、类别认不出或答案未配置时
// 返回 ok=false。
func (c *Classifier) Classify(f Field) (Fill, bool) {
	if f.Filled {
		return Fill{}, false
	}
	label := strings.ToLower(f.Label)

	switch f.Kind {
	case FieldRadio, FieldCheckbox:
		target := c.radioAnswer(label)
		if target == "" {
			return Fill{}, false
		}
		if opt, ok := matchOption(f.Options, target); ok {
			return Fill{Kind: FillChooseRadio, Value: opt}, true
		}
	case FieldSelect:
		target := ""
		switch {
		case strings.Contains(label, "gender"):
			target = c.answers.Gender
		case strings.Contains(label, "proficiency"):
			target = c.answers.Proficiency
		}
		if target == "" {
			return Fill{}, false
		}
		if opt, ok := matchOption(f.Options, target); ok {
			return Fill{Kind: FillSelectOption, Value: opt}, true
		}
	case FieldText, FieldTextArea:
		val := c.textAnswer(label)
		if val != "" {
			return Fill{Kind: FillSetText, Value: val}, true
		}
	}
	return Fill{}, false
}

func (c *Classifier) radioAnswer(label string) string {
	switch {
	case strings.Contains(label, "sponsorship") || strings.Contains(label, "visa"):
		return c.answers.Sponsorship
	case strings.Contains(label, "authorized") || strings.Contains(label, "legally"):
		return c.answers.Authorized
	case strings.Contains(label, "citizen"):
		return c.answers.Citizen
	case strings.Contains(label, "veteran"):
		return c.answers.Veteran
	case strings.Contains(label, "disability"):
		return c.answers.Disability
	}
	return ""
}

func (c *Classifier) textAnswer(label string) string {
	switch {
	case strings.Contains(label, "experience") || strings.Contains(label, "years"):
		return c.answers.ExperienceYears
	case strings.Contains(label, "salary") || strings.Contains(label, "compensation"):
		return c.answers.Salary
	case strings.Contains(label, "notice"):
		return c.answers.NoticePeriod
	}
	return ""
}

// matchOption 在选项文案里找包含目标词的那一项（大小写不敏感）。
func matchOption(options []string, target string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(target))
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt), t) {
			return opt, true
		}
	}
	return "", false
}
