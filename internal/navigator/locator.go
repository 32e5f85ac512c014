package navigator

import "regexp"

// ActionKind 是按钮扫描的判定结果，优先级 submit > review > next。
type ActionKind int

const (
	ActionSubmit ActionKind = iota
	ActionReview
	ActionNext
)

// Action 指向快照中应当点击的按钮。
type Action struct {
	Kind  ActionKind
	Label string
}

var (
	submitPattern = regexp.MustCompile(`(?i)submit application`)
	reviewPattern = regexp.MustCompile(`(?i)review`)
	nextPattern   = regexp.MustCompile(`(?i)next|continue`)
)

// Locator 在可点击按钮里按固定优先级挑出下一步动作。
type Locator struct{}

func NewLocator() *Locator { return &Locator{} }

// Locate 返回优先级最高的可执行动作；没有可点的按钮时 ok=false。
func (l *Locator) Locate(buttons []Button) (Action, bool) {
	for _, spec := range []struct {
		kind    ActionKind
		pattern *regexp.Regexp
	}{
		{ActionSubmit, submitPattern},
		{ActionReview, reviewPattern},
		{ActionNext, nextPattern},
	} {
		for _, b := range buttons {
			if spec.pattern.MatchString(b.Label) {
				return Action{Kind: spec.kind, Label: b.Label}, true
			}
		}
	}
	return Action{}, false
}
