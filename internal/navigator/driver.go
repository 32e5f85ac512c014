package navigator

import "context"

// FieldKind 区分表单元素的交互方式。
type FieldKind string

const (
	FieldRadio    FieldKind = "radio"
	FieldCheckbox FieldKind = "checkbox"
	FieldSelect   FieldKind = "select"
	FieldText     FieldKind = "text"
	FieldTextArea FieldKind = "textarea"
)

// Field 是模态框内一个表单组的快照。Ref 由驱动分配，用于后续定位。
type Field struct {
	Ref      string
	Kind     FieldKind
	Label    string
	Required bool
	Filled   bool
	Options  []string
}

// Button 是一个当前可点击的按钮。
type Button struct {
	Label string
}

// Snapshot 是某一时刻模态框可交互元素的只读视图。状态机只依赖它做
// 决策，不直接触碰 DOM。
type Snapshot struct {
	ModalOpen bool
	HasErrors bool
	Fields    []Field
	Buttons   []Button
}

// PageDriver 抽象页面操作。生产实现基于 rod 驱动真实页面，测试实现
// 回放脚本化的快照序列。
type PageDriver interface {
	// OpenModal 定位并点击初始的申请入口；找不到时返回 ErrTriggerNotFound。
	OpenModal(ctx context.Context) error
	Snapshot(ctx context.Context) (*Snapshot, error)
	// ClickButton 点击快照中给定文案的按钮。
	ClickButton(ctx context.Context, label string) error
	// ClickMatching 点击第一个文案匹配正则的按钮，返回是否找到。
	ClickMatching(ctx context.Context, pattern string) (bool, error)
	// Dismiss 点击模态框的关闭控件，返回是否存在。
	Dismiss(ctx context.Context) (bool, error)
	SetText(ctx context.Context, ref, value string) error
	SelectOption(ctx context.Context, ref, optionLabel string) error
	ChooseRadio(ctx context.Context, ref, optionLabel string) error
	// SetStatus 更新页面内的状态横幅，让人工接管时能看到进度。
	SetStatus(ctx context.Context, text string, waiting bool)
}
