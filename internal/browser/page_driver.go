package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/WhiteboxHub/project-linkedIn-easyapply-extension/internal/navigator"
)

const evalTimeout = 10 * time.Second

// PageDriver 基于 rod 实现 navigator.PageDriver，所有 DOM 操作都通过
// 注入脚本完成，结果经 JSON 回传。
type PageDriver struct {
	page   *rod.Page
	logger *slog.Logger
}

func NewPageDriver(tab *Tab, logger *slog.Logger) *PageDriver {
	return &PageDriver{page: tab.page, logger: logger}
}

func (d *PageDriver) eval(ctx context.Context, js string, args ...interface{}) (string, error) {
	res, err := d.page.Context(ctx).Timeout(evalTimeout).Eval(js, args...)
	if err != nil {
		return "", err
	}
	return res.Value.JSON("", ""), nil
}

func (d *PageDriver) evalBool(ctx context.Context, js string, args ...interface{}) (bool, error) {
	raw, err := d.eval(ctx, js, args...)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(raw) == "true", nil
}

func (d *PageDriver) OpenModal(ctx context.Context) error {
	found, err := d.evalBool(ctx, openModalJS)
	if err != nil {
		return fmt.Errorf("click apply trigger: %w", err)
	}
	if !found {
		return navigator.ErrTriggerNotFound
	}
	return nil
}

type snapshotDTO struct {
	ModalOpen bool `json:"modalOpen"`
	HasErrors bool `json:"hasErrors"`
	Fields    []struct {
		Ref      string   `json:"ref"`
		Kind     string   `json:"kind"`
		Label    string   `json:"label"`
		Required bool     `json:"required"`
		Filled   bool     `json:"filled"`
		Options  []string `json:"options"`
	} `json:"fields"`
	Buttons []struct {
		Label string `json:"label"`
	} `json:"buttons"`
}

func (d *PageDriver) Snapshot(ctx context.Context) (*navigator.Snapshot, error) {
	raw, err := d.eval(ctx, snapshotJS)
	if err != nil {
		return nil, fmt.Errorf("sample modal: %w", err)
	}
	var dto snapshotDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	snap := &navigator.Snapshot{
		ModalOpen: dto.ModalOpen,
		HasErrors: dto.HasErrors,
	}
	for _, f := range dto.Fields {
		snap.Fields = append(snap.Fields, navigator.Field{
			Ref:      f.Ref,
			Kind:     navigator.FieldKind(f.Kind),
			Label:    f.Label,
			Required: f.Required,
			Filled:   f.Filled,
			Options:  f.Options,
		})
	}
	for _, b := range dto.Buttons {
		snap.Buttons = append(snap.Buttons, navigator.Button{Label: b.Label})
	}
	return snap, nil
}

func (d *PageDriver) ClickButton(ctx context.Context, label string) error {
	found, err := d.evalBool(ctx, clickButtonJS, label)
	if err != nil {
		return fmt.Errorf("click button %q: %w", label, err)
	}
	if !found {
		return fmt.Errorf("button %q not found", label)
	}
	return nil
}

func (d *PageDriver) ClickMatching(ctx context.Context, pattern string) (bool, error) {
	// Go 的 (?i) 前缀在 JS 正则里换成 i 标志。
	flags := ""
	if strings.HasPrefix(pattern, "(?i)") {
		pattern = strings.TrimPrefix(pattern, "(?i)")
		flags = "i"
	}
	found, err := d.evalBool(ctx, clickMatchingJS, pattern, flags)
	if err != nil {
		return false, fmt.Errorf("click matching %q: %w", pattern, err)
	}
	return found, nil
}

func (d *PageDriver) Dismiss(ctx context.Context) (bool, error) {
	found, err := d.evalBool(ctx, dismissJS)
	if err != nil {
		return false, fmt.Errorf("dismiss modal: %w", err)
	}
	return found, nil
}

func (d *PageDriver) SetText(ctx context.Context, ref, value string) error {
	found, err := d.evalBool(ctx, setTextJS, ref, value)
	if err != nil {
		return fmt.Errorf("set text %s: %w", ref, err)
	}
	if !found {
		return fmt.Errorf("field %s not found", ref)
	}
	return nil
}

func (d *PageDriver) SelectOption(ctx context.Context, ref, optionLabel string) error {
	found, err := d.evalBool(ctx, selectOptionJS, ref, optionLabel)
	if err != nil {
		return fmt.Errorf("select option %s: %w", ref, err)
	}
	if !found {
		return fmt.Errorf("option %q not found in %s", optionLabel, ref)
	}
	return nil
}

func (d *PageDriver) ChooseRadio(ctx context.Context, ref, optionLabel string) error {
	found, err := d.evalBool(ctx, chooseRadioJS, ref, optionLabel)
	if err != nil {
		return fmt.Errorf("choose radio %s: %w", ref, err)
	}
	if !found {
		return fmt.Errorf("radio %q not found in %s", optionLabel, ref)
	}
	return nil
}

func (d *PageDriver) SetStatus(ctx context.Context, text string, waiting bool) {
	if _, err := d.evalBool(ctx, setStatusJS, text, waiting); err != nil {
		d.logger.Debug("update status banner failed", slog.Any("error", err))
	}
}
