package api

import (
	"mdviewer/internal/manager"
	"mdviewer/pkg/plugin"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TransitionResponse is returned by enable, disable and toggle.
type TransitionResponse struct {
	Plugin manager.Info `json:"plugin"`
	Error  string       `json:"error,omitempty"`
}

// SettingsResponse is the settings panel of one plugin.
type SettingsResponse struct {
	PluginID string          `json:"pluginId"`
	Language string          `json:"language"`
	Fields   []FieldView     `json:"fields"`
	Values   plugin.Settings `json:"values"`
}

// FieldView is a setting field with its labels resolved for one language.
type FieldView struct {
	Key         string       `json:"key"`
	Kind        string       `json:"type"`
	Label       string       `json:"label"`
	Description string       `json:"description,omitempty"`
	Default     any          `json:"default"`
	Options     []OptionView `json:"options,omitempty"`
	Min         *float64     `json:"min,omitempty"`
	Max         *float64     `json:"max,omitempty"`
	Step        *float64     `json:"step,omitempty"`
}

// OptionView is one resolved enum choice.
type OptionView struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

func schemaView(schema plugin.Schema, lang string) []FieldView {
	fields := make([]FieldView, 0, len(schema))
	for _, f := range schema {
		v := FieldView{
			Key:     f.Key,
			Kind:    f.Kind.String(),
			Label:   plugin.ResolveLabel(f.Label, lang, f.Key),
			Default: f.Default,
		}
		if f.Description.Text != "" || len(f.Description.Translations) > 0 {
			v.Description = plugin.ResolveLabel(f.Description, lang, "")
		}
		for _, o := range f.Options {
			v.Options = append(v.Options, OptionView{
				Value: o.Value,
				Label: plugin.ResolveLabel(o.Label, lang, o.Value),
			})
		}
		if f.Kind == plugin.KindNumber || f.Kind == plugin.KindRange {
			if f.Max > f.Min {
				v.Min, v.Max = ptr(f.Min), ptr(f.Max)
			}
			if f.Step > 0 {
				v.Step = ptr(f.Step)
			}
		}
		fields = append(fields, v)
	}
	return fields
}

func ptr(f float64) *float64 { return &f }
