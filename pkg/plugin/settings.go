package plugin

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Settings is a plugin's settings record: setting key to value.
type Settings map[string]any

// Clone returns a shallow copy.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns a copy of s with every key of partial applied on top.
// Keys absent from partial are kept.
func (s Settings) Merge(partial Settings) Settings {
	out := s.Clone()
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// FieldKind is the discriminant of a settings field.
type FieldKind int

const (
	KindBoolean FieldKind = iota
	KindNumber
	KindString
	KindEnum
	KindColor
	KindRange
	KindTextarea
)

func (k FieldKind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	case KindColor:
		return "color"
	case KindRange:
		return "range"
	case KindTextarea:
		return "textarea"
	default:
		return "unknown"
	}
}

// MarshalText lets the kind appear by name in JSON.
func (k FieldKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Label is display text that is either plain or translated per language code.
type Label struct {
	Text         string
	Translations map[string]string
}

// Text returns a plain label.
func Text(s string) Label {
	return Label{Text: s}
}

// Translated returns a per-language label, keyed by language code.
func Translated(m map[string]string) Label {
	return Label{Translations: m}
}

// Option is one choice of an enum field.
type Option struct {
	Value string `json:"value"`
	Label Label  `json:"-"`
}

// SettingField describes one setting. Min, Max and Step apply to number and
// range fields; Max <= Min means unbounded.
type SettingField struct {
	Key         string
	Kind        FieldKind
	Label       Label
	Description Label
	Default     any
	Options     []Option
	Min         float64
	Max         float64
	Step        float64
}

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// Check reports whether v is an acceptable value for the field.
func (f SettingField) Check(v any) error {
	switch f.Kind {
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("setting %s: expected boolean, got %T", f.Key, v)
		}
	case KindString, KindTextarea:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("setting %s: expected string, got %T", f.Key, v)
		}
	case KindColor:
		s, ok := v.(string)
		if !ok || !colorPattern.MatchString(s) {
			return fmt.Errorf("setting %s: expected hex color, got %v", f.Key, v)
		}
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("setting %s: expected string option, got %T", f.Key, v)
		}
		for _, o := range f.Options {
			if o.Value == s {
				return nil
			}
		}
		return fmt.Errorf("setting %s: %q is not an option", f.Key, s)
	case KindNumber, KindRange:
		n, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("setting %s: expected number, got %T", f.Key, v)
		}
		if f.Max > f.Min && (n < f.Min || n > f.Max) {
			return fmt.Errorf("setting %s: %v outside [%v, %v]", f.Key, n, f.Min, f.Max)
		}
	default:
		return fmt.Errorf("setting %s: unknown kind %d", f.Key, f.Kind)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Schema is the ordered list of a plugin's settings.
type Schema []SettingField

// Validate checks keys are unique and every default fits its field.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, f := range s {
		if f.Key == "" {
			return fmt.Errorf("setting key cannot be empty")
		}
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("duplicate setting %s", f.Key)
		}
		seen[f.Key] = struct{}{}
		if err := f.Check(f.Default); err != nil {
			return fmt.Errorf("invalid default: %w", err)
		}
	}
	return nil
}

// Field looks up a field by key.
func (s Schema) Field(key string) (SettingField, bool) {
	for _, f := range s {
		if f.Key == key {
			return f, true
		}
	}
	return SettingField{}, false
}

// Defaults returns the default settings record.
func (s Schema) Defaults() Settings {
	out := make(Settings, len(s))
	for _, f := range s {
		out[f.Key] = f.Default
	}
	return out
}

// Normalize returns the entries of in that fit the schema. Values that fail
// their field's check are dropped so the default shows through; keys the
// schema does not declare are kept as-is.
func (s Schema) Normalize(in Settings) (Settings, []error) {
	out := make(Settings, len(in))
	var errs []error
	for k, v := range in {
		f, ok := s.Field(k)
		if !ok {
			out[k] = v
			continue
		}
		if err := f.Check(v); err != nil {
			errs = append(errs, err)
			continue
		}
		out[k] = v
	}
	return out, errs
}

// ResolveLabel picks the display text for a settings label: the plain text,
// else the translation for lang, else English, else key formatted as words
// ("wordsPerMinute" becomes "Words Per Minute").
func ResolveLabel(l Label, lang, key string) string {
	if l.Text != "" {
		return l.Text
	}
	if t, ok := l.Translations[lang]; ok && t != "" {
		return t
	}
	if base, _, found := strings.Cut(lang, "-"); found {
		if t, ok := l.Translations[base]; ok && t != "" {
			return t
		}
	}
	if t, ok := l.Translations["en"]; ok && t != "" {
		return t
	}
	return FormatKey(key)
}

// FormatKey turns a camelCase, snake_case or kebab-case key into title-cased
// words.
func FormatKey(key string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range key {
		switch {
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(' ')
			prevLower = false
			continue
		case unicode.IsUpper(r) && prevLower:
			b.WriteRune(' ')
		}
		b.WriteRune(r)
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	words := strings.Fields(b.String())
	return cases.Title(language.English).String(strings.Join(words, " "))
}
