// Package render строит текст сообщения для конкретного получателя.
//
// Текст задачи (или тело шаблона) — Go template, данными служит контакт:
//
//	Привет, {{ default "друг" .Name }}!
//	{{ .Metadata.city }}
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/shaiso/Courier/internal/domain"
)

var (
	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse error")

	// ErrTemplateRender — ошибка выполнения шаблона.
	ErrTemplateRender = errors.New("template render error")

	// ErrEmptyMessage — после рендеринга текст пустой.
	ErrEmptyMessage = errors.New("rendered message is empty")
)

// Data — данные, доступные в шаблоне.
type Data struct {
	// Name — имя получателя (может быть пустым).
	Name string

	// JID — адрес получателя.
	JID string

	// Metadata — произвольные поля контакта.
	Metadata map[string]any

	// AccountID — аккаунт-отправитель.
	AccountID string
}

// NewData собирает данные шаблона из контакта.
func NewData(contact *domain.Contact, accountID string) Data {
	meta := contact.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return Data{
		Name:      contact.Name,
		JID:       contact.JID,
		Metadata:  meta,
		AccountID: accountID,
	}
}

var funcs = template.FuncMap{
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — значение по умолчанию для пустого аргумента
	"default": func(def, val any) any {
		if isEmpty(val) {
			return def
		}
		return val
	},

	// coalesce — первое непустое значение
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if !isEmpty(v) {
				return v
			}
		}
		return nil
	},

	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,
	"title": func(s string) string {
		if s == "" {
			return s
		}
		r := []rune(s)
		return strings.ToUpper(string(r[0])) + string(r[1:])
	},
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// Render рендерит текст с данными.
// Текст без "{{" возвращается как есть.
func Render(text string, data Data) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	t, err := template.New("message").Funcs(funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// Message рендерит текст для контакта и проверяет, что он не пустой.
func Message(text string, contact *domain.Contact, accountID string) (string, error) {
	out, err := Render(text, NewData(contact, accountID))
	if err != nil {
		return "", err
	}
	// <no value> появляется для отсутствующих ключей Metadata
	out = strings.ReplaceAll(out, "<no value>", "")
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyMessage
	}
	return out, nil
}

// Validate проверяет, что текст парсится как шаблон.
func Validate(text string) error {
	if !strings.Contains(text, "{{") {
		return nil
	}
	if _, err := template.New("message").Funcs(funcs).Parse(text); err != nil {
		return fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}
	return nil
}
