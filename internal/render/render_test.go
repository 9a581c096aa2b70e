package render

import (
	"errors"
	"testing"

	"github.com/shaiso/Courier/internal/domain"
)

func TestMessage(t *testing.T) {
	contact := &domain.Contact{
		ID:       "79990001122@c.us",
		JID:      "79990001122@c.us",
		Name:     "Анна",
		Metadata: map[string]any{"city": "Казань"},
	}
	anonymous := &domain.Contact{ID: "x@c.us", JID: "x@c.us"}

	tests := []struct {
		name     string
		text     string
		contact  *domain.Contact
		expected string
	}{
		{
			name:     "plain text",
			text:     "Hello!",
			contact:  contact,
			expected: "Hello!",
		},
		{
			name:     "name",
			text:     "Привет, {{ .Name }}!",
			contact:  contact,
			expected: "Привет, Анна!",
		},
		{
			name:     "default for empty name",
			text:     `Привет, {{ default "друг" .Name }}!`,
			contact:  anonymous,
			expected: "Привет, друг!",
		},
		{
			name:     "metadata",
			text:     "Как погода в {{ .Metadata.city }}?",
			contact:  contact,
			expected: "Как погода в Казань?",
		},
		{
			name:     "missing metadata key",
			text:     "Hi{{ .Metadata.city }}",
			contact:  anonymous,
			expected: "Hi",
		},
		{
			name:     "coalesce",
			text:     `{{ coalesce .Name .JID }}`,
			contact:  anonymous,
			expected: "x@c.us",
		},
		{
			name:     "account",
			text:     "from {{ .AccountID }}",
			contact:  contact,
			expected: "from acc-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Message(tt.text, tt.contact, "acc-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestMessage_Errors(t *testing.T) {
	contact := &domain.Contact{ID: "x@c.us", JID: "x@c.us"}

	tests := []struct {
		name string
		text string
		want error
	}{
		{"parse error", "Hi {{ .Name ", ErrTemplateParse},
		{"render error", "{{ .Name.Missing }}", ErrTemplateRender},
		{"empty after render", "{{ .Name }}", ErrEmptyMessage},
		{"blank text", "   ", ErrEmptyMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Message(tt.text, contact, "acc-1")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("Hello {{ .Name }}"); err != nil {
		t.Errorf("valid template: %v", err)
	}
	if err := Validate("no template"); err != nil {
		t.Errorf("plain text: %v", err)
	}
	if err := Validate("{{ if }}"); !errors.Is(err, ErrTemplateParse) {
		t.Errorf("expected ErrTemplateParse, got %v", err)
	}
}
