package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// Contact — потенциальный получатель сообщения.
//
// Уникальность обеспечивается по JID. Контакт в статусе contacted
// больше никогда не выбирается selector'ом.
type Contact struct {
	// ID — уникальный идентификатор контакта (см. ContactID).
	ID string `json:"contact_id"`

	// Name — отображаемое имя.
	Name string `json:"name,omitempty"`

	// JID — адрес в мессенджере. Может быть пустым для контактов,
	// импортированных только по имени.
	JID string `json:"jid,omitempty"`

	// Status — статус контакта.
	Status ContactStatus `json:"status"`

	// LastContactedAt — время последней попытки отправки.
	LastContactedAt *time.Time `json:"last_contacted_at,omitempty"`

	// Metadata — произвольные данные (источник, аккаунт, через который найден, ...).
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt — время добавления контакта.
	CreatedAt time.Time `json:"created_at"`
}

// ContactID возвращает идентификатор контакта: сам jid, если он известен,
// иначе "namehash_" + первые 16 символов sha1 от имени.
func ContactID(jid, name string) string {
	jid = strings.TrimSpace(jid)
	if jid != "" {
		return jid
	}
	sum := sha1.Sum([]byte(strings.TrimSpace(name)))
	return "namehash_" + hex.EncodeToString(sum[:])[:16]
}

// NewContact создаёт контакт в статусе new.
func NewContact(jid, name string) *Contact {
	jid = strings.TrimSpace(jid)
	return &Contact{
		ID:        ContactID(jid, name),
		Name:      strings.TrimSpace(name),
		JID:       jid,
		Status:    ContactStatusNew,
		CreatedAt: time.Now(),
	}
}

// IsAvailable возвращает true, если контакту ещё можно писать.
func (c *Contact) IsAvailable() bool {
	return c.Status == ContactStatusNew
}

// MarkContacted переводит контакт в contacted.
// Возвращает false, если контакт уже не в статусе new.
func (c *Contact) MarkContacted(now time.Time) bool {
	if c.Status != ContactStatusNew {
		return false
	}
	c.Status = ContactStatusContacted
	c.LastContactedAt = &now
	return true
}
