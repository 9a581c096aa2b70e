package mq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
)

func TestParsePayload_SendRequested(t *testing.T) {
	taskID := uuid.New()
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeSendRequested,
		Payload:   SendRequestedPayload{TaskID: taskID, AccountID: "acc-1"},
		Timestamp: time.Now(),
	}

	// Сообщение проходит через JSON, как при доставке из очереди.
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var delivered Message
	if err := json.Unmarshal(body, &delivered); err != nil {
		t.Fatal(err)
	}

	payload, err := ParsePayload[SendRequestedPayload](&delivered)
	if err != nil {
		t.Fatalf("ParsePayload() error: %v", err)
	}
	if payload.TaskID != taskID || payload.AccountID != "acc-1" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestNewSendCompleted(t *testing.T) {
	bulkID := uuid.New()
	task := domain.NewSendTask("acc-1", "hello", nil)
	task.BulkID = &bulkID
	task.Reject(domain.ReasonQuotaExceeded, "daily quota exceeded", time.Now())

	p := NewSendCompleted(task)
	if p.TaskID != task.ID || p.AccountID != "acc-1" {
		t.Errorf("unexpected ids: %+v", p)
	}
	if p.BulkID == nil || *p.BulkID != bulkID {
		t.Error("expected bulk id")
	}
	if p.State != "REJECTED" || p.Reason != "QUOTA_EXCEEDED" {
		t.Errorf("unexpected outcome: %s/%s", p.State, p.Reason)
	}
}
