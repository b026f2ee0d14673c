// Package scanlog carries the audit trail of card scans from the API to the worker.
package scanlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rfidattendance/internal/queue"
)

// MessageType tags scan events on the shared queue.
const MessageType = "scan"

// ScanEvent is one ingestion attempt.
type ScanEvent struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Known     bool      `json:"known"`
	Date      string    `json:"date,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	TeacherID string    `json:"teacherId,omitempty"`
	Outcome   string    `json:"outcome"`
	At        time.Time `json:"at"`
}

// Publisher enqueues scan events. A nil queue drops them.
type Publisher struct {
	q queue.Queue
}

func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// Publish fills ID and At when missing and enqueues the event.
func (p *Publisher) Publish(ctx context.Context, evt ScanEvent) error {
	if p == nil || p.q == nil {
		return nil
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, queue.Message{Type: MessageType, Body: body})
}

// Decode unpacks a queue message published by Publisher.
func Decode(msg queue.Message) (ScanEvent, error) {
	if msg.Type != MessageType {
		return ScanEvent{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var evt ScanEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return ScanEvent{}, fmt.Errorf("decode scan event: %w", err)
	}
	return evt, nil
}
