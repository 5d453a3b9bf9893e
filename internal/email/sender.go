package email

import (
	"context"
	"errors"
)

// Sender define la interfaz para entregar alertas de mensajes directos.
type Sender interface {
	SendMessageAlert(ctx context.Context, toEmail, senderID, content string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendMessageAlert(_ context.Context, _, _, _ string) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
