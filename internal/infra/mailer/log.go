package mailer

import (
	"context"

	"go.uber.org/zap"

	"github.com/dmflow/auth-service/internal/core/port"
	"github.com/dmflow/auth-service/internal/infra/logger"
)

// LogSender is used when no mail transport is configured. It writes the code to the log so
// flows can be completed locally, and always reports success.
type LogSender struct {
	logger    *zap.Logger
	maskCodes bool
}

var _ port.EmailSender = (*LogSender)(nil)

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{logger: log}
}

// WithMaskedCodes hides the code and the mailbox in log output. Production deployments without a
// mail transport use it so codes never reach log storage.
func (s *LogSender) WithMaskedCodes(mask bool) *LogSender {
	s.maskCodes = mask
	return s
}

func (s *LogSender) SendOTP(_ context.Context, to, code, recipientName string) error {
	if s.maskCodes {
		to = logger.MaskEmail(to)
		code = logger.MaskCode(code)
	}
	s.logger.Info("otp email (log transport)",
		zap.String("to", to),
		zap.String("name", recipientName),
		zap.String("otp", code),
	)
	return nil
}
