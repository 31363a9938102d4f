package port

import "context"

// EmailSender delivers one-time codes to a mailbox. A nil error means the code was handed to the
// transport; implementations without a transport log the code and always succeed.
type EmailSender interface {
	SendOTP(ctx context.Context, to, code, recipientName string) error
}
