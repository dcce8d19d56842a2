package router

import (
	"regexp"
	"strings"

	"github.com/shorelinehq/courier/internal/models"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{7,14}$`)
)

func validate(in Input) (models.Channel, error) {
	channel := models.Channel(in.Channel)
	if !channel.IsValid() {
		return "", &ValidationError{Field: "channel", Reason: "must be one of email, sms, whatsapp"}
	}
	if strings.TrimSpace(in.Recipient) == "" {
		return "", &ValidationError{Field: "recipient", Reason: "must not be empty"}
	}
	if strings.TrimSpace(in.Body) == "" {
		return "", &ValidationError{Field: "body", Reason: "must not be empty"}
	}

	switch channel {
	case models.ChannelEmail:
		if strings.TrimSpace(in.Subject) == "" {
			return "", &ValidationError{Field: "subject", Reason: "required for email messages"}
		}
		if !emailPattern.MatchString(in.Recipient) {
			return "", &ValidationError{Field: "recipient", Reason: "not a valid email address"}
		}
	case models.ChannelSMS, models.ChannelWhatsApp:
		if !phonePattern.MatchString(in.Recipient) {
			return "", &ValidationError{Field: "recipient", Reason: "not a valid phone number"}
		}
	}
	return channel, nil
}
