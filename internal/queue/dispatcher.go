package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/VaibhavPrasad23/PayRs/internal/client"
	"github.com/VaibhavPrasad23/PayRs/internal/config"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

// smsOTPMessage is consumed by the SMS delivery worker.
type smsOTPMessage struct {
	PhoneNumber   string `json:"phoneNumber"`
	CountryPrefix string `json:"countryPrefix"`
	OTP           string `json:"otp"`
}

// emailOTPMessage is consumed by the email delivery worker.
type emailOTPMessage struct {
	EmailAddress string `json:"emailAddress"`
	OTP          string `json:"otp"`
}

// OTPDispatcher hands one-time codes off to the delivery workers over
// Kafka. Delivery is asynchronous; a publish failure surfaces to the
// caller so the request can be retried, but the code itself never
// touches a log line.
type OTPDispatcher struct {
	producer   *client.KafkaProducer
	smsTopic   string
	emailTopic string
}

func NewOTPDispatcher(producer *client.KafkaProducer, cfg *config.Config) *OTPDispatcher {
	return &OTPDispatcher{
		producer:   producer,
		smsTopic:   cfg.Kafka.SMSOTPTopic,
		emailTopic: cfg.Kafka.EmailOTPTopic,
	}
}

func (d *OTPDispatcher) SendSMSOTP(ctx context.Context, countryPrefix, phoneNumber, otp string) error {
	payload, err := json.Marshal(smsOTPMessage{
		PhoneNumber:   phoneNumber,
		CountryPrefix: countryPrefix,
		OTP:           otp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sms otp message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := d.producer.ProduceMessage(ctx, d.smsTopic, []byte(phoneNumber), payload, nil); err != nil {
		util.Error("Failed to publish SMS OTP", zap.String("topic", d.smsTopic), zap.Error(err))
		return fmt.Errorf("failed to publish sms otp: %w", err)
	}

	util.Debug("SMS OTP queued", zap.String("topic", d.smsTopic))
	return nil
}

func (d *OTPDispatcher) SendEmailOTP(ctx context.Context, emailAddress, otp string) error {
	payload, err := json.Marshal(emailOTPMessage{
		EmailAddress: emailAddress,
		OTP:          otp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email otp message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := d.producer.ProduceMessage(ctx, d.emailTopic, []byte(emailAddress), payload, nil); err != nil {
		util.Error("Failed to publish email OTP", zap.String("topic", d.emailTopic), zap.Error(err))
		return fmt.Errorf("failed to publish email otp: %w", err)
	}

	util.Debug("Email OTP queued", zap.String("topic", d.emailTopic))
	return nil
}
