package handler

import (
	"casegate/internal/intake/models"
	dErrors "casegate/pkg/domain-errors"
)

// VerificationResponse is the payload of an outbound "verification" frame.
type VerificationResponse struct {
	Data string `json:"data"`
	New  string `json:"new"`
}

func FromOutcome(o *models.Outcome) VerificationResponse {
	return VerificationResponse{Data: o.Fingerprint, New: string(o.Tag)}
}

type errorEnvelope struct {
	Error frameError `json:"error"`
}

type frameError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// toFrameError marks store outages as retryable by the client.
func toFrameError(err error) errorEnvelope {
	code := dErrors.CodeOf(err)
	return errorEnvelope{Error: frameError{
		Code:      string(code),
		Message:   dErrors.MessageOf(err),
		Retryable: code == dErrors.CodeUnavailable || code == dErrors.CodeTimeout,
	}}
}
