package telephony

import (
	"strings"

	twclient "github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the webhook request signature.
const SignatureHeader = "X-Twilio-Signature"

// SignatureValidator checks webhook signatures against the account auth token.
type SignatureValidator struct {
	validator twclient.RequestValidator
}

// NewSignatureValidator returns a validator for authToken.
func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{validator: twclient.NewRequestValidator(authToken)}
}

// Valid reports whether signature matches the absolute request URL and its form parameters.
func (v *SignatureValidator) Valid(fullURL string, params map[string]string, signature string) bool {
	if strings.TrimSpace(signature) == "" {
		return false
	}
	return v.validator.Validate(fullURL, params, signature)
}
