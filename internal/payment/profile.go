package payment

import (
	"fmt"
	"strings"

	"clubrun/internal/domain"
)

// ProfileError reports an unusable payout handle on a runner profile.
type ProfileError struct {
	Field  string
	Reason string
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("payout profile %s: %s", e.Field, e.Reason)
}

// ValidateProfile sanity-checks whatever handles are set. Unset handles are
// fine; a method with no handle fails later at settlement resolution.
func ValidateProfile(p domain.RunnerProfile) error {
	if p.WalletAddress != nil && *p.WalletAddress != "" {
		addr := *p.WalletAddress
		if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
			return &ProfileError{Field: "wallet_address", Reason: "expected a 0x-prefixed 20-byte hex address"}
		}
	}
	if p.CashAppHandle != nil && *p.CashAppHandle != "" && !strings.HasPrefix(*p.CashAppHandle, "$") {
		return &ProfileError{Field: "cashapp_handle", Reason: "cashtags start with $"}
	}
	if p.PaypalEmail != nil && *p.PaypalEmail != "" && !strings.Contains(*p.PaypalEmail, "@") {
		return &ProfileError{Field: "paypal_email", Reason: "not an email address"}
	}
	return nil
}
