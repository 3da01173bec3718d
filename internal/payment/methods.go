package payment

import (
	"fmt"

	"clubrun/internal/domain"
)

// Kind tags each payment method by settlement family.
type Kind string

const (
	KindCryptoNative Kind = "crypto_native"
	KindCryptoToken  Kind = "crypto_token"
	KindFiat         Kind = "fiat"
)

// The closed set of accepted methods. Validated at mission creation and
// again at approval; data that drifted in between must not reach a rail.
const (
	MethodMatic   = "matic"
	MethodUSDC    = "usdc"
	MethodCashApp = "cashapp"
	MethodZelle   = "zelle"
	MethodVenmo   = "venmo"
	MethodPaypal  = "paypal"
)

var methodKinds = map[string]Kind{
	MethodMatic:   KindCryptoNative,
	MethodUSDC:    KindCryptoToken,
	MethodCashApp: KindFiat,
	MethodZelle:   KindFiat,
	MethodVenmo:   KindFiat,
	MethodPaypal:  KindFiat,
}

// Methods returns the accepted method identifiers in a stable order.
func Methods() []string {
	return []string{MethodMatic, MethodUSDC, MethodCashApp, MethodZelle, MethodVenmo, MethodPaypal}
}

// ValidMethod reports whether the identifier is in the accepted set.
func ValidMethod(method string) bool {
	_, ok := methodKinds[method]
	return ok
}

// MethodKind returns the settlement family for a method.
func MethodKind(method string) (Kind, bool) {
	k, ok := methodKinds[method]
	return k, ok
}

// ResolveRecipient picks the runner's payout handle for a method. Crypto
// methods settle to the wallet address, fiat methods to the per-method
// handle on the profile.
func ResolveRecipient(p domain.RunnerProfile, method string) (string, error) {
	var handle *string
	switch method {
	case MethodMatic, MethodUSDC:
		handle = p.WalletAddress
	case MethodCashApp:
		handle = p.CashAppHandle
	case MethodZelle:
		handle = p.ZelleHandle
	case MethodVenmo:
		handle = p.VenmoHandle
	case MethodPaypal:
		handle = p.PaypalEmail
	default:
		return "", fmt.Errorf("unsupported payment method %s", method)
	}
	if handle == nil || *handle == "" {
		return "", fmt.Errorf("runner %s has no payout handle for %s", p.ActorID, method)
	}
	return *handle, nil
}
