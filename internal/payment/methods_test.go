package payment_test

import (
	"testing"

	"clubrun/internal/domain"
	"clubrun/internal/payment"
)

func strPtr(s string) *string { return &s }

func TestValidMethod(t *testing.T) {
	for _, m := range payment.Methods() {
		if !payment.ValidMethod(m) {
			t.Fatalf("%s not valid", m)
		}
	}
	for _, m := range []string{"", "wire", "MATIC", "cash_app"} {
		if payment.ValidMethod(m) {
			t.Fatalf("%q accepted", m)
		}
	}
}

func TestResolveRecipient(t *testing.T) {
	p := domain.RunnerProfile{
		ActorID:       "dj-1",
		WalletAddress: strPtr("0x00112233445566778899aabbccddeeff00112233"),
		CashAppHandle: strPtr("$dj1"),
		ZelleHandle:   strPtr("dj1@bank.example"),
		VenmoHandle:   strPtr("@dj-one"),
		PaypalEmail:   strPtr("dj1@mail.example"),
	}
	cases := map[string]string{
		payment.MethodMatic:   "0x00112233445566778899aabbccddeeff00112233",
		payment.MethodUSDC:    "0x00112233445566778899aabbccddeeff00112233",
		payment.MethodCashApp: "$dj1",
		payment.MethodZelle:   "dj1@bank.example",
		payment.MethodVenmo:   "@dj-one",
		payment.MethodPaypal:  "dj1@mail.example",
	}
	for method, want := range cases {
		got, err := payment.ResolveRecipient(p, method)
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		if got != want {
			t.Fatalf("%s: got %s want %s", method, got, want)
		}
	}
}

func TestResolveRecipientMissingHandle(t *testing.T) {
	p := domain.RunnerProfile{ActorID: "dj-2", CashAppHandle: strPtr("$dj2")}
	if _, err := payment.ResolveRecipient(p, payment.MethodMatic); err == nil {
		t.Fatalf("crypto payout without wallet succeeded")
	}
	if _, err := payment.ResolveRecipient(p, payment.MethodVenmo); err == nil {
		t.Fatalf("venmo payout without handle succeeded")
	}
	if _, err := payment.ResolveRecipient(p, payment.MethodCashApp); err != nil {
		t.Fatalf("cashapp payout with handle failed: %v", err)
	}
}

func TestValidateProfile(t *testing.T) {
	bad := []domain.RunnerProfile{
		{ActorID: "a", WalletAddress: strPtr("abc123")},
		{ActorID: "a", WalletAddress: strPtr("0x1234")},
		{ActorID: "a", CashAppHandle: strPtr("nosigil")},
		{ActorID: "a", PaypalEmail: strPtr("not-an-email")},
	}
	for i, p := range bad {
		if err := payment.ValidateProfile(p); err == nil {
			t.Fatalf("case %d accepted", i)
		}
	}
	ok := domain.RunnerProfile{
		ActorID:       "a",
		WalletAddress: strPtr("0x00112233445566778899aabbccddeeff00112233"),
		CashAppHandle: strPtr("$a"),
	}
	if err := payment.ValidateProfile(ok); err != nil {
		t.Fatalf("valid profile rejected: %v", err)
	}
}

func TestMethodKind(t *testing.T) {
	if k, _ := payment.MethodKind(payment.MethodMatic); k != payment.KindCryptoNative {
		t.Fatalf("matic kind = %s", k)
	}
	if k, _ := payment.MethodKind(payment.MethodUSDC); k != payment.KindCryptoToken {
		t.Fatalf("usdc kind = %s", k)
	}
	for _, m := range []string{payment.MethodCashApp, payment.MethodZelle, payment.MethodVenmo, payment.MethodPaypal} {
		if k, _ := payment.MethodKind(m); k != payment.KindFiat {
			t.Fatalf("%s kind = %s", m, k)
		}
	}
	if _, ok := payment.MethodKind("wire"); ok {
		t.Fatalf("unknown method has a kind")
	}
}
