package aster

import (
	"strings"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	s, err := NewSigner(addr, addr, ethcommon.Bytes2Hex(crypto.FromECDSA(key)))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSignerRejectsMismatchedKey(t *testing.T) {
	keyA, _ := crypto.GenerateKey()
	keyB, _ := crypto.GenerateKey()
	addrA := crypto.PubkeyToAddress(keyA.PublicKey).Hex()

	if _, err := NewSigner(addrA, addrA, ethcommon.Bytes2Hex(crypto.FromECDSA(keyB))); err == nil {
		t.Fatal("expected error for key not matching signer address")
	}
	if _, err := NewSigner("nonsense", addrA, ethcommon.Bytes2Hex(crypto.FromECDSA(keyA))); err == nil {
		t.Fatal("expected error for invalid user address")
	}
}

func TestSignDeterministicForFixedInputs(t *testing.T) {
	s := newTestSigner(t)
	params := map[string]string{"symbol": "BTCUSDT", "side": "BUY"}
	now := time.UnixMilli(1700000000000)

	a, err := s.Sign(params, now, 42)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Sign(params, now, 42)
	if err != nil {
		t.Fatal(err)
	}
	if a["signature"] != b["signature"] {
		t.Error("same inputs produced different signatures")
	}
	if !strings.HasPrefix(a["signature"], "0x") || len(a["signature"]) != 2+65*2 {
		t.Errorf("signature format: %q", a["signature"])
	}
}

func TestSignSensitiveToParamsAndNonce(t *testing.T) {
	s := newTestSigner(t)
	now := time.UnixMilli(1700000000000)
	base, err := s.Sign(map[string]string{"symbol": "BTCUSDT"}, now, 1)
	if err != nil {
		t.Fatal(err)
	}

	changedParam, err := s.Sign(map[string]string{"symbol": "ETHUSDT"}, now, 1)
	if err != nil {
		t.Fatal(err)
	}
	if base["signature"] == changedParam["signature"] {
		t.Error("signature did not change with params")
	}

	changedNonce, err := s.Sign(map[string]string{"symbol": "BTCUSDT"}, now, 2)
	if err != nil {
		t.Fatal(err)
	}
	if base["signature"] == changedNonce["signature"] {
		t.Error("signature did not change with nonce")
	}
}

func TestSignAttachesAuthFields(t *testing.T) {
	s := newTestSigner(t)
	params := map[string]string{"symbol": "BTCUSDT"}
	got, err := s.Sign(params, time.UnixMilli(1700000000000), 99)
	if err != nil {
		t.Fatal(err)
	}

	if got["nonce"] != "99" {
		t.Errorf("nonce = %q, want 99", got["nonce"])
	}
	if got["recvWindow"] != recvWindow {
		t.Errorf("recvWindow = %q", got["recvWindow"])
	}
	if got["timestamp"] != "1700000000000" {
		t.Errorf("timestamp = %q", got["timestamp"])
	}
	if got["user"] != s.User() || got["signer"] != s.User() {
		t.Error("user/signer addresses missing")
	}
	// The input map must stay untouched.
	if len(params) != 1 {
		t.Errorf("input params mutated: %v", params)
	}
}

func TestNonceStrictlyIncreasing(t *testing.T) {
	s := newTestSigner(t)
	prev := s.Nonce()
	for i := 0; i < 10000; i++ {
		n := s.Nonce()
		if n <= prev {
			t.Fatalf("nonce %d not greater than previous %d", n, prev)
		}
		prev = n
	}
}

func TestNonceStrictlyIncreasingConcurrent(t *testing.T) {
	s := newTestSigner(t)
	const workers, perWorker = 8, 1000
	out := make(chan int64, workers*perWorker)
	done := make(chan struct{})
	for w := 0; w < workers; w++ {
		go func() {
			for i := 0; i < perWorker; i++ {
				out <- s.Nonce()
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < workers; w++ {
		<-done
	}
	close(out)

	seen := make(map[int64]bool, workers*perWorker)
	for n := range out {
		if seen[n] {
			t.Fatalf("nonce %d issued twice", n)
		}
		seen[n] = true
	}
}
