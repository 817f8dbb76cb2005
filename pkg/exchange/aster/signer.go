package aster

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// recvWindow is sent with every signed request, in milliseconds.
const recvWindow = "50000"

var signArgs abi.Arguments

func init() {
	stringT, _ := abi.NewType("string", "", nil)
	addressT, _ := abi.NewType("address", "", nil)
	uint256T, _ := abi.NewType("uint256", "", nil)
	signArgs = abi.Arguments{
		{Type: stringT},
		{Type: addressT},
		{Type: addressT},
		{Type: uint256T},
	}
}

// Signer produces the EIP-191 request signatures the venue requires.
// The scheme: the request params (plus recvWindow and timestamp) are
// serialized to compact JSON with sorted keys, ABI-encoded together with
// the account addresses and a nonce, keccak-hashed, prefixed per EIP-191
// and signed with the agent's secp256k1 key.
type Signer struct {
	user      ethcommon.Address
	signer    ethcommon.Address
	key       *ecdsa.PrivateKey
	lastNonce atomic.Int64
}

// NewSigner validates the addresses and private key. The key must belong
// to signerAddr; a mismatch would produce signatures the venue rejects
// on every request, so it is refused up front.
func NewSigner(userAddr, signerAddr, privateKeyHex string) (*Signer, error) {
	if !ethcommon.IsHexAddress(userAddr) {
		return nil, fmt.Errorf("invalid user address %q", userAddr)
	}
	if !ethcommon.IsHexAddress(signerAddr) {
		return nil, fmt.Errorf("invalid signer address %q", signerAddr)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	s := &Signer{
		user:   ethcommon.HexToAddress(userAddr),
		signer: ethcommon.HexToAddress(signerAddr),
		key:    key,
	}
	if derived := crypto.PubkeyToAddress(key.PublicKey); derived != s.signer {
		return nil, fmt.Errorf("private key belongs to %s, not signer address %s", derived.Hex(), s.signer.Hex())
	}
	return s, nil
}

// User returns the account address requests are signed for.
func (s *Signer) User() string { return s.user.Hex() }

// Nonce returns the next request nonce: the current time in microseconds,
// bumped past the previous nonce if the clock has not advanced. The venue
// rejects any nonce at or below the last accepted one, so each attempt,
// including retries, must draw a fresh value.
func (s *Signer) Nonce() int64 {
	for {
		last := s.lastNonce.Load()
		next := time.Now().UnixMicro()
		if next <= last {
			next = last + 1
		}
		if s.lastNonce.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Sign returns a copy of params extended with recvWindow, timestamp and
// the signature fields, ready to be form- or query-encoded. The params
// map is not modified.
func (s *Signer) Sign(params map[string]string, now time.Time, nonce int64) (map[string]string, error) {
	signed := make(map[string]string, len(params)+6)
	for k, v := range params {
		signed[k] = v
	}
	signed["recvWindow"] = recvWindow
	signed["timestamp"] = strconv.FormatInt(now.UnixMilli(), 10)

	// Compact JSON with lexicographically sorted keys, which is exactly
	// what encoding/json produces for a string map.
	payload, err := json.Marshal(signed)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	packed, err := signArgs.Pack(string(payload), s.user, s.signer, new(big.Int).SetInt64(nonce))
	if err != nil {
		return nil, fmt.Errorf("abi pack: %w", err)
	}

	digest := accounts.TextHash(crypto.Keccak256(packed))
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	sig[64] += 27

	signed["nonce"] = strconv.FormatInt(nonce, 10)
	signed["user"] = s.user.Hex()
	signed["signer"] = s.signer.Hex()
	signed["signature"] = "0x" + ethcommon.Bytes2Hex(sig)
	return signed, nil
}
