package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const didPrefix = "did:reps:"

// HolderKeyFromWallet derives the opaque holder key from a wallet address
// using Keccak-256, the same digest wallets use for address derivation. The
// raw address never appears in stored records.
func HolderKeyFromWallet(walletAddress string) (string, error) {
	addr := strings.TrimSpace(strings.ToLower(walletAddress))
	addr = strings.TrimPrefix(addr, "0x")
	if addr == "" {
		return "", fmt.Errorf("wallet address is required")
	}

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(addr))
	sum := h.Sum(nil)

	// last 20 bytes, mirroring Ethereum address truncation
	return hex.EncodeToString(sum[12:]), nil
}

// DIDFromHolderKey formats the holder key as a DID URI.
func DIDFromHolderKey(holderKey string) string {
	return didPrefix + holderKey
}
