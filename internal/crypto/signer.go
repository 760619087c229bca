package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	authDomainName    = "ConditionalLedger"
	authDomainVersion = "1"
)

// Pre-computed keccak256 of the canonical EIP-712 type strings.
var (
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)
	ledgerAuthTypeHash = ethcrypto.Keccak256(
		[]byte("LedgerAuth(address account,uint256 timestamp,uint256 nonce)"),
	)
)

// word returns v as a 32-byte big-endian EIP-712 word.
func word(v int64) []byte {
	var w [32]byte
	big.NewInt(v).FillBytes(w[:])
	return w[:]
}

// domainSeparator hashes the EIP712Domain struct for this deployment.
func domainSeparator(chainID int) []byte {
	return ethcrypto.Keccak256(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte(authDomainName)),
		ethcrypto.Keccak256([]byte(authDomainVersion)),
		word(int64(chainID)),
	)
}

// authDigest computes keccak256("\x19\x01" || domainSep || structHash) for a
// LedgerAuth message.
func authDigest(domainSep []byte, account common.Address, timestamp, nonce int64) []byte {
	structHash := ethcrypto.Keccak256(
		ledgerAuthTypeHash,
		common.LeftPadBytes(account.Bytes(), 32),
		word(timestamp),
		word(nonce),
	)
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash)
}

// AuthDigest computes the EIP-712 digest of a LedgerAuth message.
func AuthDigest(chainID int, account common.Address, timestamp, nonce int64) []byte {
	return authDigest(domainSeparator(chainID), account, timestamp, nonce)
}

// Signer holds a secp256k1 identity and signs ledger auth messages with it.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domainSep  []byte
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the deployment's chain id. The chain id only partitions signature domains
// between environments; nothing is submitted to a chain.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		domainSep:  domainSeparator(chainID),
	}, nil
}

// Address returns the address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignAuthMessage signs a LedgerAuth message binding the signer's own
// address to a timestamp and nonce. The result is a hex-encoded 65-byte
// signature, v in {27,28}.
func (s *Signer) SignAuthMessage(timestamp, nonce int64) (string, error) {
	digest := authDigest(s.domainSep, s.address, timestamp, nonce)
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum produces v in {0,1}; wallets expect {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverAuthSigner returns the address that signed a LedgerAuth message.
// Login succeeds when the recovered address equals the claimed account.
func RecoverAuthSigner(chainID int, account common.Address, timestamp, nonce int64, signatureHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: expected 65-byte signature, got %d bytes", len(sig))
	}

	// Accept both v forms: {27,28} from wallets, {0,1} from go-ethereum.
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	digest := AuthDigest(chainID, account, timestamp, nonce)
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recovering signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
