// Command ctfd-keytool encrypts a ledger identity key for use with the
// identity.encrypted_key_path configuration setting. The daemon decrypts the
// file at boot with identity.key_password.
package main

import (
	"flag"
	"fmt"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/gogratta/pm-contracts/internal/crypto"
)

func main() {
	keyHex := flag.String("key", "", "hex-encoded private key (defaults to CTFD_PRIVATE_KEY)")
	generate := flag.Bool("generate", false, "generate a fresh key instead of encrypting an existing one")
	password := flag.String("password", "", "encryption password (defaults to CTFD_KEY_PASSWORD)")
	outPath := flag.String("out", "identity.key.json", "output path for the encrypted key file")
	flag.Parse()

	key := *keyHex
	if key == "" {
		key = os.Getenv("CTFD_PRIVATE_KEY")
	}
	pass := *password
	if pass == "" {
		pass = os.Getenv("CTFD_KEY_PASSWORD")
	}

	if *generate {
		if key != "" {
			fmt.Fprintln(os.Stderr, "keytool: -generate does not take a -key")
			os.Exit(1)
		}
		fresh, err := crypto.GenerateKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "keytool: %v\n", err)
			os.Exit(1)
		}
		key = fresh
	}

	if key == "" {
		fmt.Fprintln(os.Stderr, "keytool: no private key given (use -key, CTFD_PRIVATE_KEY, or -generate)")
		os.Exit(1)
	}
	if pass == "" {
		fmt.Fprintln(os.Stderr, "keytool: no password given (use -password or CTFD_KEY_PASSWORD)")
		os.Exit(1)
	}

	blob, err := crypto.EncryptKey(key, pass)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keytool: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*outPath, blob, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "keytool: write %s: %v\n", *outPath, err)
		os.Exit(1)
	}

	fmt.Printf("encrypted key written to %s\n", *outPath)
	if *generate {
		pk, err := ethcrypto.HexToECDSA(key)
		if err == nil {
			fmt.Printf("ledger identity address: %s\n", ethcrypto.PubkeyToAddress(pk.PublicKey).Hex())
		}
	}
}
