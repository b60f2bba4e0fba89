package ledger

import (
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
)

type Signer struct {
	Name string
	Key  solana.PrivateKey
}

// SignerRegistry holds the named signing accounts available for
// state-changing submissions. Selection is explicit: every submission
// resolves a name (or the configured default), and an empty registry or an
// unknown name is a hard error rather than a silent fallback.
type SignerRegistry struct {
	signers     map[string]solana.PrivateKey
	defaultName string
}

// NewSignerRegistry parses base58-encoded private keys. An empty keys map is
// allowed; Resolve then fails with ErrNoSigningAccount.
func NewSignerRegistry(keys map[string]string, defaultName string) (*SignerRegistry, error) {
	signers := make(map[string]solana.PrivateKey, len(keys))
	for name, encoded := range keys {
		key, err := solana.PrivateKeyFromBase58(encoded)
		if err != nil {
			return nil, fmt.Errorf("signer %q: invalid private key: %w", name, err)
		}
		signers[name] = key
	}
	return &SignerRegistry{signers: signers, defaultName: defaultName}, nil
}

// Resolve returns the signer for name, or the default signer when name is
// empty.
func (r *SignerRegistry) Resolve(name string) (Signer, error) {
	if name == "" {
		name = r.defaultName
	}
	key, ok := r.signers[name]
	if !ok {
		return Signer{}, fmt.Errorf("signer %q: %w", name, ErrNoSigningAccount)
	}
	return Signer{Name: name, Key: key}, nil
}

// Names lists the configured signer names, sorted, for startup logging.
func (r *SignerRegistry) Names() []string {
	names := make([]string, 0, len(r.signers))
	for name := range r.signers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
