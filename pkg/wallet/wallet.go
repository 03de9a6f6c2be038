package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
)

var (
	ErrNoAccounts     = errors.New("wallet has no accounts")
	ErrUnknownAccount = errors.New("account not managed by this wallet")
)

// Provider is the wallet capability: list accounts, report account
// changes and sign transactions.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	SubscribeAccounts(sink chan<- []common.Address) event.Subscription
	SignTx(account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Open picks a provider from the configured secrets. A private key wins
// over a keystore. It returns nil when neither is configured.
func Open(keystoreDir, privateKey, passphrase string) (Provider, error) {
	if strings.TrimSpace(privateKey) != "" {
		p, err := NewKeyProvider(privateKey)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	if strings.TrimSpace(keystoreDir) != "" {
		return NewKeystoreProvider(keystoreDir, passphrase, keystore.StandardScryptN, keystore.StandardScryptP), nil
	}
	return nil, nil
}

// KeyProvider holds a single raw private key.
type KeyProvider struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewKeyProvider(hexKey string) (*KeyProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &KeyProvider{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{p.address}, nil
}

// SubscribeAccounts never delivers; a raw key cannot change.
func (p *KeyProvider) SubscribeAccounts(sink chan<- []common.Address) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	})
}

func (p *KeyProvider) SignTx(account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if account != p.address {
		return nil, ErrUnknownAccount
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
}

// KeystoreProvider signs with encrypted key files from a directory.
// Adding or removing key files is reported as an account change.
type KeystoreProvider struct {
	ks         *keystore.KeyStore
	passphrase string
}

func NewKeystoreProvider(dir, passphrase string, scryptN, scryptP int) *KeystoreProvider {
	return &KeystoreProvider{
		ks:         keystore.NewKeyStore(dir, scryptN, scryptP),
		passphrase: passphrase,
	}
}

// RequestAccounts lists the keystore accounts. It fails when the store is
// empty or the passphrase does not open the first account.
func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	accs := p.ks.Accounts()
	if len(accs) == 0 {
		return nil, ErrNoAccounts
	}
	if err := p.ks.Unlock(accs[0], p.passphrase); err != nil {
		return nil, fmt.Errorf("account access rejected: %w", err)
	}
	_ = p.ks.Lock(accs[0].Address)
	return addresses(accs), nil
}

func (p *KeystoreProvider) SubscribeAccounts(sink chan<- []common.Address) event.Subscription {
	events := make(chan accounts.WalletEvent, 8)
	ksSub := p.ks.Subscribe(events)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer ksSub.Unsubscribe()
		for {
			select {
			case <-events:
				select {
				case sink <- addresses(p.ks.Accounts()):
				case <-quit:
					return nil
				}
			case err := <-ksSub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	})
}

func (p *KeystoreProvider) SignTx(account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return p.ks.SignTxWithPassphrase(accounts.Account{Address: account}, p.passphrase, tx, chainID)
}

// Keystore exposes the underlying store, mainly for importing keys.
func (p *KeystoreProvider) Keystore() *keystore.KeyStore {
	return p.ks
}

func addresses(accs []accounts.Account) []common.Address {
	out := make([]common.Address, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.Address)
	}
	return out
}
