// Package wallet holds the wallet session: the active account, the chain it
// is connected to, and the signing capability. Account and chain changes are
// pushed to subscribers so in-flight quotes and plans can be invalidated.
package wallet

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ChangeKind distinguishes session change events
type ChangeKind int

const (
	// AccountChanged fires when the active account switches
	AccountChanged ChangeKind = iota
	// ChainChanged fires when the connected chain switches
	ChainChanged
)

func (k ChangeKind) String() string {
	switch k {
	case AccountChanged:
		return "account-changed"
	case ChainChanged:
		return "chain-changed"
	default:
		return "unknown"
	}
}

// ChangeEvent describes an account or chain switch
type ChangeEvent struct {
	Kind    ChangeKind
	Account common.Address
	ChainID *big.Int
}

// Session is the wallet connection state passed explicitly to core
// operations. One session, one logical actor.
type Session struct {
	mu          sync.RWMutex
	account     common.Address
	chainID     *big.Int
	signer      Signer
	subscribers []chan ChangeEvent
}

// NewSession creates a session for the given signer and chain
func NewSession(signer Signer, chainID *big.Int) *Session {
	return &Session{
		account: signer.Address(),
		chainID: new(big.Int).Set(chainID),
		signer:  signer,
	}
}

// Account returns the active account address
func (s *Session) Account() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// ChainID returns the connected chain id
func (s *Session) ChainID() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.chainID)
}

// Signer returns the session's signing capability
func (s *Session) Signer() Signer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signer
}

// Subscribe returns a channel of change events. The channel is buffered;
// events are dropped for slow consumers rather than blocking the session.
func (s *Session) Subscribe() <-chan ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan ChangeEvent, 8)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// SetAccount switches the active account and notifies subscribers
func (s *Session) SetAccount(account common.Address, signer Signer) {
	s.mu.Lock()
	if s.account == account {
		s.mu.Unlock()
		return
	}
	s.account = account
	if signer != nil {
		s.signer = signer
	}
	event := ChangeEvent{Kind: AccountChanged, Account: account, ChainID: new(big.Int).Set(s.chainID)}
	subs := append([]chan ChangeEvent(nil), s.subscribers...)
	s.mu.Unlock()

	s.notify(subs, event)
}

// SetChainID switches the connected chain and notifies subscribers
func (s *Session) SetChainID(chainID *big.Int) {
	s.mu.Lock()
	if s.chainID.Cmp(chainID) == 0 {
		s.mu.Unlock()
		return
	}
	s.chainID = new(big.Int).Set(chainID)
	event := ChangeEvent{Kind: ChainChanged, Account: s.account, ChainID: new(big.Int).Set(chainID)}
	subs := append([]chan ChangeEvent(nil), s.subscribers...)
	s.mu.Unlock()

	s.notify(subs, event)
}

func (s *Session) notify(subs []chan ChangeEvent, event ChangeEvent) {
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}
