package auth

import (
	"fmt"
	"slices"

	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
)

// dummyHash is verified against when the username is unknown, so a failed
// login costs the same whether or not the account exists.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$c29tZXNhbHRzb21lc2FsdA$0bJQ0mF0iUqC3Z5rQW0vCqXk2yq7H0F8m7z3bV9dK1E"

type account struct {
	Operator
	hash phcHash
}

// OperatorStore holds the operator accounts from configuration.
// It is read-only after construction and safe for concurrent use.
type OperatorStore struct {
	accounts map[string]account
	dummy    phcHash
}

// NewOperatorStore validates the configured operators, including their
// password hashes, so a bad account fails startup rather than its first
// login.
//
// Returns:
//   - *OperatorStore: Store ready for Authenticate
//   - error: ErrUnknownRole, ErrDuplicateOperator or ErrInvalidHash
func NewOperatorStore(cfgs []config.OperatorConfig) (*OperatorStore, error) {
	dummy, err := parsePHC(dummyHash)
	if err != nil {
		return nil, err
	}

	accounts := make(map[string]account, len(cfgs))
	for i, c := range cfgs {
		role, err := ParseRole(c.Role)
		if err != nil {
			return nil, fmt.Errorf("operator %d (%s): %w", i, c.Username, err)
		}
		if _, exists := accounts[c.Username]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOperator, c.Username)
		}
		hash, err := parsePHC(c.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("operator %d (%s): %w", i, c.Username, err)
		}
		accounts[c.Username] = account{
			Operator: Operator{Username: c.Username, PasswordHash: c.PasswordHash, Role: role},
			hash:     hash,
		}
	}
	return &OperatorStore{accounts: accounts, dummy: dummy}, nil
}

// Len returns the number of configured operators.
func (s *OperatorStore) Len() int {
	return len(s.accounts)
}

// WeakHashes lists, sorted, the operators whose hashes use cheaper argon2id
// parameters than HashPassword does today.
func (s *OperatorStore) WeakHashes() []string {
	var weak []string
	for name, a := range s.accounts {
		if a.hash.params.weakerThan(defaultParams) {
			weak = append(weak, name)
		}
	}
	slices.Sort(weak)
	return weak
}

// Authenticate returns the matching account or ErrInvalidCredentials.
func (s *OperatorStore) Authenticate(username, password string) (*Operator, error) {
	a, ok := s.accounts[username]
	if !ok {
		s.dummy.matches(password)
		return nil, ErrInvalidCredentials
	}
	if !a.hash.matches(password) {
		return nil, ErrInvalidCredentials
	}
	op := a.Operator
	return &op, nil
}
