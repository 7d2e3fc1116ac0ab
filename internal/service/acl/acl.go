package acl

import (
	"sync"

	log "github.com/InjectiveLabs/suplog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle/types"
)

var ErrNotACLAdmin = errors.New("caller is not the ACL admin")

var _ types.Authorizer = &Manager{}

// Manager is an in-memory role registry. Only the ACL admin fixed at
// construction may grant or revoke roles.
type Manager struct {
	admin common.Address

	mu      sync.RWMutex
	members map[types.Role]map[common.Address]struct{}

	logger log.Logger
}

func NewManager(admin common.Address) *Manager {
	return &Manager{
		admin:   admin,
		members: make(map[types.Role]map[common.Address]struct{}),
		logger:  log.WithField("svc", "acl"),
	}
}

func (m *Manager) Admin() common.Address {
	return m.admin
}

func (m *Manager) HasAnyRole(caller common.Address, roles ...types.Role) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, role := range roles {
		if _, ok := m.members[role][caller]; ok {
			return true
		}
	}

	return false
}

func (m *Manager) GrantRole(caller common.Address, role types.Role, account common.Address) error {
	if caller != m.admin {
		return errors.Wrapf(ErrNotACLAdmin, "caller %s", caller.Hex())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, ok := m.members[role]
	if !ok {
		accounts = make(map[common.Address]struct{})
		m.members[role] = accounts
	}
	accounts[account] = struct{}{}

	m.logger.WithFields(log.Fields{
		"role":    role.String(),
		"account": account.Hex(),
	}).Infoln("role granted")

	return nil
}

func (m *Manager) RevokeRole(caller common.Address, role types.Role, account common.Address) error {
	if caller != m.admin {
		return errors.Wrapf(ErrNotACLAdmin, "caller %s", caller.Hex())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.members[role], account)

	m.logger.WithFields(log.Fields{
		"role":    role.String(),
		"account": account.Hex(),
	}).Infoln("role revoked")

	return nil
}
