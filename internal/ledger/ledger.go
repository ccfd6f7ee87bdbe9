package ledger

import (
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the ledger store. It owns accounts and transactions and is the
// only component allowed to mutate an account balance. All mutations go
// through Apply, inside a database transaction, while holding the account's
// mutex, so reads and writes of one balance never interleave.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	locks  sync.Map // account ID -> *sync.Mutex
}

// NewService creates a new ledger service.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.Named("ledger"),
	}
}

// DB exposes the underlying handle so sibling services can compose their own
// transitions with ledger settlement in a single database transaction.
func (s *Service) DB() *gorm.DB {
	return s.db
}

func (s *Service) lockFor(accountID uint) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(accountID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// WithAccountLock runs fn while holding the per-account mutex. Accounts are
// independent; no cross-account ordering exists, so there is no lock
// ordering concern.
func (s *Service) WithAccountLock(accountID uint, fn func() error) error {
	mu := s.lockFor(accountID)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
