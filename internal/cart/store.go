package cart

import "sync"

// Store owns the carts of logged-in users, keyed by user id.
type Store struct {
	mu    sync.Mutex
	carts map[uint]*Cart
}

func NewStore() *Store {
	return &Store{carts: make(map[uint]*Cart)}
}

// For returns the user's cart, creating an empty one on first use.
func (s *Store) For(userID uint) *Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	if !ok {
		c = New(userID)
		s.carts[userID] = c
	}
	return c
}

func (s *Store) Get(userID uint) (*Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	return c, ok
}

// Drop forgets the user's cart, e.g. on logout.
func (s *Store) Drop(userID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}
