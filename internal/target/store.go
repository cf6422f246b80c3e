package target

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned for an unknown contact id.
var ErrNotFound = errors.New("contact not found")

// Contact is one record of the contacts API.
type Contact struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Gender string `json:"gender,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
}

// ContactSchema is the JSON schema of a contact record.
const ContactSchema = `{
  "type": "object",
  "required": ["id", "name"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "gender": {"type": "string"},
    "phone": {"type": "string"},
    "street": {"type": "string"},
    "city": {"type": "string"}
  }
}`

// SeedContacts are the records the store starts with and returns to on
// reset.
var SeedContacts = []Contact{
	{Name: "Ada Lovelace", Gender: "Female", Phone: "555-0101", Street: "12 St James's Square", City: "London"},
	{Name: "Alan Turing", Gender: "Male", Phone: "555-0102", Street: "2 Adlington Road", City: "Wilmslow"},
	{Name: "Grace Hopper", Gender: "Female", Phone: "555-0103", Street: "1 Navy Way", City: "Arlington"},
	{Name: "Linus Torvalds", Gender: "Male", Phone: "555-0104", Street: "5 Kernel Lane", City: "Portland"},
	{Name: "Margaret Hamilton", Gender: "Female", Phone: "555-0105", Street: "11 Apollo Drive", City: "Boston"},
	{Name: "Sam Taylor", Gender: "Other", Phone: "555-0106", Street: "7 Market Street", City: "Leeds"},
}

// Store is an in-memory, concurrency-safe contact list. Contacts keep their
// insertion order.
type Store struct {
	mu       sync.RWMutex
	contacts []Contact
	seed     []Contact
}

// NewStore creates a store holding seed. Seed records without an id get a
// generated one.
func NewStore(seed []Contact) *Store {
	s := &Store{seed: make([]Contact, len(seed))}
	for i, c := range seed {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		s.seed[i] = c
	}
	s.Reset()
	return s
}

// List returns a copy of every contact.
func (s *Store) List() []Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Contact{}, s.contacts...)
}

// Len returns the number of contacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contacts)
}

// Get returns the contact with id.
func (s *Store) Get(id string) (Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(id); i >= 0 {
		return s.contacts[i], nil
	}
	return Contact{}, ErrNotFound
}

// Create adds c under a new id and returns it.
func (s *Store) Create(c Contact) Contact {
	c.ID = uuid.NewString()
	s.mu.Lock()
	s.contacts = append(s.contacts, c)
	s.mu.Unlock()
	return c
}

// Update replaces the contact with id, keeping the id.
func (s *Store) Update(id string, c Contact) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return Contact{}, ErrNotFound
	}
	c.ID = id
	s.contacts[i] = c
	return c, nil
}

// Delete removes the contact with id and returns it.
func (s *Store) Delete(id string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return Contact{}, ErrNotFound
	}
	c := s.contacts[i]
	s.contacts = append(s.contacts[:i], s.contacts[i+1:]...)
	return c, nil
}

// Reset restores the seed records and returns how many there are.
func (s *Store) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append([]Contact{}, s.seed...)
	return len(s.contacts)
}

// index must be called with mu held.
func (s *Store) index(id string) int {
	for i := range s.contacts {
		if s.contacts[i].ID == id {
			return i
		}
	}
	return -1
}
