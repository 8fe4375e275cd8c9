package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	appbilling "github.com/cuotas/backend/internal/application/billing"
)

// Ensure InMemoryReceiptStorage implements ReceiptStorage
var _ appbilling.ReceiptStorage = (*InMemoryReceiptStorage)(nil)

// InMemoryReceiptStorage keeps receipt files in memory. Suitable for
// development and tests; files do not survive a restart.
type InMemoryReceiptStorage struct {
	mu      sync.RWMutex
	files   map[string][]byte
	baseURL string
}

// NewInMemoryReceiptStorage creates a new in-memory receipt storage
func NewInMemoryReceiptStorage() *InMemoryReceiptStorage {
	return &InMemoryReceiptStorage{
		files:   make(map[string][]byte),
		baseURL: "https://receipts.local",
	}
}

// Store reads the file into memory and returns a synthetic URL
func (s *InMemoryReceiptStorage) Store(ctx context.Context, studentID uuid.UUID, filename string, content io.Reader, size int64, contentType string) (string, error) {
	if studentID == uuid.Nil {
		return "", errors.New("student ID is required")
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}

	key := receiptKey(studentID, filename, time.Now())
	url := s.baseURL + "/" + key

	s.mu.Lock()
	s.files[url] = data
	s.mu.Unlock()

	return url, nil
}

// Remove deletes a stored file by URL
func (s *InMemoryReceiptStorage) Remove(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[url]; !ok {
		return errors.New("receipt not found")
	}
	delete(s.files, url)
	return nil
}

// Get returns a stored file by URL (for testing)
func (s *InMemoryReceiptStorage) Get(url string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.files[url]
	return data, ok
}

// Size returns the number of stored files (for testing)
func (s *InMemoryReceiptStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
