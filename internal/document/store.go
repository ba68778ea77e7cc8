// Package document stores batch documents by content address. A reference is
// "sha256:" followed by the hex digest of the bytes, so the same bytes always
// produce the same reference and a reference can be checked against its data.
package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/iliyamo/pharmatrace/internal/apperror"
)

const refPrefix = "sha256:"

// MaxSize bounds a single upload.
const MaxSize = 10 << 20

// Object is a stored document.
type Object struct {
	Ref         string `json:"ref"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
}

// Store is the document store boundary.
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (Object, error)
	Get(ctx context.Context, ref string) (Object, error)
	Ping(ctx context.Context) error
}

// Ref returns the content address of data.
func Ref(data []byte) string {
	sum := sha256.Sum256(data)
	return refPrefix + hex.EncodeToString(sum[:])
}

// ParseRef validates ref and returns its hex digest.
func ParseRef(ref string) (string, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	digest, ok := strings.CutPrefix(ref, refPrefix)
	if !ok || len(digest) != sha256.Size*2 {
		return "", apperror.New(apperror.CodeValidation, "document reference must be sha256:<64 hex>")
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", apperror.New(apperror.CodeValidation, "document reference must be sha256:<64 hex>")
	}
	return digest, nil
}

func checkUpload(data []byte) error {
	if len(data) == 0 {
		return apperror.New(apperror.CodeValidation, "document is empty")
	}
	if len(data) > MaxSize {
		return apperror.New(apperror.CodeValidation, "document exceeds 10 MiB")
	}
	return nil
}

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	objs map[string]Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objs: make(map[string]Object)}
}

// Put is idempotent: storing the same bytes twice returns the same ref.
func (m *MemoryStore) Put(ctx context.Context, data []byte, contentType string) (Object, error) {
	if err := checkUpload(data); err != nil {
		return Object{}, err
	}
	obj := Object{
		Ref:         Ref(data),
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        append([]byte(nil), data...),
	}
	m.mu.Lock()
	m.objs[obj.Ref] = obj
	m.mu.Unlock()
	return obj, nil
}

func (m *MemoryStore) Get(ctx context.Context, ref string) (Object, error) {
	digest, err := ParseRef(ref)
	if err != nil {
		return Object{}, err
	}
	m.mu.RLock()
	obj, ok := m.objs[refPrefix+digest]
	m.mu.RUnlock()
	if !ok {
		return Object{}, apperror.ErrDocumentNotFound
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
