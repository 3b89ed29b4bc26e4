// Package labels keeps a small persisted book of human readable names for
// addresses that show up in alerts.
package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Book maps lower-cased hex addresses to labels. It is safe for concurrent
// use; every Set rewrites the backing file.
type Book struct {
	mu     sync.RWMutex
	path   string
	labels map[string]string
}

// Load reads the label book at path. A missing file is created empty. An
// empty path gives an in-memory book.
func Load(path string) (*Book, error) {
	b := &Book{path: path, labels: make(map[string]string)}
	if path == "" {
		return b, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
			return nil, fmt.Errorf("create label book %s: %w", path, err)
		}
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read label book %s: %w", path, err)
	}

	var entries map[string]string
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse label book %s: %w", path, err)
	}
	for addr, label := range entries {
		if label = strings.TrimSpace(label); label != "" {
			b.labels[strings.ToLower(addr)] = label
		}
	}
	return b, nil
}

func (b *Book) Get(addr common.Address) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	label, ok := b.labels[key(addr)]
	return label, ok
}

// Set stores label for addr and persists the book.
func (b *Book) Set(addr common.Address, label string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.labels[key(addr)] = label
	if b.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(b.labels, "", "  ")
	if err != nil {
		return fmt.Errorf("encode label book: %w", err)
	}
	if err := os.WriteFile(b.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write label book %s: %w", b.path, err)
	}
	return nil
}

// Display returns the label for addr, or the shortened address when none is
// known.
func (b *Book) Display(addr common.Address) string {
	if b != nil {
		if label, ok := b.Get(addr); ok {
			return label
		}
	}
	return Shorten(addr)
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.labels)
}

// Shorten renders addr as 0x1234...abcd.
func Shorten(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

func key(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
