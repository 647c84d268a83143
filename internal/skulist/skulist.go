// Package skulist provides the SKU lookup predicate injected into the item
// ledger. The coordinator core never depends on where the list comes from.
package skulist

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/lbastidas/inboundscan/internal/domain"
)

// AllowAll accepts every SKU. Used when no list is configured.
func AllowAll() func(string) bool {
	return func(string) bool { return true }
}

// FromFile builds a predicate from a plain-text list, one SKU per line.
// Blank lines and lines starting with # are skipped; entries are
// case-normalized the same way scan input is.
func FromFile(path string) (func(string) bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sku list: %w", err)
	}
	defer func() { _ = f.Close() }()

	skus := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		skus[domain.NormalizeCode(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sku list: %w", err)
	}

	return func(sku string) bool {
		_, ok := skus[domain.NormalizeCode(sku)]
		return ok
	}, nil
}
