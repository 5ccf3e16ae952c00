package configsvc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
)

func snapshotHash(data map[string]any) (string, error) {
	encoded, err := canonicalJSON(data)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON encodes value in RFC 8785 form so equal policies hash equally.
func canonicalJSON(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode canonical json: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize json: %w", err)
	}
	return out, nil
}

func snapshotVersion(revisions map[Scope]int64) string {
	order := []Scope{ScopeGlobal, ScopeStorage, ScopeRepository}
	parts := make([]string, 0, len(order))
	for _, scope := range order {
		parts = append(parts, fmt.Sprintf("%s:%d", scope, revisions[scope]))
	}
	return strings.Join(parts, "|")
}
