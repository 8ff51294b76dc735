package service

import (
	"errors"
	"sort"
	"strings"

	"ananke/internal/model"
)

// KeyPolicy — неизменяемая политика ключей, с которой запечатываются новые записи.
type KeyPolicy struct {
	KeyIDs            []string
	AllowMultipleKeys bool
}

// NewKeyPolicy normalizes ids (trimmed, upper-case, deduplicated) into a policy.
func NewKeyPolicy(ids []string, allowMultiple bool) KeyPolicy {
	return KeyPolicy{KeyIDs: normalizeKeyIDs(ids), AllowMultipleKeys: allowMultiple}
}

// Validate проверяет, что политика пригодна для шифрования.
func (p KeyPolicy) Validate() error {
	ids := p.Recipients()
	if len(ids) == 0 {
		return errors.New("key policy has no key id")
	}
	if len(ids) > 1 && !p.AllowMultipleKeys {
		return errors.New("key policy lists several key ids but multiple keys are not allowed")
	}
	return nil
}

// Recipients returns the normalized recipient key ids.
func (p KeyPolicy) Recipients() []string {
	return normalizeKeyIDs(p.KeyIDs)
}

// KeyID is the value recorded in Entry.KeyID for ciphertexts sealed under this policy.
func (p KeyPolicy) KeyID() string {
	return model.JoinKeyIDs(p.Recipients())
}

// matches reports whether keyID names the same key set as the policy, in any order.
func (p KeyPolicy) matches(keyID string) bool {
	a := normalizeKeyIDs(model.SplitKeyIDs(keyID))
	b := p.Recipients()
	if len(a) != len(b) {
		return false
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func normalizeKeyIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		res = append(res, id)
	}
	return res
}
