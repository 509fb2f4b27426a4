package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const accountsFormatVersion = 3

// ErrNoProfile is returned when an account without a completed game profile
// is added to the list; such accounts cannot be addressed or deduplicated.
var ErrNoProfile = errors.New("account has no game profile")

type accountsFile struct {
	FormatVersion int               `json:"formatVersion"`
	Accounts      []json.RawMessage `json:"accounts"`
}

// AccountList is the persistent collection of accounts. One of them may be
// designated the default; it gets priority everywhere accounts are ordered.
type AccountList struct {
	path string
	log  *zap.Logger

	mu       sync.Mutex
	accounts []*MinecraftAccount
	defaultA *MinecraftAccount
}

// NewAccountList creates an empty list persisted at path.
func NewAccountList(path string, log *zap.Logger) *AccountList {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountList{path: path, log: log}
}

// Load reads the account store from disk. A missing file yields an empty
// list. A store with an unrecognized format version is renamed aside so its
// contents survive for manual recovery, and the list starts empty.
func (l *AccountList) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading account store: %w", err)
	}

	var file accountsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parsing account store: %w", err)
	}
	if file.FormatVersion != accountsFormatVersion {
		aside := backupPath(l.path)
		l.log.Warn("account store has an unknown format version, moving it aside",
			zap.Int("version", file.FormatVersion),
			zap.String("backup", aside))
		if err := os.Rename(l.path, aside); err != nil {
			return fmt.Errorf("backing up unreadable account store: %w", err)
		}
		return nil
	}

	for _, entry := range file.Accounts {
		account, active, err := LoadAccount(entry)
		if err != nil {
			// One corrupt entry should not take the rest down.
			l.log.Warn("skipping unreadable account entry", zap.Error(err))
			continue
		}
		l.accounts = append(l.accounts, account)
		if active {
			l.defaultA = account
		}
	}
	return nil
}

// Save writes the store atomically: the new content lands in a temporary
// file that replaces the old store only after a complete write. Token
// material is inside, so the file is not group or world readable.
func (l *AccountList) Save() error {
	l.mu.Lock()
	file := accountsFile{FormatVersion: accountsFormatVersion}
	for _, a := range l.accounts {
		entry := a.SaveState()
		if a == l.defaultA {
			entry = markActive(entry)
		}
		file.Accounts = append(file.Accounts, entry)
	}
	l.mu.Unlock()

	raw, err := json.MarshalIndent(file, "", "    ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("writing account store: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing account store: %w", err)
	}
	return nil
}

// backupPath derives the rename-aside name: accounts.json becomes
// accounts-old.json.
func backupPath(path string) string {
	if ext := filepath.Ext(path); ext != "" {
		return strings.TrimSuffix(path, ext) + "-old" + ext
	}
	return path + "-old"
}

func markActive(entry json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(entry, &obj); err != nil {
		return entry
	}
	obj["active"] = json.RawMessage("true")
	out, err := json.Marshal(obj)
	if err != nil {
		return entry
	}
	return out
}

// Add inserts an account after a completed login. An existing account with
// the same profile id is replaced in place, keeping its list position; the
// replaced account's default designation carries over.
func (l *AccountList) Add(account *MinecraftAccount) error {
	if account.ProfileID() == "" {
		return ErrNoProfile
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.accounts {
		if existing.ProfileID() == account.ProfileID() {
			l.accounts[i] = account
			if l.defaultA == existing {
				l.defaultA = account
			}
			return nil
		}
	}
	l.accounts = append(l.accounts, account)
	return nil
}

// Remove drops the account with the given internal id. Removing the default
// account leaves the list with no default.
func (l *AccountList) Remove(internalID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, a := range l.accounts {
		if a.InternalID() == internalID {
			if l.defaultA == a {
				l.defaultA = nil
			}
			l.accounts = append(l.accounts[:i], l.accounts[i+1:]...)
			return true
		}
	}
	return false
}

// Accounts returns a snapshot of the list in stored order.
func (l *AccountList) Accounts() []*MinecraftAccount {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*MinecraftAccount, len(l.accounts))
	copy(out, l.accounts)
	return out
}

// Len reports the number of stored accounts.
func (l *AccountList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.accounts)
}

// DefaultAccount returns the designated default, or nil when none is set.
func (l *AccountList) DefaultAccount() *MinecraftAccount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.defaultA
}

// SetDefault marks the account with the given internal id as the default;
// an empty id clears the designation.
func (l *AccountList) SetDefault(internalID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if internalID == "" {
		l.defaultA = nil
		return
	}
	for _, a := range l.accounts {
		if a.InternalID() == internalID {
			l.defaultA = a
			return
		}
	}
}

// FindByProfileID returns the account owning the given profile, or nil.
func (l *AccountList) FindByProfileID(id string) *MinecraftAccount {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.accounts {
		if a.ProfileID() == id {
			return a
		}
	}
	return nil
}
