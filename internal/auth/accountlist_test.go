package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listAt(t *testing.T) (*AccountList, string) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	return NewAccountList(path, nil), path
}

func TestAccountListRoundTrip(t *testing.T) {
	list, path := listAt(t)

	steve := NewOfflineAccount("Steve")
	alex := NewOfflineAccount("Alex")
	require.NoError(t, list.Add(steve))
	require.NoError(t, list.Add(alex))
	list.SetDefault(alex.InternalID())
	require.NoError(t, list.Save())

	// the store must not be world readable, it holds token material
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	var file struct {
		FormatVersion int               `json:"formatVersion"`
		Accounts      []json.RawMessage `json:"accounts"`
	}
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &file))
	assert.Equal(t, 3, file.FormatVersion)
	assert.Len(t, file.Accounts, 2)

	restored := NewAccountList(path, nil)
	require.NoError(t, restored.Load())
	require.Equal(t, 2, restored.Len())
	assert.Equal(t, "Steve", restored.Accounts()[0].ProfileName())
	require.NotNil(t, restored.DefaultAccount())
	assert.Equal(t, "Alex", restored.DefaultAccount().ProfileName())
}

func TestAccountListLoadMissingFile(t *testing.T) {
	list, _ := listAt(t)
	require.NoError(t, list.Load())
	assert.Zero(t, list.Len())
}

func TestAccountListUnknownVersionIsMovedAside(t *testing.T) {
	list, path := listAt(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"formatVersion": 2, "accounts": [{"type":"Mojang"}]}`), 0600))

	require.NoError(t, list.Load())
	assert.Zero(t, list.Len())

	// the original content survives under the backup name
	backup := filepath.Join(filepath.Dir(path), "accounts-old.json")
	raw, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"formatVersion": 2`)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "original store should be gone")
}

func TestAccountListSkipsCorruptEntries(t *testing.T) {
	list, path := listAt(t)
	require.NoError(t, os.WriteFile(path, []byte(`{
		"formatVersion": 3,
		"accounts": [
			{"type": "UnheardOf"},
			{"type": "Offline", "ygg": {"token": "offline"}, "profile": {"id": "abc", "name": "Steve", "skin": {"id":"","url":"","variant":""}, "capes": []}}
		]
	}`), 0600))

	require.NoError(t, list.Load())
	require.Equal(t, 1, list.Len())
	assert.Equal(t, "Steve", list.Accounts()[0].ProfileName())
}

func TestAccountListAddRequiresProfile(t *testing.T) {
	list, _ := listAt(t)
	err := list.Add(NewMSAAccount())
	assert.ErrorIs(t, err, ErrNoProfile)
}

func TestAccountListAddReplacesSameProfile(t *testing.T) {
	list, _ := listAt(t)

	first := NewOfflineAccount("Steve")
	require.NoError(t, list.Add(first))
	list.SetDefault(first.InternalID())

	// same player name yields the same profile id
	second := NewOfflineAccount("Steve")
	require.NoError(t, list.Add(second))

	require.Equal(t, 1, list.Len())
	assert.Same(t, second, list.Accounts()[0])
	// the default designation carries over to the replacement
	assert.Same(t, second, list.DefaultAccount())
}

func TestAccountListRemove(t *testing.T) {
	list, _ := listAt(t)
	steve := NewOfflineAccount("Steve")
	require.NoError(t, list.Add(steve))
	list.SetDefault(steve.InternalID())

	assert.False(t, list.Remove("not-there"))
	assert.True(t, list.Remove(steve.InternalID()))
	assert.Zero(t, list.Len())
	assert.Nil(t, list.DefaultAccount())
}

func TestAccountListFindByProfileID(t *testing.T) {
	list, _ := listAt(t)
	steve := NewOfflineAccount("Steve")
	require.NoError(t, list.Add(steve))

	assert.Same(t, steve, list.FindByProfileID(steve.ProfileID()))
	assert.Nil(t, list.FindByProfileID("missing"))
}
