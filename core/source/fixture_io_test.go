package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

func TestLoadFixtureFilePopulatesAllTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.json")
	raw := `{
		"transactions": {
			"deadbeef": {
				"transaction": {
					"Digest": "deadbeef",
					"Sender": "0x1",
					"Commands": []
				},
				"checkpoint": 42
			}
		},
		"packages": [
			{"id": "0x10", "version": 1, "modules": [{"Name": "m", "Bytecode": null}], "linkage": []}
		],
		"objects": [
			{"ID": "0x20", "Version": 3, "Type": "0x2::coin::Coin", "Payload": null}
		],
		"dynamic_fields": [
			{"parent": "0x20", "key_bytes": "AQI=", "entry": {"ChildID": "0x30", "ValueType": "0x2::coin::Coin", "ValueBCS": null, "Version": 1}}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	fs, err := LoadFixtureFile(path)
	require.NoError(t, err)

	tx, err := fs.FetchTransaction(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, uint64(42), tx.Checkpoint)

	pkgID := movetypes.HexToAddress("0x10")
	data, err := fs.FetchPackage(context.Background(), pkgID, nil)
	require.NoError(t, err)
	require.NotNil(t, data)
	require.Equal(t, uint64(1), data.Version)
	require.Len(t, data.Modules, 1)
	require.Equal(t, "m", data.Modules[0].Name)

	objID := movetypes.HexToAddress("0x20")
	obj, err := fs.FetchObject(context.Background(), objID, nil)
	require.NoError(t, err)
	require.NotNil(t, obj)
	require.Equal(t, uint64(3), obj.Version)

	entry, err := fs.FindDynamicField(context.Background(), objID, []byte{1, 2}, nil)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, movetypes.HexToAddress("0x30"), entry.ChildID)
}

func TestLoadFixtureFileMissingFile(t *testing.T) {
	_, err := LoadFixtureFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadFixtureFileMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := LoadFixtureFile(path)
	require.Error(t, err)
}
