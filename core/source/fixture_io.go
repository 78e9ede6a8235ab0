package source

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/sui-sandbox/replaycore/core/movetypes"
)

// fixtureFile is the on-disk JSON shape LoadFixtureFile reads: a flattened,
// human-editable rendition of FixtureSource's in-memory tables. This is the
// reference file format for cmd/replay, standing in for a real archive-node
// client the way source.FixtureSource stands in for one in tests.
type fixtureFile struct {
	Transactions map[string]*FetchedTransaction                 `json:"transactions"`
	Packages     []fixturePackageEntry                          `json:"packages"`
	Objects      []*movetypes.Object                            `json:"objects"`
	DynamicFields []fixtureDynamicFieldEntry                    `json:"dynamic_fields"`
}

type fixturePackageEntry struct {
	ID      movetypes.AccountAddress `json:"id"`
	Version uint64                   `json:"version"`
	Modules []movetypes.Module       `json:"modules"`
	Linkage []movetypes.LinkageEntry `json:"linkage"`
}

type fixtureDynamicFieldEntry struct {
	Parent   movetypes.AccountAddress `json:"parent"`
	KeyBytes []byte                   `json:"key_bytes"`
	Entry    DynamicFieldEntry        `json:"entry"`
}

// LoadFixtureFile reads path as JSON and returns a populated FixtureSource,
// the reference StateSource implementation cmd/replay wires up from
// --source-config.
func LoadFixtureFile(path string) (*FixtureSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "source: read %s", path)
	}
	var ff fixtureFile
	if err := json.Unmarshal(raw, &ff); err != nil {
		return nil, errors.Wrapf(err, "source: parse %s", path)
	}

	fs := NewFixtureSource()
	for digest, tx := range ff.Transactions {
		fs.Transactions[digest] = tx
	}
	for _, p := range ff.Packages {
		fs.PutPackage(p.ID, &movetypes.PackageData{ID: p.ID, Version: p.Version, Modules: p.Modules, Linkage: p.Linkage})
	}
	for _, obj := range ff.Objects {
		fs.PutObject(obj)
	}
	for _, df := range ff.DynamicFields {
		entry := df.Entry
		fs.PutDynamicField(df.Parent, df.KeyBytes, &entry)
	}
	return fs, nil
}
