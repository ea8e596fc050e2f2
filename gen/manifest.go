package gen

import (
	"encoding/hex"
	"encoding/json"

	"github.com/coreos/go-semver/semver"

	"github.com/wippyai/thunkgen/abi"
	"github.com/wippyai/thunkgen/analysis"
	"github.com/wippyai/thunkgen/errors"
)

// FormatVersion is the manifest schema version this generator writes.
// Consumers accept manifests with the same major version and a minor
// version no newer than their own.
const FormatVersion = "1.0.0"

// Manifest describes one generated thunk library: its exports keyed by
// hash, the callback signatures it shares, and the ABI pair the
// layouts assumed.
type Manifest struct {
	FormatVersion  string             `json:"format_version"`
	Library        string             `json:"library"`
	SOName         string             `json:"soname"`
	ABI            ManifestABI        `json:"abi"`
	AllowedArities []int              `json:"allowed_arities"`
	Exports        []ManifestExport   `json:"exports"`
	Callbacks      []ManifestCallback `json:"callbacks"`
}

// ManifestABI names the two architecture views a manifest was
// generated for.
type ManifestABI struct {
	Guest string `json:"guest"`
	Host  string `json:"host"`
}

// ManifestExport is one guest-callable endpoint.
type ManifestExport struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Arity  int    `json:"arity"`
}

// ManifestCallback is one host-callable guest signature.
type ManifestCallback struct {
	Signature string `json:"signature"`
	SHA256    string `json:"sha256"`
}

// BuildManifest summarizes an analyzed API for runtime consumers.
func BuildManifest(api *analysis.API, guest, host abi.Arch) *Manifest {
	m := &Manifest{
		FormatVersion:  FormatVersion,
		Library:        api.Library,
		SOName:         api.SOName(),
		ABI:            ManifestABI{Guest: guest.String(), Host: host.String()},
		AllowedArities: append([]int(nil), abi.AllowedArities...),
		Exports:        make([]ManifestExport, 0, len(api.Functions)),
		Callbacks:      make([]ManifestCallback, 0, len(api.Callbacks)),
	}
	for _, f := range api.Functions {
		h := FunctionHash(api.Library, f.ThunkName)
		m.Exports = append(m.Exports, ManifestExport{
			Name:   f.ThunkName,
			SHA256: hex.EncodeToString(h[:]),
			Arity:  len(f.Params),
		})
	}
	for _, cb := range api.Callbacks {
		h := CallbackHash(cb.CStr)
		m.Callbacks = append(m.Callbacks, ManifestCallback{
			Signature: cb.CStr,
			SHA256:    hex.EncodeToString(h[:]),
		})
	}
	return m
}

// Encode renders the manifest as indented JSON with a trailing newline.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ParseManifest decodes a manifest and checks that its format version
// is one this package can interpret.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.ParseFailed("manifest", err)
	}
	got, err := semver.NewVersion(m.FormatVersion)
	if err != nil {
		return nil, errors.ParseFailed("manifest format_version", err)
	}
	supported := semver.New(FormatVersion)
	if got.Major != supported.Major || got.Minor > supported.Minor {
		return nil, errors.VersionMismatch(m.FormatVersion, FormatVersion)
	}
	return &m, nil
}
