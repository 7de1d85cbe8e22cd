// Package buildinfo はビルド時に埋め込まれるバージョン情報を提供する。
package buildinfo

// -ldflags "-X github.com/hitoshi/steamauth/internal/buildinfo.Version=..." で上書きする。
var (
	Version    = "dev"
	CommitHash = "unknown"
)

// ServiceName は /version で返すサービス名。
const ServiceName = "steamauth"

// Info は /version のレスポンス。
type Info struct {
	Service    string `json:"service"`
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
}

// Get は現在のビルド情報を返す。
func Get() Info {
	return Info{
		Service:    ServiceName,
		Version:    Version,
		CommitHash: CommitHash,
	}
}
