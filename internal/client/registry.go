// Package client は認証リクエストを開始できる登録済みクライアントの許可リストを提供する。
package client

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/hitoshi/steamauth/internal/model"
)

// Registry は client_id → リダイレクト先URL の静的な許可リスト。
// 起動時に1回構築し、プロセス終了まで変更しない。
type Registry struct {
	clients map[string]string
}

// NewRegistry はRegistryを生成する。
// リダイレクト先は http/https の絶対URLでなければならない。
func NewRegistry(clients map[string]string) (*Registry, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("at least one client must be registered")
	}

	copied := make(map[string]string, len(clients))
	for id, raw := range clients {
		if id == "" {
			return nil, fmt.Errorf("empty client id")
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("client %q: invalid redirect url: %w", id, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("client %q: redirect url must be an absolute http(s) url: %s", id, raw)
		}
		copied[id] = raw
	}

	return &Registry{clients: copied}, nil
}

// Resolve はclient_idに対応するリダイレクト先URLを返す。
// 未登録の場合はKindInvalidClientIDのAuthErrorを返す。
func (r *Registry) Resolve(clientID string) (string, error) {
	if clientID == "" {
		return "", model.NewInvalidClientIDError(clientID)
	}
	u, ok := r.clients[clientID]
	if !ok {
		return "", model.NewInvalidClientIDError(clientID)
	}
	return u, nil
}

// Origins は登録済みリダイレクト先URLのオリジン（scheme://host[:port]）をソートして返す。
// CORSの許可オリジンとして使用する。
func (r *Registry) Origins() []string {
	seen := make(map[string]struct{}, len(r.clients))
	origins := make([]string, 0, len(r.clients))
	for _, raw := range r.clients {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		origin := u.Scheme + "://" + u.Host
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	sort.Strings(origins)
	return origins
}

// RedirectURL はclient_idのURLにクエリパラメータを付与したURLを返す。
// 登録URLに既存のクエリがある場合はマージする。
func (r *Registry) RedirectURL(clientID string, query url.Values) (string, error) {
	base, err := r.Resolve(clientID)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse client url: %w", err)
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
