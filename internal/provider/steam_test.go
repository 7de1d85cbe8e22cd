package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const testSteamID = "76561198000000000"

// newSteamTestServer はOpenIDエンドポイントとGetPlayerSummariesを模擬する。
func newSteamTestServer(t *testing.T, isValid bool, players string) (*httptest.Server, *SteamProvider) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/openid/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("check_authentication method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("openid.mode") != "check_authentication" {
			t.Errorf("openid.mode = %q, want check_authentication", r.PostForm.Get("openid.mode"))
		}
		fmt.Fprintf(w, "ns:http://specs.openid.net/auth/2.0\nis_valid:%t\n", isValid)
	})
	mux.HandleFunc("/ISteamUser/GetPlayerSummaries/v0002/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-api-key" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"response":{"players":[%s]}}`, players)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	p := NewSteamProvider(SteamConfig{
		APIKey:             "test-api-key",
		ReturnURL:          "https://login.example.com/auth/steam/callback",
		Realm:              "https://login.example.com",
		OpenIDEndpoint:     ts.URL + "/openid/login",
		PlayerSummariesURL: ts.URL + "/ISteamUser/GetPlayerSummaries/v0002/",
		HTTPClient:         ts.Client(),
	})
	return ts, p
}

var nonceSeq atomic.Int64

// freshNonce はOpenID 2.0形式（UTCタイムスタンプ＋一意な文字列）のresponse_nonceを返す。
func freshNonce(at time.Time) string {
	return at.UTC().Format("2006-01-02T15:04:05Z") + strconv.FormatInt(nonceSeq.Add(1), 10)
}

func steamCallbackQuery(p *SteamProvider, steamID string) url.Values {
	return url.Values{
		"openid.ns":             {openIDNamespace},
		"openid.mode":           {"id_res"},
		"openid.op_endpoint":    {p.config.OpenIDEndpoint},
		"openid.claimed_id":     {"https://steamcommunity.com/openid/id/" + steamID},
		"openid.identity":       {"https://steamcommunity.com/openid/id/" + steamID},
		"openid.return_to":      {"https://login.example.com/auth/steam/callback"},
		"openid.response_nonce": {freshNonce(time.Now())},
		"openid.assoc_handle":   {"1234567890"},
		"openid.signed":         {"signed,op_endpoint,claimed_id,identity,return_to,response_nonce,assoc_handle"},
		"openid.sig":            {"c2lnbmF0dXJl"},
	}
}

func TestSteamProvider_AuthURL_ContainsRequiredParams(t *testing.T) {
	p := NewSteamProvider(SteamConfig{
		ReturnURL: "https://login.example.com/auth/steam/callback",
		Realm:     "https://login.example.com",
	})

	u, err := url.Parse(p.AuthURL())
	if err != nil {
		t.Fatalf("invalid auth url: %v", err)
	}
	if u.Host != "steamcommunity.com" || u.Path != "/openid/login" {
		t.Errorf("auth url = %s", u)
	}

	q := u.Query()
	want := map[string]string{
		"openid.mode":       "checkid_setup",
		"openid.ns":         openIDNamespace,
		"openid.return_to":  "https://login.example.com/auth/steam/callback",
		"openid.realm":      "https://login.example.com",
		"openid.claimed_id": openIDIdentifierSelect,
		"openid.identity":   openIDIdentifierSelect,
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestSteamProvider_Authenticate_Success(t *testing.T) {
	players := `{"steamid":"76561198000000000","personaname":"gabe","avatarfull":"https://avatars.example.com/gabe_full.jpg","profileurl":"https://steamcommunity.com/id/gabe/"}`
	_, p := newSteamTestServer(t, true, players)

	identity, err := p.Authenticate(context.Background(), steamCallbackQuery(p, testSteamID))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.SteamID != testSteamID {
		t.Errorf("SteamID = %q", identity.SteamID)
	}
	if identity.DisplayName != "gabe" {
		t.Errorf("DisplayName = %q", identity.DisplayName)
	}
	if identity.AvatarURL != "https://avatars.example.com/gabe_full.jpg" {
		t.Errorf("AvatarURL = %q", identity.AvatarURL)
	}
	if !strings.Contains(string(identity.Raw), `"profileurl"`) {
		t.Errorf("Raw should keep the full player object, got %s", identity.Raw)
	}
}

func TestSteamProvider_Verify_RejectedAssertion(t *testing.T) {
	_, p := newSteamTestServer(t, false, "")

	if _, err := p.Verify(context.Background(), steamCallbackQuery(p, testSteamID)); err == nil {
		t.Fatal("expected error when steam answers is_valid:false")
	}
}

func TestSteamProvider_Verify_InvalidAssertions(t *testing.T) {
	_, p := newSteamTestServer(t, true, "")

	tests := []struct {
		name   string
		mutate func(q url.Values)
	}{
		{"cancel", func(q url.Values) { q.Set("openid.mode", "cancel") }},
		{"wrong op_endpoint", func(q url.Values) { q.Set("openid.op_endpoint", "https://evil.example.com/openid/login") }},
		{"wrong return_to", func(q url.Values) { q.Set("openid.return_to", "https://evil.example.com/auth/steam/callback") }},
		{"foreign claimed_id", func(q url.Values) { q.Set("openid.claimed_id", "https://evil.example.com/openid/id/1") }},
		{"non numeric claimed_id", func(q url.Values) { q.Set("openid.claimed_id", "https://steamcommunity.com/openid/id/abc") }},
		{"wrong ns", func(q url.Values) { q.Set("openid.ns", "http://openid.net/signon/1.1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := steamCallbackQuery(p, testSteamID)
			tt.mutate(q)
			if _, err := p.Verify(context.Background(), q); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSteamProvider_Verify_ReturnToWithQuery_Accepted(t *testing.T) {
	_, p := newSteamTestServer(t, true, "")

	q := steamCallbackQuery(p, testSteamID)
	q.Set("openid.return_to", "https://login.example.com/auth/steam/callback?x=1")
	q.Set("x", "1")

	steamID, err := p.Verify(context.Background(), q)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if steamID != testSteamID {
		t.Errorf("steamID = %q", steamID)
	}
}

func TestSteamProvider_FetchProfile_NoPlayers(t *testing.T) {
	_, p := newSteamTestServer(t, true, "")

	if _, err := p.FetchProfile(context.Background(), testSteamID); err == nil {
		t.Fatal("expected error when no players are returned")
	}
}

func TestSteamProvider_Verify_ReplayedNonce_Rejected(t *testing.T) {
	_, p := newSteamTestServer(t, true, "")

	q := steamCallbackQuery(p, testSteamID)
	if _, err := p.Verify(context.Background(), q); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if _, err := p.Verify(context.Background(), q); err == nil {
		t.Fatal("expected error when the same response_nonce is presented twice")
	}
}

func TestSteamProvider_Verify_StaleNonce_Rejected(t *testing.T) {
	_, p := newSteamTestServer(t, true, "")

	q := steamCallbackQuery(p, testSteamID)
	q.Set("openid.response_nonce", freshNonce(time.Now().Add(-time.Hour)))
	if _, err := p.Verify(context.Background(), q); err == nil {
		t.Fatal("expected error for a response_nonce older than the accepted window")
	}
}

func TestSteamProvider_Verify_UnsignedRequiredField_Rejected(t *testing.T) {
	_, p := newSteamTestServer(t, true, "")

	q := steamCallbackQuery(p, testSteamID)
	q.Set("openid.signed", "signed,op_endpoint,claimed_id,identity,response_nonce,assoc_handle")
	if _, err := p.Verify(context.Background(), q); err == nil {
		t.Fatal("expected error when return_to is not covered by the signature")
	}
}

func TestSteamDiscovery_OnlyResolvesSteamIdentifiers(t *testing.T) {
	d := steamDiscovery{endpoint: "https://steamcommunity.com/openid/login"}

	info := d.Get("https://steamcommunity.com/openid/id/" + testSteamID)
	if info == nil {
		t.Fatal("expected discovered info for a steam claimed_id")
	}
	if info.OpEndpoint() != "https://steamcommunity.com/openid/login" {
		t.Errorf("OpEndpoint = %q", info.OpEndpoint())
	}
	if info.OpLocalID() != info.ClaimedID() {
		t.Errorf("OpLocalID = %q, ClaimedID = %q", info.OpLocalID(), info.ClaimedID())
	}
	if d.Get("https://evil.example.com/openid/id/1") != nil {
		t.Error("expected nil for a foreign claimed_id")
	}
}
