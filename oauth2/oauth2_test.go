package oauth2_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	oauth2lib "golang.org/x/oauth2"
	"google.golang.org/api/idtoken"

	ea "github.com/panyam/estateauth"
	"github.com/panyam/estateauth/oauth2"
)

// mockOAuthServer is a token endpoint that records the last exchange form
type mockOAuthServer struct {
	server        *httptest.Server
	tokenResponse map[string]any
	tokenError    bool
	delay         time.Duration

	mu       sync.Mutex
	lastForm map[string]string
}

func newMockOAuthServer() *mockOAuthServer {
	mock := &mockOAuthServer{
		tokenResponse: map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     "mock.id.token",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if mock.delay > 0 {
			select {
			case <-time.After(mock.delay):
			case <-r.Context().Done():
				return
			}
		}
		r.ParseForm()
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		mock.mu.Lock()
		mock.lastForm = form
		mock.mu.Unlock()
		if mock.tokenError {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.tokenResponse)
	})
	mock.server = httptest.NewServer(mux)
	return mock
}

func (m *mockOAuthServer) form() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastForm
}

func (m *mockOAuthServer) Close() {
	m.server.Close()
}

// fakeValidator stands in for Google's certificate based verification
type fakeValidator struct {
	payload     *idtoken.Payload
	err         error
	gotToken    string
	gotAudience string
}

func (f *fakeValidator) Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error) {
	f.gotToken, f.gotAudience = idToken, audience
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func newExchanger(mock *mockOAuthServer, validator *fakeValidator) *oauth2.GoogleExchanger {
	base := oauth2.NewBaseExchanger("client-123", "secret-456", oauth2lib.Endpoint{
		TokenURL:  mock.server.URL + "/token",
		AuthStyle: oauth2lib.AuthStyleInParams,
	})
	base.HTTPClient = mock.server.Client()
	return &oauth2.GoogleExchanger{BaseExchanger: base, Validator: validator}
}

func googlePayload() *idtoken.Payload {
	return &idtoken.Payload{
		Issuer:   "https://accounts.google.com",
		Audience: "client-123",
		Subject:  "google-sub-1",
		Claims: map[string]any{
			"email":          "alice@example.com",
			"email_verified": true,
			"name":           "Alice",
			"picture":        "https://lh3.googleusercontent.com/alice.png",
		},
	}
}

func TestGoogleExchangeSuccess(t *testing.T) {
	mock := newMockOAuthServer()
	defer mock.Close()
	validator := &fakeValidator{payload: googlePayload()}
	exchanger := newExchanger(mock, validator)

	identity, err := exchanger.Exchange(context.Background(), "auth-code", "https://app.example.com")
	require.NoError(t, err)

	assert.Equal(t, "google", identity.Provider)
	assert.Equal(t, "google-sub-1", identity.Subject)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.True(t, identity.EmailVerified)
	assert.Equal(t, "Alice", identity.Name)
	assert.Equal(t, "https://lh3.googleusercontent.com/alice.png", identity.Picture)

	form := mock.form()
	assert.Equal(t, "auth-code", form["code"])
	assert.Equal(t, "authorization_code", form["grant_type"])
	assert.Equal(t, "https://app.example.com", form["redirect_uri"])
	assert.Equal(t, "client-123", form["client_id"])
	assert.Equal(t, "secret-456", form["client_secret"])

	assert.Equal(t, "mock.id.token", validator.gotToken)
	assert.Equal(t, "client-123", validator.gotAudience)
}

func TestGoogleExchangeFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mock *mockOAuthServer, validator *fakeValidator, exchanger *oauth2.GoogleExchanger)
	}{
		{
			name: "token endpoint rejects code",
			setup: func(mock *mockOAuthServer, _ *fakeValidator, _ *oauth2.GoogleExchanger) {
				mock.tokenError = true
			},
		},
		{
			name: "missing id token",
			setup: func(mock *mockOAuthServer, _ *fakeValidator, _ *oauth2.GoogleExchanger) {
				delete(mock.tokenResponse, "id_token")
			},
		},
		{
			name: "id token fails verification",
			setup: func(_ *mockOAuthServer, validator *fakeValidator, _ *oauth2.GoogleExchanger) {
				validator.err = errors.New("idtoken: audience provided does not match aud claim")
			},
		},
		{
			name: "wrong issuer",
			setup: func(_ *mockOAuthServer, validator *fakeValidator, _ *oauth2.GoogleExchanger) {
				validator.payload.Issuer = "https://evil.example.com"
			},
		},
		{
			name: "timeout",
			setup: func(mock *mockOAuthServer, _ *fakeValidator, exchanger *oauth2.GoogleExchanger) {
				mock.delay = 500 * time.Millisecond
				exchanger.Timeout = 20 * time.Millisecond
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockOAuthServer()
			defer mock.Close()
			validator := &fakeValidator{payload: googlePayload()}
			exchanger := newExchanger(mock, validator)
			tt.setup(mock, validator, exchanger)

			identity, err := exchanger.Exchange(context.Background(), "auth-code", "https://app.example.com")
			require.Error(t, err)
			assert.Nil(t, identity)
			assert.Equal(t, ea.KindUpstream, ea.KindOf(err))
		})
	}
}

func TestNewGoogleExchangerRequiresCredentials(t *testing.T) {
	_, err := oauth2.NewGoogleExchanger(context.Background(), "", "secret")
	assert.Error(t, err)
}
