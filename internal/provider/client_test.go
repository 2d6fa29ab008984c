package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvest/brokerlink/internal/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*SnapTradeClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL:     server.URL,
		ClientID:    "client-1",
		ConsumerKey: "consumer-key",
	}, logger.NewNop(), nil)
	return client, server
}

func TestClientRegisterUser(t *testing.T) {
	t.Run("sends credentials and decodes the secret", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/snapTrade/registerUser", r.URL.Path)
			assert.Equal(t, "client-1", r.URL.Query().Get("clientId"))
			assert.NotEmpty(t, r.URL.Query().Get("timestamp"))
			assert.NotEmpty(t, r.Header.Get("Signature"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "user-1", body["userId"])

			json.NewEncoder(w).Encode(RegisteredUser{UserID: "user-1", UserSecret: "secret-1"})
		})

		user, err := client.RegisterUser(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, "secret-1", user.UserSecret)
	})

	t.Run("decodes collision payload including the secret", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail":"User with this userId already exists","userSecret":"recovered"}`))
		})

		_, err := client.RegisterUser(context.Background(), "user-1")
		require.Error(t, err)
		assert.True(t, IsUserExists(err))
		assert.Equal(t, "recovered", ErrorSecret(err))
	})

	t.Run("non-JSON error body is preserved as detail", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream timeout"))
		})

		_, err := client.RegisterUser(context.Background(), "user-1")
		require.Error(t, err)
		assert.Equal(t, "upstream timeout", ErrorDetail(err))
	})
}

func TestClientLoginUser(t *testing.T) {
	t.Run("omits unset optional fields from the body", func(t *testing.T) {
		var body map[string]interface{}
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			json.NewEncoder(w).Encode(LoginRedirect{RedirectURI: "https://portal.example/s"})
		})

		redirect, err := client.LoginUser(context.Background(), LoginRequest{
			UserID:                  "user-1",
			UserSecret:              "secret-1",
			ImmediateRedirect:       true,
			ConnectionPortalVersion: "v4",
		})

		require.NoError(t, err)
		assert.Equal(t, "https://portal.example/s", redirect.RedirectURI)
		assert.Equal(t, true, body["immediateRedirect"])
		assert.Equal(t, "v4", body["connectionPortalVersion"])
		assert.NotContains(t, body, "broker")
		assert.NotContains(t, body, "customRedirect")
	})

	t.Run("includes broker and redirect when set", func(t *testing.T) {
		var body map[string]interface{}
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "user-1", r.URL.Query().Get("userId"))
			assert.Equal(t, "secret-1", r.URL.Query().Get("userSecret"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			json.NewEncoder(w).Encode(LoginRedirect{RedirectURI: "https://portal.example/s"})
		})

		_, err := client.LoginUser(context.Background(), LoginRequest{
			UserID:         "user-1",
			UserSecret:     "secret-1",
			Broker:         "QUESTRADE",
			CustomRedirect: "https://app.example/done",
		})

		require.NoError(t, err)
		assert.Equal(t, "QUESTRADE", body["broker"])
		assert.Equal(t, "https://app.example/done", body["customRedirect"])
	})
}

func TestClientListPositions(t *testing.T) {
	t.Run("decodes mixed symbol shapes and quoted numbers", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/accounts/acct-1/positions", r.URL.Path)
			w.Write([]byte(`[
				{"symbol":{"symbol":"AAPL","description":"Apple Inc"},"units":10,"price":"150.5","book_value":1400},
				{"symbol":"VTI","units":"2","price":200}
			]`))
		})

		positions, err := client.ListPositions(context.Background(), "user-1", "secret-1", "acct-1")
		require.NoError(t, err)
		require.Len(t, positions, 2)

		assert.Equal(t, "AAPL", positions[0].Symbol.Symbol)
		assert.Equal(t, "Apple Inc", positions[0].Symbol.Description)
		assert.Equal(t, Number(150.5), positions[0].Price)
		assert.Equal(t, Number(1400), positions[0].BookValue)

		assert.Equal(t, "VTI", positions[1].Symbol.Symbol)
		assert.Equal(t, Number(2), positions[1].Quantity)
	})

	t.Run("not-ready status is classified", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooEarly)
			w.Write([]byte(`{"detail":"Initial sync not completed"}`))
		})

		_, err := client.ListPositions(context.Background(), "user-1", "secret-1", "acct-1")
		require.Error(t, err)
		assert.True(t, IsNotReady(err))
		assert.False(t, IsUserExists(err))
	})
}

func TestClientSignature(t *testing.T) {
	var gotSignature, gotQuery string
	var gotBody []byte
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("Signature")
		gotQuery = r.URL.RawQuery
		var raw json.RawMessage
		json.NewDecoder(r.Body).Decode(&raw)
		gotBody = raw
		json.NewEncoder(w).Encode(RegisteredUser{UserID: "user-1", UserSecret: "s"})
	})

	_, err := client.RegisterUser(context.Background(), "user-1")
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]interface{}{
		"content": json.RawMessage(gotBody),
		"path":    "/api/v1/snapTrade/registerUser",
		"query":   gotQuery,
	})
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("consumer-key"))
	mac.Write(payload)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, gotSignature)
}

func TestClientDeleteUser(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/snapTrade/deleteUser", r.URL.Path)
		assert.Equal(t, "user-1", r.URL.Query().Get("userId"))
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, client.DeleteUser(context.Background(), "user-1"))
}

func TestClientCheckStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(APIStatus{Version: 151, Online: true})
	})

	status, err := client.CheckStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Online)
	assert.Equal(t, 151, status.Version)
}
