package forwardemail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noyaclicks-jpg/crmhost/config"
	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/services/gateway"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newTestService(t *testing.T, handler http.HandlerFunc) interfaces.ForwardingProviderService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewForwardEmailService(
		&config.ForwardEmailConfig{URL: server.URL},
		&config.GatewayConfig{MaxRetries: 2, RetryDelayMs: 1, TimeoutSeconds: 2},
		getLogger(),
	)
}

func TestGetDomain_TokenAsBasicAuthUsername(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "fe-token", user)
		assert.Empty(t, pass)
		assert.Equal(t, "/domains/example.com", r.URL.Path)

		json.NewEncoder(w).Encode(interfaces.ForwardingDomain{
			ID:         "fd1",
			Name:       "example.com",
			IsVerified: true,
		})
	})

	domain, err := service.GetDomain(context.Background(), "fe-token", "example.com")

	require.NoError(t, err)
	assert.Equal(t, "fd1", domain.ID)
	assert.True(t, domain.IsVerified)
}

func TestGetDomain_NotFound(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Domain does not exist"}`))
	})

	_, err := service.GetDomain(context.Background(), "fe-token", "example.com")

	require.Error(t, err)
	assert.True(t, gateway.IsNotFound(err))
}

func TestCreateDomain(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/domains", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "example.com", payload["domain"])

		json.NewEncoder(w).Encode(interfaces.ForwardingDomain{ID: "fd1", Name: "example.com"})
	})

	domain, err := service.CreateDomain(context.Background(), "fe-token", "example.com")

	require.NoError(t, err)
	assert.Equal(t, "fd1", domain.ID)
}

func TestCreateDomain_ConflictOn409(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"Domain already exists"}`))
	})

	_, err := service.CreateDomain(context.Background(), "fe-token", "example.com")

	require.Error(t, err)
	assert.True(t, gateway.IsConflict(err))
}

func TestCreateDomain_ConflictNormalizedFrom400(t *testing.T) {
	calls := 0
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Domain already exists on your account"}`))
	})

	_, err := service.CreateDomain(context.Background(), "fe-token", "example.com")

	require.Error(t, err)
	assert.True(t, gateway.IsConflict(err))
	assert.Equal(t, 1, calls)
}

func TestCreateDomain_Plain400IsNotConflict(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid domain name"}`))
	})

	_, err := service.CreateDomain(context.Background(), "fe-token", "bad name")

	require.Error(t, err)
	assert.False(t, gateway.IsConflict(err))
}

func TestAliasLifecycle(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/domains/example.com/aliases":
			var payload interfaces.AliasRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "sales", payload.Name)
			json.NewEncoder(w).Encode(interfaces.ForwardingAlias{
				ID:         "fa1",
				Name:       payload.Name,
				Recipients: payload.Recipients,
				IsEnabled:  true,
			})
		case r.Method == http.MethodPut && r.URL.Path == "/domains/example.com/aliases/fa1":
			var payload interfaces.AliasRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			json.NewEncoder(w).Encode(interfaces.ForwardingAlias{
				ID:         "fa1",
				Name:       payload.Name,
				Recipients: payload.Recipients,
			})
		case r.Method == http.MethodDelete && r.URL.Path == "/domains/example.com/aliases/fa1":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/domains/example.com/aliases":
			json.NewEncoder(w).Encode([]interfaces.ForwardingAlias{{ID: "fa1", Name: "sales"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	created, err := service.CreateAlias(context.Background(), "fe-token", "example.com", interfaces.AliasRequest{
		Name:       "sales",
		Recipients: []string{"a@other.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "fa1", created.ID)

	updated, err := service.UpdateAlias(context.Background(), "fe-token", "example.com", "fa1", interfaces.AliasRequest{
		Name:       "sales",
		Recipients: []string{"b@other.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b@other.com"}, updated.Recipients)

	aliases, err := service.ListAliases(context.Background(), "fe-token", "example.com")
	require.NoError(t, err)
	require.Len(t, aliases, 1)

	err = service.DeleteAlias(context.Background(), "fe-token", "example.com", "fa1")
	require.NoError(t, err)
}

func TestTestConnection_BadToken(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := service.TestConnection(context.Background(), "bad-token")

	require.Error(t, err)
	assert.True(t, gateway.IsAuth(err))
}
