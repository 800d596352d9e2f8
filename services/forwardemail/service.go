package forwardemail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"golang.org/x/net/context"

	"github.com/noyaclicks-jpg/crmhost/config"
	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/services/gateway"
)

// ForwardEmail API: https://forwardemail.net/en/email-api
// Auth is HTTP basic with the API token as the username and an empty password.
type forwardEmailService struct {
	cfg    *config.ForwardEmailConfig
	log    logger.Logger
	policy gateway.Policy
	client *http.Client
}

func NewForwardEmailService(cfg *config.ForwardEmailConfig, gatewayCfg *config.GatewayConfig, log logger.Logger) interfaces.ForwardingProviderService {
	return &forwardEmailService{
		cfg:    cfg,
		log:    log,
		policy: gateway.PolicyFromConfig(gatewayCfg),
		client: &http.Client{},
	}
}

func (s *forwardEmailService) doRequest(ctx context.Context, apiToken, method, path string, payload any) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request payload")
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.URL+path, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.SetBasicAuth(apiToken, "")
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectSpanContextIntoHTTPRequest(req, opentracing.SpanFromContext(ctx))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call ForwardEmail API")
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read ForwardEmail response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, gateway.NewProviderError(enum.ProviderServiceForwardEmail, resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}

func (s *forwardEmailService) GetDomain(ctx context.Context, apiToken, domainName string) (*interfaces.ForwardingDomain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ForwardEmailService.GetDomain")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)
	span.LogKV("domain", domainName)

	domain, err := gateway.Call(ctx, s.log, enum.ProviderServiceForwardEmail, "getDomain", s.policy, func(ctx context.Context) (*interfaces.ForwardingDomain, error) {
		responseBody, err := s.doRequest(ctx, apiToken, http.MethodGet, "/domains/"+domainName, nil)
		if err != nil {
			return nil, err
		}
		var domain interfaces.ForwardingDomain
		if err := json.Unmarshal(responseBody, &domain); err != nil {
			return nil, errors.Wrap(err, "failed to parse ForwardEmail domain response")
		}
		return &domain, nil
	})
	if err != nil {
		if !gateway.IsNotFound(err) {
			tracing.TraceErr(span, err)
		}
		return nil, err
	}

	span.LogFields(tracingLog.Bool("result.verified", domain.IsVerified))
	return domain, nil
}

// CreateDomain registers the domain for forwarding. The provider reports an
// existing registration with a 409 or a 400 whose body says the domain
// already exists; both surface as a conflict so callers can treat the
// condition as benign.
func (s *forwardEmailService) CreateDomain(ctx context.Context, apiToken, domainName string) (*interfaces.ForwardingDomain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ForwardEmailService.CreateDomain")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)
	span.LogKV("domain", domainName)

	domain, err := gateway.Call(ctx, s.log, enum.ProviderServiceForwardEmail, "createDomain", s.policy, func(ctx context.Context) (*interfaces.ForwardingDomain, error) {
		payload := map[string]string{"domain": domainName}
		responseBody, err := s.doRequest(ctx, apiToken, http.MethodPost, "/domains", payload)
		if err != nil {
			return nil, normalizeConflict(err)
		}
		var domain interfaces.ForwardingDomain
		if err := json.Unmarshal(responseBody, &domain); err != nil {
			return nil, errors.Wrap(err, "failed to parse ForwardEmail domain response")
		}
		return &domain, nil
	})
	if err != nil {
		if !gateway.IsConflict(err) {
			tracing.TraceErr(span, err)
		}
		return nil, err
	}

	span.LogFields(tracingLog.String("result.domainId", domain.ID))
	return domain, nil
}

func (s *forwardEmailService) ListAliases(ctx context.Context, apiToken, domainName string) ([]interfaces.ForwardingAlias, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ForwardEmailService.ListAliases")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)
	span.LogKV("domain", domainName)

	aliases, err := gateway.Call(ctx, s.log, enum.ProviderServiceForwardEmail, "listAliases", s.policy, func(ctx context.Context) ([]interfaces.ForwardingAlias, error) {
		responseBody, err := s.doRequest(ctx, apiToken, http.MethodGet, "/domains/"+domainName+"/aliases", nil)
		if err != nil {
			return nil, err
		}
		var aliases []interfaces.ForwardingAlias
		if err := json.Unmarshal(responseBody, &aliases); err != nil {
			return nil, errors.Wrap(err, "failed to parse ForwardEmail aliases response")
		}
		return aliases, nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("result.count", len(aliases)))
	return aliases, nil
}

func (s *forwardEmailService) CreateAlias(ctx context.Context, apiToken, domainName string, alias interfaces.AliasRequest) (*interfaces.ForwardingAlias, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ForwardEmailService.CreateAlias")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)
	span.LogKV("domain", domainName, "alias", alias.Name)

	created, err := gateway.Call(ctx, s.log, enum.ProviderServiceForwardEmail, "createAlias", s.policy, func(ctx context.Context) (*interfaces.ForwardingAlias, error) {
		responseBody, err := s.doRequest(ctx, apiToken, http.MethodPost, "/domains/"+domainName+"/aliases", alias)
		if err != nil {
			return nil, err
		}
		var created interfaces.ForwardingAlias
		if err := json.Unmarshal(responseBody, &created); err != nil {
			return nil, errors.Wrap(err, "failed to parse ForwardEmail alias response")
		}
		return &created, nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.String("result.aliasId", created.ID))
	return created, nil
}

func (s *forwardEmailService) UpdateAlias(ctx context.Context, apiToken, domainName, aliasID string, alias interfaces.AliasRequest) (*interfaces.ForwardingAlias, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ForwardEmailService.UpdateAlias")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)
	span.LogKV("domain", domainName, "aliasId", aliasID)

	updated, err := gateway.Call(ctx, s.log, enum.ProviderServiceForwardEmail, "updateAlias", s.policy, func(ctx context.Context) (*interfaces.ForwardingAlias, error) {
		responseBody, err := s.doRequest(ctx, apiToken, http.MethodPut, "/domains/"+domainName+"/aliases/"+aliasID, alias)
		if err != nil {
			return nil, err
		}
		var updated interfaces.ForwardingAlias
		if err := json.Unmarshal(responseBody, &updated); err != nil {
			return nil, errors.Wrap(err, "failed to parse ForwardEmail alias response")
		}
		return &updated, nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return updated, nil
}

func (s *forwardEmailService) DeleteAlias(ctx context.Context, apiToken, domainName, aliasID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ForwardEmailService.DeleteAlias")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)
	span.LogKV("domain", domainName, "aliasId", aliasID)

	_, err := gateway.Call(ctx, s.log, enum.ProviderServiceForwardEmail, "deleteAlias", s.policy, func(ctx context.Context) (struct{}, error) {
		_, err := s.doRequest(ctx, apiToken, http.MethodDelete, "/domains/"+domainName+"/aliases/"+aliasID, nil)
		return struct{}{}, err
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (s *forwardEmailService) TestConnection(ctx context.Context, apiToken string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ForwardEmailService.TestConnection")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)

	_, err := gateway.Call(ctx, s.log, enum.ProviderServiceForwardEmail, "testConnection", s.policy, func(ctx context.Context) (struct{}, error) {
		_, err := s.doRequest(ctx, apiToken, http.MethodGet, "/domains", nil)
		return struct{}{}, err
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("forwardemail connection test failed: %w", err)
	}

	return nil
}

func normalizeConflict(err error) error {
	var perr *gateway.ProviderError
	if errors.As(err, &perr) && perr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(perr.Body), "already exists") {
		return gateway.NewProviderError(perr.Service, http.StatusConflict, perr.Body)
	}
	return err
}
