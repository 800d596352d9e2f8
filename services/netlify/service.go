package netlify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/noyaclicks-jpg/crmhost/config"
	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/services/gateway"
)

// Netlify DNS API: https://docs.netlify.com/api/get-started/
type netlifyService struct {
	cfg    *config.NetlifyConfig
	log    logger.Logger
	policy gateway.Policy
	client *http.Client
}

func NewNetlifyService(cfg *config.NetlifyConfig, gatewayCfg *config.GatewayConfig, log logger.Logger) interfaces.DNSProviderService {
	return &netlifyService{
		cfg:    cfg,
		log:    log,
		policy: gateway.PolicyFromConfig(gatewayCfg),
		client: &http.Client{},
	}
}

func (s *netlifyService) doRequest(ctx context.Context, apiToken, method, path string, payload any) ([]byte, error) {
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
	req.Header.Set("Authorization", "Bearer "+apiToken)
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectSpanContextIntoHTTPRequest(req, opentracing.SpanFromContext(ctx))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call Netlify API")
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read Netlify response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, gateway.NewProviderError(enum.ProviderServiceNetlify, resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}

// GetZoneByName lists the account's zones and matches on the hostname. The
// Netlify API has no direct lookup-by-name endpoint. A missing zone is not an
// error; callers get nil and decide whether to create.
func (s *netlifyService) GetZoneByName(ctx context.Context, apiToken, domainName string) (*interfaces.DNSZone, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NetlifyService.GetZoneByName")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)
	span.LogKV("domain", domainName)

	zones, err := gateway.Call(ctx, s.log, enum.ProviderServiceNetlify, "getZoneByName", s.policy, func(ctx context.Context) ([]interfaces.DNSZone, error) {
		responseBody, err := s.doRequest(ctx, apiToken, http.MethodGet, "/dns_zones", nil)
		if err != nil {
			return nil, err
		}
		var zones []interfaces.DNSZone
		if err := json.Unmarshal(responseBody, &zones); err != nil {
			return nil, errors.Wrap(err, "failed to parse Netlify zones response")
		}
		return zones, nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	needle := strings.ToLower(domainName)
	for i := range zones {
		if strings.ToLower(zones[i].Name) == needle {
			span.LogFields(tracingLog.String("result.zoneId", zones[i].ID))
			return &zones[i], nil
		}
	}

	span.LogFields(tracingLog.Bool("result.found", false))
	return nil, nil
}

func (s *netlifyService) CreateZone(ctx context.Context, apiToken, domainName string) (*interfaces.DNSZone, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NetlifyService.CreateZone")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)
	span.LogKV("domain", domainName)

	zone, err := gateway.Call(ctx, s.log, enum.ProviderServiceNetlify, "createZone", s.policy, func(ctx context.Context) (*interfaces.DNSZone, error) {
		payload := map[string]string{"name": domainName}
		responseBody, err := s.doRequest(ctx, apiToken, http.MethodPost, "/dns_zones", payload)
		if err != nil {
			return nil, err
		}
		var zone interfaces.DNSZone
		if err := json.Unmarshal(responseBody, &zone); err != nil {
			return nil, errors.Wrap(err, "failed to parse Netlify zone response")
		}
		return &zone, nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.String("result.zoneId", zone.ID))
	return zone, nil
}

func (s *netlifyService) GetZoneByID(ctx context.Context, apiToken, zoneID string) (*interfaces.DNSZone, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NetlifyService.GetZoneByID")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)
	span.LogKV("zoneId", zoneID)

	zone, err := gateway.Call(ctx, s.log, enum.ProviderServiceNetlify, "getZoneById", s.policy, func(ctx context.Context) (*interfaces.DNSZone, error) {
		responseBody, err := s.doRequest(ctx, apiToken, http.MethodGet, "/dns_zones/"+zoneID, nil)
		if err != nil {
			return nil, err
		}
		var zone interfaces.DNSZone
		if err := json.Unmarshal(responseBody, &zone); err != nil {
			return nil, errors.Wrap(err, "failed to parse Netlify zone response")
		}
		return &zone, nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return zone, nil
}

func (s *netlifyService) DeleteZone(ctx context.Context, apiToken, zoneID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NetlifyService.DeleteZone")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)
	span.LogKV("zoneId", zoneID)

	_, err := gateway.Call(ctx, s.log, enum.ProviderServiceNetlify, "deleteZone", s.policy, func(ctx context.Context) (struct{}, error) {
		_, err := s.doRequest(ctx, apiToken, http.MethodDelete, "/dns_zones/"+zoneID, nil)
		return struct{}{}, err
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (s *netlifyService) TestConnection(ctx context.Context, apiToken string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NetlifyService.TestConnection")
	defer span.Finish()
	tracing.TagComponentProviderClient(span)

	_, err := gateway.Call(ctx, s.log, enum.ProviderServiceNetlify, "testConnection", s.policy, func(ctx context.Context) (struct{}, error) {
		_, err := s.doRequest(ctx, apiToken, http.MethodGet, "/dns_zones", nil)
		return struct{}{}, err
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("netlify connection test failed: %w", err)
	}

	return nil
}
