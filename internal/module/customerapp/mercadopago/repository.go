package mercadopago

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fuegoaustral/ticketera-sub000/pkg/errors"
	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
	"github.com/sirupsen/logrus"
)

// MercadoPagoRepository reads payment state from the provider. Every failure
// is reported as an upstream error so callers leave order state untouched.
type MercadoPagoRepository interface {
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
	SearchMerchantOrders(ctx context.Context, externalReference string) ([]MerchantOrder, error)
}

type mercadoPagoRepository struct {
	baseURL     string
	accessToken string
	timeout     time.Duration
	logger      *logrus.Logger
	hc          *http.Client
}

func NewMercadoPagoRepository(baseURL string, accessToken string, timeout time.Duration, logger *logrus.Logger, hc *http.Client) MercadoPagoRepository {
	return &mercadoPagoRepository{
		baseURL:     baseURL,
		accessToken: accessToken,
		timeout:     timeout,
		logger:      logger,
		hc:          hc,
	}
}

func (r *mercadoPagoRepository) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	entry := r.logger.WithContext(ctx).WithField("path", path)

	hr, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		entry.WithError(err).Error()
		return nil, errors.New(http.StatusBadGateway, status.UPSTREAM_UNAVAILABLE, "an error occurred while calling mercadopago")
	}

	hr.Header.Add("Accept", "application/json")
	hr.Header.Add("Authorization", fmt.Sprintf("Bearer %s", r.accessToken))

	hresp, err := r.hc.Do(hr)
	if err != nil {
		entry.WithError(err).Error()
		return nil, errors.New(http.StatusBadGateway, status.UPSTREAM_UNAVAILABLE, "an error occurred while calling mercadopago")
	}

	defer hresp.Body.Close()

	respBody, err := io.ReadAll(hresp.Body)
	if err != nil {
		entry.WithError(err).Error()
		return nil, errors.New(http.StatusBadGateway, status.UPSTREAM_UNAVAILABLE, "an error occurred while calling mercadopago")
	}

	if hresp.StatusCode != http.StatusOK {
		entry.WithFields(logrus.Fields{
			"statusCode": hresp.StatusCode,
			"body":       string(respBody),
		}).Error("unexpected response from mercadopago")
		return nil, errors.New(http.StatusBadGateway, status.UPSTREAM_UNAVAILABLE, "an error occurred while calling mercadopago")
	}

	return respBody, nil
}

// GetPayment implements MercadoPagoRepository.
func (r *mercadoPagoRepository) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	body, err := r.get(ctx, "/v1/payments/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return Payment{}, err
	}

	var p Payment
	if err := json.Unmarshal(body, &p); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return Payment{}, errors.New(http.StatusBadGateway, status.UPSTREAM_UNAVAILABLE, "malformed payment from mercadopago")
	}
	p.Raw = body

	return p, nil
}

// SearchMerchantOrders implements MercadoPagoRepository.
func (r *mercadoPagoRepository) SearchMerchantOrders(ctx context.Context, externalReference string) ([]MerchantOrder, error) {
	body, err := r.get(ctx, "/merchant_orders/search", url.Values{"external_reference": []string{externalReference}})
	if err != nil {
		return nil, err
	}

	var resp merchantOrderSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error()
		return nil, errors.New(http.StatusBadGateway, status.UPSTREAM_UNAVAILABLE, "malformed merchant order search from mercadopago")
	}

	return resp.Elements, nil
}
