package harvest

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/kinabalu-io/telemetryd/internal/reservoir"
)

// HTTPUploader is the default Uploader: it POSTs each reduced payload to the
// remote ingestion service over HTTPS. The concrete wire encoding and the
// rest of the HTTPS transport contract are out of scope (spec.md §1) — this
// only needs to get bytes to a URL and classify the response into one of
// the three outcomes harvest folding understands (spec.md §4.3, §7).
type HTTPUploader struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPUploader builds an HTTPUploader. tlsConfig may be nil to use the
// default system trust store; a non-nil tlsConfig is used as given, and no
// CA bundle is loaded here.
func NewHTTPUploader(baseURL string, tlsConfig *tls.Config) *HTTPUploader {
	return &HTTPUploader{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		},
	}
}

// Upload implements Uploader by POSTing payload to BaseURL/<kind>?run_id=<runToken>,
// matching spec.md §4.4's note that the application-run identity travels in
// the request URL rather than in the payload body.
func (u *HTTPUploader) Upload(ctx context.Context, runToken string, kind Kind, payload reservoir.Payload) (Outcome, error) {
	url := fmt.Sprintf("%s/%s?run_id=%s", u.BaseURL, kind, runToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return RejectedPermanent, fmt.Errorf("harvest: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := u.Client.Do(req)
	if err != nil {
		// Network-level failure: treat as transient, matching spec.md §7's
		// "remote 5xx or network" -> rejected-retry row.
		return RejectedRetry, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Accepted, nil
	case resp.StatusCode >= 500:
		return RejectedRetry, fmt.Errorf("harvest: upload %s: server error %d", kind, resp.StatusCode)
	default:
		return RejectedPermanent, fmt.Errorf("harvest: upload %s: rejected with status %d", kind, resp.StatusCode)
	}
}
