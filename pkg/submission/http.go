package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/model"
)

// ErrUnexpectedStatus wraps responses the HTTP sink cannot interpret.
var ErrUnexpectedStatus = errors.New("submission: unexpected status")

// HTTPOption configures an HTTPSink.
type HTTPOption func(*HTTPSink)

// WithHTTPClient swaps the underlying client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(s *HTTPSink) {
		if hc != nil {
			s.client = hc
		}
	}
}

// WithHTTPLogger attaches a logger.
func WithHTTPLogger(l *zap.Logger) HTTPOption {
	return func(s *HTTPSink) {
		if l != nil {
			s.logger = l
		}
	}
}

// HTTPSink posts submissions as JSON to a remote endpoint.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPSink posts to endpoint.
func NewHTTPSink(endpoint string, opts ...HTTPOption) *HTTPSink {
	s := &HTTPSink{endpoint: endpoint, client: &http.Client{Timeout: 15 * time.Second}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Payload is the body the HTTP sink sends.
type Payload struct {
	FormID   string           `json:"formId,omitempty"`
	ClinicID string           `json:"clinicId,omitempty"`
	Values   model.FormValues `json:"values"`
}

// Rejection is the error body a remote sink may return.
type Rejection struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Submit posts values. 409 becomes a conflict rejection and 400/422 a
// validation rejection carrying any field errors in the body.
func (s *HTTPSink) Submit(ctx context.Context, form model.FormModel, values model.FormValues) error {
	body, err := json.Marshal(Payload{FormID: form.ID, ClinicID: form.ClinicID, Values: values})
	if err != nil {
		return fmt.Errorf("submission: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submission: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("submission: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var kind directory.RejectionKind
	switch resp.StatusCode {
	case http.StatusConflict:
		kind = directory.RejectionConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = directory.RejectionValidation
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.logger.Warn("submission endpoint failed", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var rej Rejection
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rej); err != nil {
		s.logger.Debug("rejection body not decodable", zap.Error(err))
	}
	if rej.Message == "" {
		rej.Message = http.StatusText(resp.StatusCode)
	}
	return &directory.RejectionError{Kind: kind, Message: rej.Message, Fields: rej.Fields}
}
