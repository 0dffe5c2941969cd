package provider

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sheetsync/sheetsync/pkg/errors"
)

// fetchPayload is the normalized result of a read call. Rows is set when the
// body decoded to a recognized row shape; Raw carries the body verbatim when
// it was not valid JSON (parse degradation, not an error).
type fetchPayload struct {
	Rows []Row
	Raw  string
}

// writeResult is the normalized result of a write call.
type writeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// wireClient speaks the remote collection store protocol: GET
// <endpoint>?action=<action> for reads, POST JSON {action, ...} for writes.
// It owns the single normalization step that maps every accepted wire shape
// into canonical rows.
type wireClient struct {
	endpoint   string
	httpClient *http.Client
}

func newWireClient(endpoint string) *wireClient {
	return &wireClient{
		endpoint: endpoint,
		// Deadlines come from the per-request context
		httpClient: &http.Client{},
	}
}

// get issues a read for one collection and normalizes the response.
func (w *wireClient) get(ctx context.Context, schema Schema) (*fetchPayload, error) {
	u, err := url.Parse(w.endpoint)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "invalid provider endpoint").WithCause(err)
	}
	q := u.Query()
	q.Set("action", schema.Actions.Get)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "failed to build request").WithCause(err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, w.transportError(ctx, err, schema.Actions.Get)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, w.transportError(ctx, err, schema.Actions.Get)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewError(errors.ErrCodeRemoteError,
			fmt.Sprintf("provider returned status %d", resp.StatusCode)).
			WithOperation(schema.Actions.Get)
	}

	return normalizeResponse(body, schema)
}

// post issues a write with the given action and payload fields.
func (w *wireClient) post(ctx context.Context, action string, payload map[string]interface{}) (*writeResult, error) {
	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["action"] = action

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "failed to encode request body").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "failed to build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, w.transportError(ctx, err, action)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, w.transportError(ctx, err, action)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewError(errors.ErrCodeRemoteError,
			fmt.Sprintf("provider returned status %d", resp.StatusCode)).
			WithOperation(action)
	}

	var wrapper struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, errors.NewError(errors.ErrCodeParseError, "unexpected write response body").
			WithOperation(action).WithCause(err)
	}

	if !wrapper.Success {
		msg := wrapper.Error
		if msg == "" {
			msg = wrapper.Message
		}
		if msg == "" {
			msg = "provider reported failure"
		}
		return nil, errors.NewError(errors.ErrCodeRemoteError, msg).WithOperation(action)
	}

	return &writeResult{Success: true, Message: wrapper.Message}, nil
}

// transportError maps a transport-level failure to the error taxonomy. A
// context deadline means the hard per-request timeout fired.
func (w *wireClient) transportError(ctx context.Context, err error, operation string) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewError(errors.ErrCodeOperationTimeout, "request exceeded deadline").
			WithOperation(operation).WithCause(err)
	}
	return errors.NewError(errors.ErrCodeNetworkError, "transport failure").
		WithOperation(operation).WithCause(err)
}

// normalizeResponse maps any accepted read wire shape into canonical rows:
// an object wrapper {success, data} or a bare JSON value, with rows as
// either keyed objects or positional arrays. A body that is not JSON at all
// degrades to an opaque raw payload.
func normalizeResponse(body []byte, schema Schema) (*fetchPayload, error) {
	var value interface{}
	if err := json.Unmarshal(body, &value); err != nil {
		// Not JSON: carry the raw text through rather than failing
		return &fetchPayload{Raw: string(body)}, nil
	}

	data := value
	if wrapper, ok := value.(map[string]interface{}); ok {
		if success, hasSuccess := wrapper["success"]; hasSuccess {
			if ok, _ := success.(bool); !ok {
				msg := "provider reported failure"
				if errMsg, _ := wrapper["error"].(string); errMsg != "" {
					msg = errMsg
				}
				return nil, errors.NewError(errors.ErrCodeRemoteError, msg).
					WithOperation(schema.Actions.Get)
			}
			data = wrapper["data"]
		}
	}

	rows, err := normalizeRows(data, schema)
	if err != nil {
		return nil, err
	}
	return &fetchPayload{Rows: rows}, nil
}

// normalizeRows converts keyed-object or positional-array rows into Rows,
// mapping positions to named fields per the collection schema.
func normalizeRows(data interface{}, schema Schema) ([]Row, error) {
	if data == nil {
		return []Row{}, nil
	}

	items, ok := data.([]interface{})
	if !ok {
		return nil, errors.NewError(errors.ErrCodeParseError, "response data is not a row list").
			WithCollection(schema.Name)
	}

	rows := make([]Row, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case map[string]interface{}:
			rows = append(rows, Row(v))
		case []interface{}:
			row := make(Row, len(schema.Fields))
			for pos, field := range schema.Fields {
				if pos < len(v) {
					row[field] = v[pos]
				}
			}
			rows = append(rows, row)
		default:
			return nil, errors.NewError(errors.ErrCodeParseError,
				fmt.Sprintf("row %d has unsupported shape %T", i, item)).
				WithCollection(schema.Name)
		}
	}

	return rows, nil
}
