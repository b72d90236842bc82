package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

// apiError is the error half of the response envelope.
type apiError struct {
	Status  int
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	if len(e.Details) > 0 && string(e.Details) != "null" {
		msg += "\n" + string(e.Details)
	}
	return msg
}

type client struct {
	base string
	http *http.Client
}

func newClient() *client {
	return &client{
		base: strings.TrimRight(apiURL, "/"),
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

// call sends a request and decodes the envelope's data into out.
func (c *client) call(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *apiError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	if !env.Success {
		if env.Error == nil {
			return fmt.Errorf("request failed: %s", resp.Status)
		}
		env.Error.Status = resp.StatusCode
		return env.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (c *client) postJSON(ctx context.Context, path string, payload, out any) error {
	var body io.Reader
	ct := ""
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body, ct = bytes.NewReader(raw), "application/json"
	}
	return c.call(ctx, http.MethodPost, path, body, ct, out)
}

func (c *client) upload(ctx context.Context, path, batchID string, files []string, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if batchID != "" {
		if err := w.WriteField("batch_id", batchID); err != nil {
			return err
		}
	}
	if user := os.Getenv("USER"); user != "" {
		if err := w.WriteField("created_by", user); err != nil {
			return err
		}
	}
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, filepath.Base(name)))
		h.Set("Content-Type", http.DetectContentType(data))
		part, err := w.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := part.Write(data); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.call(ctx, http.MethodPost, path, &buf, w.FormDataContentType(), out)
}

// parseAdjustments turns "fileID=amount" pairs into a request map.
func parseAdjustments(pairs []string) (model.Adjustments, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(model.Adjustments, len(pairs))
	for _, p := range pairs {
		id, amount, ok := strings.Cut(p, "=")
		if !ok || id == "" || amount == "" {
			return nil, fmt.Errorf("adjustment %q must look like FILE_ID=AMOUNT", p)
		}
		out[id] = model.RawAmount(amount)
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
