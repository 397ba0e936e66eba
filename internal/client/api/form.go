package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"slices"
	"strconv"
	"strings"

	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/model"
)

// encodeMultipart writes non-empty values and the optional file as multipart/form-data.
func encodeMultipart(f model.Form) (body *bytes.Buffer, contentType string, err error) {
	body = &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for _, k := range sortedKeys(f.Values) {
		v := f.Values[k]
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	if f.File != nil && f.File.Body != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.File.Field, f.File.Name))
		ct := f.File.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := io.Copy(part, f.File.Body); err != nil {
			return nil, "", fmt.Errorf("copy file %s: %w", f.File.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

// encodeJSON writes non-empty values as a JSON object; fields listed in
// bools are sent as booleans.
func encodeJSON(f model.Form, bools []string) ([]byte, error) {
	out := make(map[string]any, len(f.Values))
	for k, v := range f.Values {
		if slices.Contains(bools, k) {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("%w: field %s: %q is not a boolean", errs.ErrValidation, k, v)
			}
			out[k] = b
			continue
		}
		if v == "" {
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
