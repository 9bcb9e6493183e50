package commands

import (
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/systmms/credroute/internal/secure"
	"github.com/systmms/credroute/pkg/credential"
)

// presentable converts a result fragment into JSON-friendly values.
func presentable(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case credential.Collection:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = presentable(item)
		}
		return out
	case credential.AttributeMap:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = presentable(item)
		}
		return out
	case credential.PersistentRef:
		return hex.EncodeToString(x)
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return "hex:" + hex.EncodeToString(x)
	case credential.Handle:
		return map[string]any{
			"kind":    x.Kind().String(),
			"class":   string(x.Class()),
			"backend": x.Backend().String(),
		}
	case *x509.Certificate:
		return x.Subject.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case credential.ItemClass:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	return v
}

// writeResult prints a router result. Bare data is written raw so it can be
// piped; everything else is printed as text or JSON.
func writeResult(w io.Writer, res credential.Result, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(presentable(res)); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	}

	if data, ok := res.([]byte); ok {
		p := secure.NewPayload(append([]byte(nil), data...))
		defer p.Destroy()
		_, err := p.WriteTo(w)
		return err
	}

	for i, item := range credential.Items(res) {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := writeText(w, presentable(item)); err != nil {
			return err
		}
	}
	return nil
}

func writeText(w io.Writer, v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		_, err := fmt.Fprintln(w, v)
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s: %v\n", k, m[k]); err != nil {
			return err
		}
	}
	return nil
}
