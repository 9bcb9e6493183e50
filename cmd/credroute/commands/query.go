package commands

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	dserrors "github.com/systmms/credroute/internal/errors"
	"github.com/systmms/credroute/pkg/credential"
)

var returnKeys = map[string]string{
	"ref":            credential.ReturnRef,
	"persistent_ref": credential.ReturnPersistentRef,
	"data":           credential.ReturnData,
	"attributes":     credential.ReturnAttributes,
}

// queryFlags are the flags shared by every command that builds an attribute map.
type queryFlags struct {
	class   string
	attrs   []string
	limit   string
	returns []string
	backend string
	authUI  string
}

func (f *queryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.class, "class", "", "Item class: generic_password, internet_password, certificate, key or identity")
	cmd.Flags().StringArrayVar(&f.attrs, "attr", nil, "Attribute as key=value, or key:type=value with type int, bool, hex, base64 or time")
	cmd.Flags().StringVar(&f.backend, "backend", "", "Restrict the request to the legacy or modern store")
	cmd.Flags().StringVar(&f.authUI, "auth-ui", "", "Prompt policy: allow, fail or skip")
}

func (f *queryFlags) bindSearch(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.limit, "limit", "", "Maximum number of matches, or 'all'")
}

func (f *queryFlags) bindReturn(cmd *cobra.Command, defaults []string) {
	cmd.Flags().StringSliceVar(&f.returns, "return", defaults, "Result parts: ref, persistent_ref, data, attributes")
}

// attributes builds the request map from the parsed flags.
func (f *queryFlags) attributes() (credential.AttributeMap, error) {
	m, err := parseAttrs("attr", f.attrs)
	if err != nil {
		return nil, err
	}
	if f.class != "" {
		class, err := credential.ParseItemClass(f.class)
		if err != nil {
			return nil, dserrors.ArgumentError{
				Flag:       "class",
				Value:      f.class,
				Message:    "unknown item class",
				Suggestion: "Use generic_password, internet_password, certificate, key or identity",
			}
		}
		m[credential.AttrClass] = class
	}
	if f.limit != "" {
		limit, err := parseLimit(f.limit)
		if err != nil {
			return nil, err
		}
		m[credential.MatchLimit] = limit
	}
	for _, r := range f.returns {
		key, ok := returnKeys[strings.TrimSpace(r)]
		if !ok {
			return nil, dserrors.ArgumentError{
				Flag:       "return",
				Value:      r,
				Message:    "unknown result part",
				Suggestion: "Use ref, persistent_ref, data or attributes",
			}
		}
		m[key] = true
	}
	if f.backend != "" {
		m[credential.UseBackend] = credential.Backend(f.backend)
	}
	if f.authUI != "" {
		m[credential.UseAuthUI] = credential.AuthUI(f.authUI)
	}
	return m, nil
}

func parseLimit(s string) (any, error) {
	if s == credential.MatchLimitAll {
		return credential.MatchLimitAll, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return nil, dserrors.ArgumentError{
			Flag:       "limit",
			Value:      s,
			Message:    "expected a positive number or 'all'",
			Suggestion: "Use --limit 5 or --limit all",
		}
	}
	return n, nil
}

func parseAttrs(flag string, pairs []string) (credential.AttributeMap, error) {
	m := credential.AttributeMap{}
	for _, pair := range pairs {
		key, value, err := parseAttr(pair)
		if err != nil {
			if argErr, ok := err.(dserrors.ArgumentError); ok {
				argErr.Flag = flag
				return nil, argErr
			}
			return nil, err
		}
		m[key] = value
	}
	return m, nil
}

// parseAttr parses key=value or key:type=value.
func parseAttr(pair string) (string, any, error) {
	key, raw, ok := strings.Cut(pair, "=")
	if !ok || key == "" {
		return "", nil, dserrors.ArgumentError{
			Value:      pair,
			Message:    "expected key=value",
			Suggestion: "Write attributes as service=mail or creator:int=42",
		}
	}
	key, kind, typed := strings.Cut(key, ":")
	if !typed {
		return key, raw, nil
	}

	var (
		v   any
		err error
	)
	switch kind {
	case "string":
		v = raw
	case "int":
		v, err = strconv.Atoi(raw)
	case "bool":
		v, err = strconv.ParseBool(raw)
	case "hex":
		v, err = hex.DecodeString(raw)
	case "base64":
		v, err = base64.StdEncoding.DecodeString(raw)
	case "time":
		v, err = time.Parse(time.RFC3339, raw)
	default:
		return "", nil, dserrors.ArgumentError{
			Value:      pair,
			Message:    fmt.Sprintf("unknown value type %q", kind),
			Suggestion: "Use one of string, int, bool, hex, base64 or time",
		}
	}
	if err != nil {
		return "", nil, dserrors.ArgumentError{
			Value:   pair,
			Message: fmt.Sprintf("cannot parse %s value: %v", kind, err),
		}
	}
	return key, v, nil
}
