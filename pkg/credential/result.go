package credential

// Result is the shaped outcome of a find or add. Depending on the requested result
// types and match limit it holds one fragment (Handle, PersistentRef, []byte or
// AttributeMap), a container AttributeMap carrying several fragments under the
// value_* keys, or a Collection of either.
type Result any

// Collection is an ordered list of fragments or containers.
type Collection []any

// Items flattens r into its elements: a Collection yields its members, nil yields
// nothing, and anything else yields itself.
func Items(r Result) []any {
	switch v := r.(type) {
	case nil:
		return nil
	case Collection:
		return v
	}
	return []any{r}
}
