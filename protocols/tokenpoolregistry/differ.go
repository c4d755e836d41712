package tokenpoolregistry

// TokenPoolRegistryDiff carries the replacement graph when it changed.
type TokenPoolRegistryDiff struct {
	Data *TokenPoolRegistryView `json:"data,omitempty"`
}

// IsEmpty returns true if the diff contains no data.
func (d TokenPoolRegistryDiff) IsEmpty() bool {
	return d.Data == nil
}

// TokenPoolRegistryDiffer returns the whole new view when the graph grew and
// an empty diff otherwise. The graph is append-only, so growth is detected by
// comparing sizes.
func TokenPoolRegistryDiffer(old, new *TokenPoolRegistryView) TokenPoolRegistryDiff {
	if old.size() == new.size() {
		return TokenPoolRegistryDiff{}
	}
	return TokenPoolRegistryDiff{Data: new.Clone()}
}

// TokenPoolRegistryPatcher applies a diff: an empty diff keeps a copy of the
// previous state, otherwise the carried view replaces it.
func TokenPoolRegistryPatcher(prevState *TokenPoolRegistryView, diff TokenPoolRegistryDiff) (*TokenPoolRegistryView, error) {
	if diff.IsEmpty() {
		return prevState.Clone(), nil
	}
	return diff.Data.Clone(), nil
}
