package tokenregistry

import "fmt"

// Patcher constructs a new token registry state by applying a diff to a
// previous state. The result is ordered by ID.
func Patcher(prevState []Token, diff TokenSystemDiff) ([]Token, error) {
	// Token holds no pointers, so copying values is a deep copy.
	tokens := make(map[uint64]Token, len(prevState))
	for _, token := range prevState {
		tokens[token.ID] = token
	}

	for _, id := range diff.Deletions {
		if _, ok := tokens[id]; !ok {
			return nil, fmt.Errorf("cannot delete unknown token %d", id)
		}
		delete(tokens, id)
	}
	for _, token := range diff.Updates {
		if _, ok := tokens[token.ID]; !ok {
			return nil, fmt.Errorf("cannot update unknown token %d", token.ID)
		}
		tokens[token.ID] = token
	}
	for _, token := range diff.Additions {
		tokens[token.ID] = token
	}

	final := make([]Token, 0, len(tokens))
	for _, token := range tokens {
		final = append(final, token)
	}
	sortTokens(final)
	return final, nil
}
