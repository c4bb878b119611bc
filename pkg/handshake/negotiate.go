package handshake

import "fmt"

// negotiateChain implements §4.5 steps 2-3: intersect supported chains,
// preserving the requester's ordering, then prefer a chain present in the
// requester's preferred tokens, then the responder's, then the first
// common chain with no agreed token.
func negotiateChain(requesterChains []string, requesterTokens map[string]string, selfChains []string, selfTokens map[string]string) (chain, token string, err error) {
	common := intersectPreserveOrder(requesterChains, selfChains)
	if len(common) == 0 {
		return "", "", fmt.Errorf("handshake: no common supported chain")
	}

	for _, c := range common {
		if t, ok := requesterTokens[c]; ok {
			return c, t, nil
		}
	}
	for _, c := range common {
		if t, ok := selfTokens[c]; ok {
			return c, t, nil
		}
	}
	return common[0], "", nil
}

func intersectPreserveOrder(ordered, set []string) []string {
	present := make(map[string]bool, len(set))
	for _, v := range set {
		present[v] = true
	}
	var out []string
	for _, v := range ordered {
		if present[v] {
			out = append(out, v)
		}
	}
	return out
}
