package common

import "strings"

// AnyContains returns true if any key in the set contains the substring.
func AnyContains(set map[string]struct{}, sub string) bool {
	for s := range set {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
