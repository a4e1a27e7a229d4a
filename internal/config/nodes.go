package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ErrUnknownNode is returned when input is neither a ws(s) URL nor close to a
// preset name.
var ErrUnknownNode = errors.New("unknown node")

// maxPresetDistance bounds how many edits a typed preset name may be off by.
const maxPresetDistance = 2

// Node is a resolved endpoint. Name is empty for raw URLs.
type Node struct {
	Name string
	URL  string
}

// ResolveNode turns user input into an endpoint: a ws:// or wss:// URL is
// used as is, otherwise the input names a preset, allowing small typos.
func ResolveNode(input string, presets map[string]string) (Node, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Node{}, fmt.Errorf("%w: empty input", ErrUnknownNode)
	}
	if u, err := url.Parse(input); err == nil && (u.Scheme == "ws" || u.Scheme == "wss") && u.Host != "" {
		return Node{URL: input}, nil
	}

	names := PresetNames(presets)
	needle := strings.ToLower(input)
	for _, name := range names {
		if strings.ToLower(name) == needle {
			return Node{Name: name, URL: presets[name]}, nil
		}
	}

	best, bestDist, tied := "", maxPresetDistance+1, false
	for _, name := range names {
		d := levenshtein.ComputeDistance(needle, strings.ToLower(name))
		switch {
		case d < bestDist:
			best, bestDist, tied = name, d, false
		case d == bestDist:
			tied = true
		}
	}
	if best == "" || tied {
		return Node{}, fmt.Errorf("%w: %q", ErrUnknownNode, input)
	}
	return Node{Name: best, URL: presets[best]}, nil
}

// PresetNames lists preset names in display order.
func PresetNames(presets map[string]string) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
