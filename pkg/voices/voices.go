// Package voices maps narration styles to provider voice identifiers.
// Styles are a closed enumeration: unknown values fail resolution instead
// of silently falling back, and every alias resolves to one canonical
// style so cache keys stay stable across spellings.
package voices

import (
	"fmt"
	"strings"
)

// Style is a canonical narration voice style.
type Style string

const (
	StyleNarrator  Style = "narrator"
	StyleWarm      Style = "warm"
	StyleBright    Style = "bright"
	StyleCalm      Style = "calm"
	StyleEnergetic Style = "energetic"
	StyleDeep      Style = "deep"
)

// Provider identifies a synthesis backend for voice ID lookup.
type Provider string

const (
	ProviderElevenLabs Provider = "elevenlabs"
	ProviderDeepgram   Provider = "deepgram"
	ProviderMock       Provider = "mock"
)

var aliases = map[string]Style{
	"narrator":      StyleNarrator,
	"default":       StyleNarrator,
	"neutral":       StyleNarrator,
	"storyteller":   StyleNarrator,
	"warm":          StyleWarm,
	"friendly":      StyleWarm,
	"bright":        StyleBright,
	"cheerful":      StyleBright,
	"calm":          StyleCalm,
	"soothing":      StyleCalm,
	"energetic":     StyleEnergetic,
	"excited":       StyleEnergetic,
	"deep":          StyleDeep,
	"authoritative": StyleDeep,
}

// Total per-provider mapping. Every Style must appear under every Provider.
var voiceIDs = map[Provider]map[Style]string{
	ProviderElevenLabs: {
		StyleNarrator:  "onwK4e9ZLuTAKqWW03F9",
		StyleWarm:      "EXAVITQu4vr4xnSDxMaL",
		StyleBright:    "jBpfuIE2acCO8z3wKNLl",
		StyleCalm:      "oWAxZDx7w5VEj9dCyTzz",
		StyleEnergetic: "pNInz6obpgDQGcFmaJgB",
		StyleDeep:      "N2lVS1w4EtoT3dr4eOWO",
	},
	ProviderDeepgram: {
		StyleNarrator:  "aura-asteria-en",
		StyleWarm:      "aura-luna-en",
		StyleBright:    "aura-stella-en",
		StyleCalm:      "aura-athena-en",
		StyleEnergetic: "aura-hera-en",
		StyleDeep:      "aura-orion-en",
	},
	ProviderMock: {
		StyleNarrator:  "mock-narrator",
		StyleWarm:      "mock-warm",
		StyleBright:    "mock-bright",
		StyleCalm:      "mock-calm",
		StyleEnergetic: "mock-energetic",
		StyleDeep:      "mock-deep",
	},
}

// Canonical resolves a user-supplied style string (any known alias) to its
// canonical style. Unknown styles are an error, never a default.
func Canonical(style string) (Style, error) {
	s, ok := aliases[strings.ToLower(strings.TrimSpace(style))]
	if !ok {
		return "", fmt.Errorf("unknown voice style %q", style)
	}
	return s, nil
}

// Resolve maps a style string to the provider's voice identifier.
func Resolve(style string, provider Provider) (string, error) {
	canonical, err := Canonical(style)
	if err != nil {
		return "", err
	}
	table, ok := voiceIDs[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", provider)
	}
	id, ok := table[canonical]
	if !ok {
		return "", fmt.Errorf("style %q has no voice for provider %q", canonical, provider)
	}
	return id, nil
}

// Styles returns all canonical styles, for validation messages.
func Styles() []Style {
	return []Style{StyleNarrator, StyleWarm, StyleBright, StyleCalm, StyleEnergetic, StyleDeep}
}
