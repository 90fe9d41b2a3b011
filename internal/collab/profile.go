package collab

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/mitchellh/mapstructure"
)

// DecodeCollaborationProfile converts a loosely typed document (JSONB column,
// uploaded file) into a CollaborationProfile. camelCase keys are accepted and
// single strings are promoted to lists.
func DecodeCollaborationProfile(raw map[string]any) (CollaborationProfile, error) {
	var out CollaborationProfile
	if len(raw) == 0 {
		return out, nil
	}

	normalized := make(map[string]any, len(raw))
	for key, value := range raw {
		normalized[snakeCase(key)] = value
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, fmt.Errorf("build collaboration profile decoder: %w", err)
	}

	if err := decoder.Decode(normalized); err != nil {
		return CollaborationProfile{}, fmt.Errorf("decode collaboration profile: %w", err)
	}

	return out, nil
}

func (c *CollaborationProfile) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	decoded, err := DecodeCollaborationProfile(raw)
	if err != nil {
		return err
	}

	*c = decoded
	return nil
}

func snakeCase(key string) string {
	key = strings.TrimSpace(key)
	var b strings.Builder
	for i, r := range key {
		switch {
		case r == '-' || r == ' ':
			b.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ProfileText renders the text that represents a user in the embedding space.
func ProfileText(u *UserProfile) string {
	if u == nil {
		return ""
	}

	cp := u.CollaborationProfile
	lines := []struct {
		label string
		value string
	}{
		{"Name", u.Name},
		{"Skills", strings.Join(u.Skills, ", ")},
		{"Interests", strings.Join(u.Interests, ", ")},
		{"Expertise", strings.Join(u.Expertise, ", ")},
		{"Location", u.Location},
		{"Commitment", cp.CommitmentLevel},
		{"Availability", cp.Availability},
		{"Preferred industries", strings.Join(cp.PreferredIndustries, ", ")},
		{"Work style", cp.WorkStyle},
		{"Personality", strings.Join(cp.PersonalityTraits, ", ")},
		{"Looking for", strings.Join(cp.LookingFor, ", ")},
	}

	var b strings.Builder
	for _, line := range lines {
		value := strings.TrimSpace(line.value)
		if value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line.label)
		b.WriteString(": ")
		b.WriteString(value)
	}
	return b.String()
}
