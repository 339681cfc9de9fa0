package imagegen

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NegativePrompt excludes the artifacts every style template guards against.
const NegativePrompt = "cartoon, anime, illustration, 3d render, painting, low quality, blurry, grainy, deformed features, distorted face, extra limbs"

const qualityClause = "4k resolution, studio lighting, sharp focus, photorealistic"

// StyleInput is the deterministic input of the directive mapping. The same
// input always yields the same directive.
type StyleInput struct {
	Kind         string
	Constraints  map[string]string
	Instructions string
	GenderMode   string
}

// BuildDirective maps a style request onto the instruction string sent to the
// generation provider. Known style kinds use fixed templates with defaults
// overridable through constraints; anything else falls back to embedding the
// freeform instructions verbatim.
func BuildDirective(in StyleInput) string {
	switch strings.ToLower(strings.TrimSpace(in.Kind)) {
	case "portrait":
		outfit := constraint(in.Constraints, "outfitType", "blazer")
		color := constraint(in.Constraints, "outfitColor", "black")
		backdrop := constraint(in.Constraints, "background", "neutral studio backdrop")
		parts := []string{
			"Professional corporate headshot portrait",
			fmt.Sprintf("wearing a %s %s", color, outfit),
		}
		if gender := strings.TrimSpace(in.GenderMode); gender != "" {
			parts = append(parts, gender)
		}
		parts = append(parts, backdrop, qualityClause)
		return strings.Join(parts, ", ")
	case "hair":
		style := constraint(in.Constraints, "hairStyle", "clean professional hairstyle")
		parts := []string{"Professional portrait with " + style}
		if color := constraint(in.Constraints, "hairColor", ""); color != "" {
			parts = append(parts, color+" hair")
		}
		if gender := strings.TrimSpace(in.GenderMode); gender != "" {
			parts = append(parts, gender)
		}
		parts = append(parts, "keep facial features unchanged", qualityClause)
		return strings.Join(parts, ", ")
	default:
		if instructions := strings.TrimSpace(in.Instructions); instructions != "" {
			parts := []string{"professional headshot", instructions, "studio lighting"}
			if gender := strings.TrimSpace(in.GenderMode); gender != "" {
				parts = append(parts, gender)
			}
			return strings.Join(parts, ", ")
		}
		return "professional corporate headshot, " + qualityClause
	}
}

// Describe renders a short human summary of the applied style for the API
// response.
func Describe(in StyleInput) string {
	title := cases.Title(language.English)
	kind := strings.TrimSpace(in.Kind)
	if kind == "" {
		kind = "headshot"
	}
	label := title.String(kind)
	switch strings.ToLower(kind) {
	case "portrait":
		outfit := constraint(in.Constraints, "outfitType", "blazer")
		color := constraint(in.Constraints, "outfitColor", "black")
		return fmt.Sprintf("%s style with %s", label, title.String(color+" "+outfit))
	case "hair":
		style := constraint(in.Constraints, "hairStyle", "professional hairstyle")
		return fmt.Sprintf("%s restyle: %s", label, title.String(style))
	default:
		if instructions := strings.TrimSpace(in.Instructions); instructions != "" {
			return fmt.Sprintf("%s style: %s", label, instructions)
		}
		return label + " style"
	}
}

func constraint(constraints map[string]string, key, fallback string) string {
	if v, ok := constraints[key]; ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	// constraint keys arrive from JSON clients with inconsistent casing
	for k, v := range constraints {
		if strings.EqualFold(k, key) {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		}
	}
	return fallback
}
