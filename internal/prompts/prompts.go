package prompts

import (
	"fmt"
	"strings"

	"archRenew/internal/storage"
)

const analysisInstruction = "Analyze this building image and describe its architectural style, condition, key features, and suggest specific restoration considerations. Focus on structural elements, materials, and historical significance if any. Keep response under 200 words."

// FallbackAnalysis stands in for the building description when vision analysis fails.
const FallbackAnalysis = "Modern building with standard architectural features requiring restoration."

const restorationTemplate = `
Create a realistic visualization of a derelict building after professional restoration and renovation.
%s
%s
Maintain the same architectural footprint and core structure, but repair all damage.
Fix broken windows, repair the facade, update the exterior, and modernize the appearance while respecting the building's original character.
Make the surrounding area clean and well-maintained.
The result should look like a professional architectural visualization of the restored building.
`

const planTemplate = `Based on this building analysis: %s

And this restoration request: %s

Create a detailed, professional restoration plan that includes:
1. Specific architectural improvements
2. Materials and techniques to be used
3. Timeline considerations
4. Heritage preservation aspects
5. Modern upgrades and sustainability features

Write this as a comprehensive restoration proposal that could be presented to stakeholders.`

const editTemplate = `Transform this derelict building into a beautifully restored version
while maintaining EXACTLY the same camera angle, perspective, and viewpoint.

CRITICAL REQUIREMENTS:
- Keep the EXACT same perspective, camera angle, and viewpoint
- Maintain the same architectural proportions and scale
- Preserve the building's structural footprint and shape
- Create photorealistic results that look like professional architectural photography

RESTORATION IMPROVEMENTS:
- Clean and repair all damaged materials
- Replace broken or boarded windows with new glass
- Fresh paint or protective coatings to façades
- Repair and modernize any visible roof elements
- Clean surroundings and add tasteful landscaping
- Subtle modern lighting fixtures highlighting architecture

STYLE SPECIFICATIONS: %s

OUTPUT REQUIREMENTS:
- Professional architectural photography quality
- Sharp, high-definition details
- Natural lighting matching the original photo
- Realistic materials and textures
- Finished appearance suitable for a design portfolio
`

// AnalysisInstruction returns the fixed instruction sent alongside the building photo.
func AnalysisInstruction() string {
	return analysisInstruction
}

// BuildRestorationPrompt assembles the restoration request from the selected
// style, the building analysis and the option flags, in that order.
func BuildRestorationPrompt(analysis string, opts storage.Options) string {
	styleInstruction := fmt.Sprintf("Use a %s style for the restoration.", opts.Style)

	additional := []string{"Building analysis: " + analysis}
	if opts.PreserveHeritage {
		additional = append(additional, "Preserve historical and heritage elements of the building.")
	}
	if opts.Landscaping {
		additional = append(additional, "Add attractive landscaping and greenery around the building.")
	}
	if opts.Lighting {
		additional = append(additional, "Add modern and attractive lighting to highlight architectural features.")
	}
	if opts.ExpandBuilding {
		additional = append(additional, "Consider a tasteful expansion or addition that complements the original structure.")
	}

	return fmt.Sprintf(restorationTemplate, styleInstruction, strings.Join(additional, " "))
}

// BuildPlanPrompt composes the five-section plan request.
func BuildPlanPrompt(analysis, request string) string {
	return fmt.Sprintf(planTemplate, analysis, request)
}

// BuildEditPrompt embeds the plan as the style specification of the image edit.
func BuildEditPrompt(plan string) string {
	return fmt.Sprintf(editTemplate, plan)
}

// FallbackPlan is the templated plan used when plan generation fails.
func FallbackPlan(style string) string {
	return fmt.Sprintf("Restoration plan for %s style renovation based on the analysis.", style)
}
