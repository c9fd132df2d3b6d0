package prompt

// The classification and extraction vocabularies live here as ordered data
// so they can be tested and extended independently of the matching logic.
// Order matters: category iteration order is the tie-break for single-max
// scores, and entity/measurement output order follows table order.

// categoryKeywords maps each category to its keyword list.
// Scoring is substring containment, not word-boundary matching.
type categoryKeywords struct {
	category Category
	keywords []string
}

var categories = []categoryKeywords{
	{CategoryModeling, []string{
		"create", "model", "mesh", "object", "shape", "geometry",
		"cube", "sphere", "cylinder", "cone", "torus", "plane",
		"extrude", "subdivide", "modifier", "boolean", "array",
		"character", "building", "furniture", "vehicle",
	}},
	{CategoryMaterial, []string{
		"material", "shader", "texture", "color", "metallic",
		"roughness", "glossy", "diffuse", "bsdf", "principled",
		"procedural", "node", "glass", "metal", "wood", "stone",
	}},
	{CategoryScene, []string{
		"scene", "lighting", "light", "camera", "environment",
		"world", "hdri", "background", "sun", "lamp", "composition",
		"render", "setup", "studio",
	}},
	{CategoryAnimation, []string{
		"animate", "animation", "keyframe", "motion", "movement",
		"rotate", "translate", "scale", "path", "timeline",
		"bounce", "spin", "move", "frame",
	}},
}

// objectVocab lists common scene objects, matched as whole words with an
// optional plural s.
var objectVocab = []string{
	"cube", "sphere", "cylinder", "cone", "torus", "plane",
	"tree", "house", "car", "chair", "table", "lamp",
}

// colorVocab lists recognized colors, matched as whole words.
var colorVocab = []string{
	"red", "blue", "green", "yellow", "orange", "purple",
	"black", "white", "gray", "grey", "brown", "pink",
}

// materialVocab lists recognized materials, matched as whole words.
var materialVocab = []string{
	"metal", "wood", "glass", "plastic", "stone",
	"gold", "silver", "copper", "steel", "concrete",
}

// unitConversion pairs a unit token with its factor to meters.
// Order matters: the regex alternation tries tokens in this order, so a
// prefix token ("m") wins over its extensions ("meter") at the same
// position, which keeps conversions deterministic.
type unitConversion struct {
	unit   string
	factor float64
}

var units = []unitConversion{
	{"cm", 0.01},
	{"centimeter", 0.01},
	{"mm", 0.001},
	{"millimeter", 0.001},
	{"m", 1.0},
	{"meter", 1.0},
	{"inch", 0.0254},
	{"inches", 0.0254},
	{"ft", 0.3048},
	{"foot", 0.3048},
	{"feet", 0.3048},
}

// complexKeywords raise the complexity score when present as substrings.
var complexKeywords = []string{
	"procedural", "animation", "rigging", "physics",
	"particle", "advanced", "realistic", "detailed",
}

// abbreviations expand chat shorthand during cleaning, longest pattern
// first so "w/o" is not consumed by the "w/" rule.
type abbreviation struct {
	pattern     string
	replacement string
}

var abbreviations = []abbreviation{
	{"pls", "please"},
	{"plz", "please"},
	{"thx", "thanks"},
	{"w/o", "without"},
	{"w/", "with"},
}
