package intent

import "regexp"

// Family identifies one pattern-rule family. Families are evaluated in a
// fixed order; each yields an independent boolean flag plus a match count.
type Family string

const (
	FamilyMeta         Family = "meta"
	FamilyCode         Family = "code"
	FamilyTest         Family = "test"
	FamilyDefinition   Family = "definition"
	FamilyEntryPoint   Family = "entry_point"
	FamilyWhy          Family = "why"
	FamilyArchitecture Family = "architecture_overview"
	FamilyRefactoring  Family = "refactoring_safety"
	FamilyBug          Family = "bug_investigation"
	FamilySecurity     Family = "security_audit"
	FamilyFeature      Family = "feature_location"
	FamilyProject      Family = "project_understanding"
)

// rule is one compiled pattern inside a family.
type rule struct {
	name    string
	pattern *regexp.Regexp
}

// familyRules maps each family to its ordered pattern table. Keeping the
// classifier as a data table keeps every rule independently testable.
var familyRules = []struct {
	family Family
	rules  []rule
}{
	{FamilyMeta, []rule{
		{"how-many", regexp.MustCompile(`(?i)\bhow many\b`)},
		{"list-all", regexp.MustCompile(`(?i)\b(list|enumerate) (all|every)\b`)},
		{"count", regexp.MustCompile(`(?i)\bcount\b`)},
		{"stats", regexp.MustCompile(`(?i)\b(statistic|metric|coverage)s?\b`)},
	}},
	{FamilyCode, []rule{
		{"function", regexp.MustCompile(`(?i)\b(function|method|func)\b`)},
		{"implementation", regexp.MustCompile(`(?i)\bimplement(s|ed|ation)?\b`)},
		{"identifier", regexp.MustCompile(`\b[a-z]+[A-Z]\w*\b|\b\w+_\w+\(`)},
		{"signature", regexp.MustCompile(`(?i)\b(signature|parameter|argument|return type)s?\b`)},
		{"call", regexp.MustCompile(`(?i)\b(call(s|ed|er|ers)?|invoke(s|d)?)\b`)},
	}},
	{FamilyTest, []rule{
		{"test-word", regexp.MustCompile(`(?i)\btests?\b`)},
		{"test-file", regexp.MustCompile(`(?i)\b\w+_test\.\w+\b|\b\w+\.(spec|test)\.\w+\b`)},
		{"coverage", regexp.MustCompile(`(?i)\b(unit|integration|e2e) test`)},
		{"assertion", regexp.MustCompile(`(?i)\b(assert|mock|fixture)s?\b`)},
	}},
	{FamilyDefinition, []rule{
		{"where-defined", regexp.MustCompile(`(?i)\bwhere (is|are|does)\b.*\b(defined|declared|live)`)},
		{"definition", regexp.MustCompile(`(?i)\b(definition|declaration) of\b`)},
		{"find-symbol", regexp.MustCompile(`(?i)\bfind (the )?(class|struct|type|interface|symbol)\b`)},
	}},
	{FamilyEntryPoint, []rule{
		{"entry", regexp.MustCompile(`(?i)\bentry ?point\b`)},
		{"main", regexp.MustCompile(`(?i)\bwhere does .* start\b|\bmain function\b`)},
		{"startup", regexp.MustCompile(`(?i)\b(startup|bootstrap|initializ(e|ation)) (flow|sequence|path)\b`)},
	}},
	{FamilyWhy, []rule{
		{"why", regexp.MustCompile(`(?i)^why\b|\bwhy (is|are|do|does|did|was|were)\b`)},
		{"rationale", regexp.MustCompile(`(?i)\b(rationale|reasoning|decision|trade-?off)s?\b`)},
		{"chosen", regexp.MustCompile(`(?i)\b(chose|chosen|decided|picked)\b`)},
	}},
	{FamilyArchitecture, []rule{
		{"architecture", regexp.MustCompile(`(?i)\barchitect(ure|ural)\b`)},
		{"overview", regexp.MustCompile(`(?i)\b(overview|high.?level|big picture|structure) (of|for)?\b`)},
		{"layers", regexp.MustCompile(`(?i)\b(layer|component|module)s? (interact|depend|communicate)`)},
		{"diagram", regexp.MustCompile(`(?i)\bdiagram\b`)},
	}},
	{FamilyRefactoring, []rule{
		{"refactor", regexp.MustCompile(`(?i)\brefactor(ing|ed)?\b`)},
		{"safe-change", regexp.MustCompile(`(?i)\b(safe(ly)? (to )?(change|rename|move|delete|remove))\b`)},
		{"impact", regexp.MustCompile(`(?i)\b(blast radius|ripple|break(s|ing)? (anything|callers))\b`)},
	}},
	{FamilyBug, []rule{
		{"bug", regexp.MustCompile(`(?i)\b(bug|defect|regression)s?\b`)},
		{"error", regexp.MustCompile(`(?i)\b(error|exception|panic|crash(es)?|stack ?trace)s?\b`)},
		{"broken", regexp.MustCompile(`(?i)\b(broken|fail(s|ing|ure)?|doesn'?t work|not working)\b`)},
		{"fix", regexp.MustCompile(`(?i)\b(fix(es|ing)?|debug(ging)?)\b`)},
	}},
	{FamilySecurity, []rule{
		{"security", regexp.MustCompile(`(?i)\b(security|vulnerab(le|ility|ilities)|exploit)s?\b`)},
		{"auth", regexp.MustCompile(`(?i)\b(auth(entication|orization)?|permission|access control)s?\b`)},
		{"injection", regexp.MustCompile(`(?i)\b(injection|xss|csrf|sanitiz(e|ation))\b`)},
		{"secrets", regexp.MustCompile(`(?i)\b(secret|credential|token|password)s?\b`)},
	}},
	{FamilyFeature, []rule{
		{"add-feature", regexp.MustCompile(`(?i)\b(add|implement|build|create) (a |an |the )?(new )?\w+`)},
		{"where-add", regexp.MustCompile(`(?i)\bwhere (should|do|would) .* (add|put|implement)\b`)},
		{"extend", regexp.MustCompile(`(?i)\b(extend(ing)?|support for)\b`)},
	}},
	{FamilyProject, []rule{
		{"what-project", regexp.MustCompile(`(?i)\bwhat (is|does) (this|the) (project|repo|codebase|service)\b`)},
		{"understand", regexp.MustCompile(`(?i)\b(understand(ing)?|explain|describe) (this|the) (project|repo|codebase|system)\b`)},
		{"onboard", regexp.MustCompile(`(?i)\b(onboard(ing)?|getting started|orientation)\b`)},
	}},
}

// FamilyMatch records the outcome of evaluating one family.
type FamilyMatch struct {
	Matched bool `json:"matched"`
	Count   int  `json:"count"`
}
