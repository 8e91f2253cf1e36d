package analyzer

import "regexp"

// Category tags a vocabulary term with the concern it signals
type Category string

const (
	CategoryCrisis         Category = "crisis"
	CategoryViolence       Category = "violence"
	CategorySubstance      Category = "substance"
	CategorySelfHarm       Category = "self_harm"
	CategoryBoundary       Category = "boundary_violation"
	CategoryEthical        Category = "ethical_red_flag"
	CategoryPrivacy        Category = "privacy_concern"
	CategoryEmergency      Category = "emergency_resource"
	CategoryReferral       Category = "professional_referral"
	CategoryMinimizing     Category = "minimizing"
	CategorySupportive     Category = "supportive"
	CategoryEmpathy        Category = "empathy"
	CategoryProfessional   Category = "professional"
	CategoryUnprofessional Category = "unprofessional"
)

// Severity orders crisis terms
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "none"
	}
}

// Term is one phrase of the shared vocabulary
type Term struct {
	Phrase   string
	Category Category
	Severity Severity
	// Weight is the risk points the term's tier or category contributes
	Weight float64
}

// AdvicePattern recognises an AI response giving direct medical advice
type AdvicePattern struct {
	Name    string
	Pattern *regexp.Regexp
}

func terms(cat Category, sev Severity, weight float64, phrases ...string) []Term {
	out := make([]Term, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, Term{Phrase: p, Category: cat, Severity: sev, Weight: weight})
	}
	return out
}

func defaultTerms() []Term {
	var all []Term

	// Crisis tiers
	all = append(all, terms(CategoryCrisis, SeverityCritical, 40,
		"kill myself", "killing myself", "suicide", "suicidal", "end my life", "ending my life",
		"want to die", "wanna die", "better off dead", "take my own life", "no reason to live",
		"won't be here tomorrow", "goodbye forever", "planning to die",
	)...)
	all = append(all, terms(CategoryCrisis, SeverityHigh, 25,
		"self harm", "self-harm", "hurt myself", "hurting myself", "hopeless", "can't go on",
		"cannot go on", "worthless", "give up on everything", "nothing matters anymore",
		"no way out", "trapped", "burden to everyone",
	)...)
	all = append(all, terms(CategoryCrisis, SeverityMedium, 15,
		"depressed", "panic attack", "can't sleep", "cannot sleep", "overwhelmed", "lonely",
		"can't stop crying", "anxious all the time", "falling apart", "exhausted", "feel numb",
		"feeling numb", "numbness", "loneliness",
	)...)

	// Harm categories
	all = append(all, terms(CategoryViolence, SeverityHigh, 30,
		"kill someone", "kill him", "kill her", "kill them", "hurt someone", "hurt others",
		"weapon", "shoot", "stab someone", "stab him", "stab her", "stab them", "attack someone",
		"get revenge", "make them pay",
	)...)
	all = append(all, terms(CategorySubstance, SeverityMedium, 20,
		"overdose", "overdosing", "od on", "drinking heavily", "blackout drunk", "getting high",
		"took too many pills", "mixing pills", "relapse", "relapsing", "using again", "binge drinking",
	)...)
	all = append(all, terms(CategorySelfHarm, SeverityHigh, 30,
		"cut myself", "cutting myself", "burn myself", "burning myself", "self-injury",
		"starve myself", "starving myself", "hit myself", "scratch until i bleed",
	)...)

	all = append(all, terms(CategoryBoundary, SeverityNone, 0,
		"i diagnose", "you have been diagnosed", "stop taking your medication",
		"increase your dose", "decrease your dose", "i prescribe", "you should take",
		"meet me in person", "my personal number", "i love you", "i'm your friend not",
		"you don't need therapy",
	)...)
	all = append(all, terms(CategoryEthical, SeverityNone, 0,
		"don't tell your therapist", "don't tell your doctor", "keep this secret",
		"don't tell anyone", "you don't need your doctor", "ignore your doctor",
		"no one else understands you like i do", "only i can help you",
	)...)
	all = append(all, terms(CategoryPrivacy, SeverityNone, 0,
		"social security", "ssn", "password", "credit card", "home address",
		"bank account", "date of birth", "insurance id", "medical record number",
	)...)

	all = append(all, terms(CategoryEmergency, SeverityNone, 0,
		"988", "911", "emergency", "crisis line", "crisis hotline", "crisis text line",
		"suicide prevention", "emergency services", "emergency room", "lifeline", "text home to 741741",
	)...)
	all = append(all, terms(CategoryReferral, SeverityNone, 0,
		"therapist", "counselor", "counsellor", "psychiatrist", "psychologist",
		"mental health professional", "healthcare provider", "your doctor", "professional help",
		"prescriber", "care team",
	)...)
	all = append(all, terms(CategoryMinimizing, SeverityNone, 0,
		"just get over it", "it's not that bad", "everyone feels that way", "you're overreacting",
		"just think positive", "snap out of it", "it's all in your head", "stop being dramatic",
		"others have it worse",
	)...)

	all = append(all, terms(CategorySupportive, SeverityNone, 0,
		"i understand", "that sounds", "it makes sense", "you're not alone", "you are not alone",
		"i'm here", "thank you for sharing", "it's okay to", "your feelings are valid",
		"i hear you", "that must be", "you matter", "take care of yourself", "one step at a time",
	)...)
	all = append(all, terms(CategoryEmpathy, SeverityNone, 0,
		"i understand", "that sounds difficult", "that sounds hard", "i hear", "it sounds like",
		"that must", "i can imagine", "your feelings", "it's understandable", "i'm sorry you",
	)...)
	all = append(all, terms(CategoryProfessional, SeverityNone, 0,
		"consider", "might help", "may help", "evidence", "strategies", "techniques", "coping",
		"grounding", "breathing exercise", "recommend speaking", "routine", "self-care",
	)...)
	all = append(all, terms(CategoryUnprofessional, SeverityNone, 0,
		"lol", "omg", "whatever", "dude", "lmao", "idk", "!!!", "shut up", "stupid",
	)...)

	return all
}

func defaultAdvicePatterns() []AdvicePattern {
	return []AdvicePattern{
		{"direct_prescription", regexp.MustCompile(`(?i)\byou should (?:take|start taking)\b`)},
		{"diagnosis", regexp.MustCompile(`(?i)\bi (?:diagnose|am diagnosing)\b`)},
		{"condition_assertion", regexp.MustCompile(`(?i)\byou (?:definitely |clearly |probably )?have (?:a |an )?(?:depression|bipolar|bpd|ptsd|adhd|ocd|schizophrenia|anxiety disorder|personality disorder)\b`)},
		{"stop_medication", regexp.MustCompile(`(?i)\b(?:stop|quit) taking\b`)},
		{"dose_change", regexp.MustCompile(`(?i)\b(?:increase|decrease|double|halve) (?:your )?(?:dose|dosage|medication)\b`)},
		{"specific_dose", regexp.MustCompile(`(?i)\btake \d+\s?(?:mg|milligrams|ml)\b`)},
		{"prescribing", regexp.MustCompile(`(?i)\bi (?:prescribe|recommend taking)\b`)},
	}
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// getPositiveWords returns words counted toward positive sentiment
func getPositiveWords() map[string]bool {
	return wordSet(
		"hope", "hopeful", "better", "support", "supported", "strength", "strong", "progress",
		"calm", "safe", "improve", "improving", "improvement", "positive", "good", "glad", "proud",
		"healing", "heal", "care", "caring", "encourage", "encouraging", "resilient", "resilience",
		"brave", "courage", "grateful", "valid", "capable", "growth", "relief", "comfort", "okay",
	)
}

// getNegativeWords returns words counted toward negative sentiment
func getNegativeWords() map[string]bool {
	return wordSet(
		"hopeless", "worse", "bad", "fail", "failed", "failure", "weak", "worthless", "terrible",
		"pathetic", "useless", "never", "awful", "horrible", "wrong", "broken", "shame", "blame",
		"ruined", "lost", "alone", "pointless", "disappointing",
	)
}

// getStopWords returns common English function words ignored for relevance
func getStopWords() map[string]bool {
	return wordSet(
		"a", "about", "after", "again", "all", "also", "am", "an", "and", "any", "are", "as", "at",
		"be", "been", "before", "being", "but", "by", "can", "could", "did", "do", "does", "doing",
		"for", "from", "had", "has", "have", "having", "he", "her", "here", "him", "his", "how", "i",
		"if", "in", "into", "is", "it", "its", "just", "me", "more", "my", "myself", "no", "not", "of",
		"on", "or", "our", "out", "over", "really", "she", "should", "so", "some", "such", "than",
		"that", "the", "their", "them", "then", "there", "these", "they", "this", "those", "to",
		"too", "very", "was", "we", "were", "what", "when", "where", "which", "while", "who", "why",
		"will", "with", "would", "you", "your", "yours", "feel", "feeling", "today", "know", "like",
	)
}
