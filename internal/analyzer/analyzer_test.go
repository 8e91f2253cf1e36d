package analyzer

import (
	"math"
	"testing"
)

func TestExtractWords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{"simple text", "Hello world", 2},
		{"with punctuation", "Hello, world! How are you?", 5},
		{"empty string", "", 0},
		{"apostrophe splits", "I can't", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words := ExtractWords(tt.input)
			if len(words) != tt.expected {
				t.Errorf("expected %d words, got %d", tt.expected, len(words))
			}
		})
	}
}

func TestPolarity(t *testing.T) {
	a := New()

	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"all positive", "There is hope and strength here", 100},
		{"all negative", "Everything is awful and broken", -100},
		{"mixed", "bad and hopeless but hope", -100.0 / 3},
		{"neutral", "The cat sat on the mat.", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Polarity(tt.input)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected polarity %.2f, got %.2f", tt.expected, got)
			}
		})
	}
}

func TestHighestCrisisSeverity(t *testing.T) {
	a := New()

	tests := []struct {
		name     string
		input    string
		expected Severity
	}{
		{"critical", "I want to kill myself", SeverityCritical},
		{"case insensitive", "I feel SUICIDAL tonight", SeverityCritical},
		{"high", "Everything feels hopeless", SeverityHigh},
		{"medium", "I had a panic attack at work", SeverityMedium},
		{"none", "I went for a walk and it was nice", SeverityNone},
		{"resource name is not a crisis", "You can call the 988 Suicide & Crisis Lifeline", SeverityNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.HighestCrisisSeverity(tt.input); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestFindRespectsWordBoundaries(t *testing.T) {
	a := New()

	if terms := a.Find("a sense of hopelessness", CategoryPrivacy); len(terms) != 0 {
		t.Errorf("expected no privacy match inside another word, got %v", terms)
	}
	if terms := a.Find("what is your SSN?", CategoryPrivacy); len(terms) != 1 {
		t.Errorf("expected one privacy match, got %v", terms)
	}
}

func TestFindMatchesInflections(t *testing.T) {
	a := New()

	tests := []struct {
		name     string
		input    string
		category Category
		expected string
	}{
		{"gerund", "I've been self-harming again every night", CategoryCrisis, "self-harm"},
		{"past tense", "I overdosed on my pills last week", CategorySubstance, "overdose"},
		{"noun suffix", "I feel total hopelessness", CategoryCrisis, "hopeless"},
		{"upper case", "I OVERDOSED", CategorySubstance, "overdose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found := a.Find(tt.input, tt.category)
			if len(found) == 0 || found[0].Phrase != tt.expected {
				t.Errorf("Find(%q, %s) = %v, want %q", tt.input, tt.category, found, tt.expected)
			}
		})
	}
}

func TestFindNeedsLeadingWordBoundary(t *testing.T) {
	a := New()

	tests := []struct {
		input    string
		category Category
	}{
		{"we did a photoshoot", CategoryViolence},
		{"my mood has been stable", CategoryViolence},
		{"my number is 555-0100", CategoryCrisis},
	}

	for _, tt := range tests {
		if found := a.Find(tt.input, tt.category); len(found) != 0 {
			t.Errorf("Find(%q, %s) = %v, want no match", tt.input, tt.category, found)
		}
	}
}

func TestSignalsCrisis(t *testing.T) {
	a := New()

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"critical", "I want to kill myself", true},
		{"medium tier", "I'm so depressed lately", true},
		{"emergency keyword", "This is an emergency, I need help right now", true},
		{"crisis word", "I'm in crisis", true},
		{"self harm category", "I keep cutting myself", true},
		{"calm", "How was your weekend?", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.SignalsCrisis(tt.input); got != tt.expected {
				t.Errorf("SignalsCrisis(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindSeverity(t *testing.T) {
	a := New()
	text := "I feel hopeless and overwhelmed, I want to die"

	if got := len(a.FindSeverity(text, CategoryCrisis, SeverityCritical)); got != 1 {
		t.Errorf("expected 1 critical term, got %d", got)
	}
	if got := len(a.FindSeverity(text, CategoryCrisis, SeverityHigh)); got != 1 {
		t.Errorf("expected 1 high term, got %d", got)
	}
	if got := len(a.FindSeverity(text, CategoryCrisis, SeverityMedium)); got != 1 {
		t.Errorf("expected 1 medium term, got %d", got)
	}
}

func TestCount(t *testing.T) {
	a := New()
	if got := a.Count("I understand. I understand how hard this is.", CategorySupportive); got != 2 {
		t.Errorf("expected 2 supportive occurrences, got %d", got)
	}
}

func TestMedicalAdvice(t *testing.T) {
	a := New()

	tests := []struct {
		name    string
		input   string
		wantAny bool
	}{
		{"prescription", "You should take 300mg of lithium", true},
		{"diagnosis", "I diagnose you with anxiety", true},
		{"stop medication", "Just stop taking it", true},
		{"dose change", "increase your dose tonight", true},
		{"referral only", "Please talk to your doctor about your medication", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.MedicalAdvice(tt.input)
			if (len(got) > 0) != tt.wantAny {
				t.Errorf("MedicalAdvice(%q) = %v", tt.input, got)
			}
		})
	}
}

func TestContentWords(t *testing.T) {
	a := New()
	words := a.ContentWords("I have been sleeping badly and my work stress is high")

	for _, w := range []string{"sleeping", "badly", "work", "stress"} {
		if !words[w] {
			t.Errorf("expected content word %q", w)
		}
	}
	for _, w := range []string{"have", "been", "and", "my"} {
		if words[w] {
			t.Errorf("did not expect %q", w)
		}
	}
}

func TestDensity(t *testing.T) {
	tests := []struct {
		matches, words int
		expected       float64
	}{
		{3, 30, 100},
		{1, 30, 100.0 / 3},
		{2, 5, 100},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := Density(tt.matches, tt.words); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("Density(%d, %d) = %.2f, want %.2f", tt.matches, tt.words, got, tt.expected)
		}
	}
}

func TestClamp(t *testing.T) {
	if Clamp(-5) != 0 || Clamp(150) != 100 || Clamp(42) != 42 || Clamp(math.NaN()) != 0 {
		t.Error("Clamp did not bound to [0,100]")
	}
}

func BenchmarkHighestCrisisSeverity(b *testing.B) {
	a := New()
	text := "I have been feeling overwhelmed lately and sometimes I think everything is hopeless."
	for i := 0; i < b.N; i++ {
		a.HighestCrisisSeverity(text)
	}
}
