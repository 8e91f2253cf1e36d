package terminology

import "regexp"

// Category is one of the recognized medical vocabulary groups
type Category string

const (
	CategoryConditions    Category = "conditions"
	CategoryMedications   Category = "medications"
	CategoryProcedures    Category = "procedures"
	CategoryAnatomy       Category = "anatomy"
	CategorySymptoms      Category = "symptoms"
	CategoryMeasurements  Category = "measurements"
	CategoryAbbreviations Category = "abbreviations"
	CategorySpecialties   Category = "specialties"
)

// Categories lists every category in reporting order
var Categories = []Category{
	CategoryConditions,
	CategoryMedications,
	CategoryProcedures,
	CategoryAnatomy,
	CategorySymptoms,
	CategoryMeasurements,
	CategoryAbbreviations,
	CategorySpecialties,
}

var vocabulary = map[Category][]string{
	CategoryConditions: {
		"depression", "major depressive disorder", "anxiety", "generalized anxiety disorder",
		"bipolar disorder", "schizophrenia", "schizoaffective disorder", "panic disorder",
		"obsessive compulsive disorder", "post-traumatic stress disorder", "insomnia",
		"hypertension", "diabetes", "hypothyroidism", "anorexia nervosa", "bulimia",
		"borderline personality disorder", "dysthymia", "psychosis", "substance use disorder",
		"migraine", "asthma",
	},
	CategoryMedications: {
		"sertraline", "fluoxetine", "escitalopram", "citalopram", "paroxetine", "venlafaxine",
		"duloxetine", "bupropion", "mirtazapine", "trazodone", "lithium", "lamotrigine",
		"valproate", "quetiapine", "olanzapine", "risperidone", "aripiprazole", "clozapine",
		"lorazepam", "alprazolam", "clonazepam", "diazepam", "buspirone", "methylphenidate",
		"levothyroxine", "metformin", "lisinopril", "insulin", "melatonin",
	},
	CategoryProcedures: {
		"psychotherapy", "cognitive behavioral therapy", "electroconvulsive therapy",
		"psychiatric evaluation", "blood test", "urinalysis", "electrocardiogram", "mri",
		"ct scan", "eeg", "lumbar puncture", "biopsy", "x-ray", "lab work", "screening",
	},
	CategoryAnatomy: {
		"brain", "heart", "liver", "kidney", "thyroid", "lung", "stomach", "spine",
		"prefrontal cortex", "amygdala", "hippocampus", "nervous system", "blood vessel",
	},
	CategorySymptoms: {
		"fatigue", "nausea", "headache", "dizziness", "insomnia", "palpitations",
		"tremor", "weight gain", "weight loss", "irritability", "hallucinations",
		"delusions", "anhedonia", "agitation", "low mood", "poor concentration",
		"suicidal ideation", "panic attacks", "appetite changes",
	},
	CategoryMeasurements: {
		"mg", "mcg", "ml", "mg/dl", "mmhg", "bpm", "kg", "units", "bmi",
		"blood pressure", "heart rate", "phq-9", "gad-7", "tsh", "a1c",
	},
	CategoryAbbreviations: {
		"bp", "hr", "bid", "tid", "qid", "qd", "qhs", "prn", "po", "npo", "stat", "sig",
		"mdd", "gad", "ptsd", "ocd", "adhd", "ssri", "snri", "maoi", "cbt", "dbt", "ect",
		"dx", "rx", "hx", "sx", "tx",
	},
	CategorySpecialties: {
		"psychiatry", "psychiatrist", "psychology", "psychologist", "neurology",
		"neurologist", "cardiology", "endocrinology", "primary care", "internal medicine",
		"social worker", "therapist", "counselor",
	},
}

// abbreviations expands clinical shorthand. Not every recognized
// abbreviation has an expansion.
var abbreviations = map[string]string{
	"bp":   "blood pressure",
	"hr":   "heart rate",
	"bid":  "twice daily",
	"tid":  "three times daily",
	"qid":  "four times daily",
	"qd":   "once daily",
	"qhs":  "at bedtime",
	"prn":  "as needed",
	"po":   "by mouth",
	"npo":  "nothing by mouth",
	"stat": "immediately",
	"mdd":  "major depressive disorder",
	"gad":  "generalized anxiety disorder",
	"ptsd": "post-traumatic stress disorder",
	"ocd":  "obsessive compulsive disorder",
	"adhd": "attention deficit hyperactivity disorder",
	"ssri": "selective serotonin reuptake inhibitor",
	"snri": "serotonin norepinephrine reuptake inhibitor",
	"cbt":  "cognitive behavioral therapy",
	"dbt":  "dialectical behavior therapy",
	"ect":  "electroconvulsive therapy",
	"dx":   "diagnosis",
	"rx":   "prescription",
	"hx":   "history",
	"sx":   "symptoms",
	"tx":   "treatment",
}

// ocrCorruptions maps common OCR misreads to the intended term
var ocrCorruptions = map[string]string{
	"medicatiom":   "medication",
	"rnedication":  "medication",
	"diagnosls":    "diagnosis",
	"dlagnosis":    "diagnosis",
	"prescrlption": "prescription",
	"depresslon":   "depression",
	"anxlety":      "anxiety",
	"symptorns":    "symptoms",
	"dosaqe":       "dosage",
	"patlent":      "patient",
	"therapv":      "therapy",
	"sertrallne":   "sertraline",
	"fluoxetlne":   "fluoxetine",
	"lithiurn":     "lithium",
	"insornnia":    "insomnia",
	"bipoiar":      "bipolar",
}

// ambiguous words have both clinical and everyday meanings
var ambiguous = []string{
	"cold", "stroke", "discharge", "positive", "negative", "attack", "culture", "episode",
}

type coOccurrence struct {
	description string
	re          *regexp.Regexp
}

// incorrectCoOccurrences flag clinically implausible pairings
var incorrectCoOccurrences = []coOccurrence{
	{"Lithium listed as a diabetes treatment", regexp.MustCompile(`(?i)\blithium\b[^.]{0,40}\bdiabetes\b`)},
	{"Insulin listed as an anxiety treatment", regexp.MustCompile(`(?i)\binsulin\b[^.]{0,40}\banxiety\b`)},
	{"Antibiotic listed for a viral condition", regexp.MustCompile(`(?i)\bantibiotics?\b[^.]{0,40}\bvir(?:us|al)\b`)},
	{"SSRI listed as an infection treatment", regexp.MustCompile(`(?i)\b(?:ssri|sertraline|fluoxetine)\b[^.]{0,40}\binfection\b`)},
	{"Chemotherapy listed for a mood condition", regexp.MustCompile(`(?i)\bchemotherapy\b[^.]{0,40}\b(?:anxiety|depression)\b`)},
	{"Stimulant listed as an insomnia treatment", regexp.MustCompile(`(?i)\bmethylphenidate\b[^.]{0,40}\binsomnia\b`)},
}

var (
	dosageRegex    = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:mg|mcg|ml|units?|g)\b`)
	frequencyRegex = regexp.MustCompile(`(?i)\b(?:daily|bid|tid|qid|qd|qhs|prn|once|twice|every|nightly|weekly|morning|bedtime|as needed)\b`)
)
